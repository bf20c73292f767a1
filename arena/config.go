package arena

import (
	"github.com/go-playground/validator/v10"

	"github.com/wippyai/wasm-cabi/errors"
)

// Config holds options for creating a Linear arena.
type Config struct {
	// InitialPages is the number of 64 KiB pages allocated up front.
	InitialPages uint32 `validate:"min=1,max=65535"`

	// MemoryLimitPages caps how far the arena may grow.
	MemoryLimitPages uint32 `validate:"gtefield=InitialPages,max=65535"`

	// Policy decides what Alloc does on exhaustion.
	Policy Policy `validate:"oneof=0 1"`
}

// DefaultConfig returns a one page arena that may grow to 16 MiB and aborts
// on exhaustion.
func DefaultConfig() Config {
	return Config{
		InitialPages:     1,
		MemoryLimitPages: 256,
		Policy:           PolicyAbort,
	}
}

var validate = validator.New()

// Validate checks page bounds and policy.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseAlloc, errors.KindInvalidInput, err, "invalid arena config")
	}
	return nil
}
