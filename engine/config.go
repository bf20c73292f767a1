package engine

// DefaultModuleName is the host module name guests import exports from.
const DefaultModuleName = "cabi"

// Config holds configuration for host module instantiation
type Config struct {
	// ModuleName is the import module name. Empty means DefaultModuleName.
	ModuleName string
}

func DefaultConfig() Config {
	return Config{ModuleName: DefaultModuleName}
}

func (c Config) moduleName() string {
	if c.ModuleName == "" {
		return DefaultModuleName
	}
	return c.ModuleName
}
