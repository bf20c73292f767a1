// Package errors provides structured error types for the marshalling layer.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/WIT type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLower, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("transcoder.String").
//		WitType("u32").
//		Detail("cannot lower text as integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AllocationFailed(errors.PhaseAlloc, 1024, 8)
//	err := errors.OutOfBounds(errors.PhaseLift, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
// A target with an empty Phase matches on Kind alone:
//
//	errors.Is(err, &errors.Error{Kind: errors.KindAllocation})
package errors
