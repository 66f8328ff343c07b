// Package errors provides structured error types for the corebind library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/native type names, engine
// category/code for pass-through errors, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
//		Path("Person", "age").
//		GoType("string").
//		NativeType("int").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Overflow(errors.PhaseConvert, path, 300, "int8")
//	err := errors.StaleObject("Person", 3, 4)
//
// Sentinels such as ErrStaleObject and ErrConsistency match any error of
// the same Kind regardless of Phase:
//
//	if errors.Is(err, corerr.ErrStaleObject) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
