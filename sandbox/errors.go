package sandbox

import "fmt"

// UnsupportedLanguageError is returned before any workspace or process is
// created when a request names a language tag with no configured runtime.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("Language %s not supported", e.Language)
}

// InfrastructureError reports a platform failure: the scratch file could not
// be staged, the interpreter could not be spawned, or no isolation backend is
// usable. A program that exits non-zero or times out is not an
// InfrastructureError.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

func infraError(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}
