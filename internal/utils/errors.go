package utils

import "fmt"

// AppError wraps an operation, human-facing message, error category and
// underlying cause. Both Kind and Err participate in errors.Is.
type AppError struct {
	Op   string
	Msg  string
	Kind error
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, kind, err error) error {
	return &AppError{Op: op, Msg: msg, Kind: kind, Err: err}
}
