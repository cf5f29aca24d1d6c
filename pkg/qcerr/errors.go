// Package qcerr defines the error kinds raised by the scoring pipeline.
//
// Every error produced while preprocessing, scoring or diagnosing a
// spectrum is an *Error whose Kind matches one of the sentinels below, so
// callers can branch with errors.Is without parsing messages.
package qcerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDimension  Kind = "dimension"
	KindNumeric    Kind = "numeric"
)

var (
	// ErrValidation covers bad or missing input (no files, short spectrum).
	ErrValidation = errors.New("validation error")
	// ErrDimension covers any vector/matrix length disagreement.
	ErrDimension = errors.New("dimension error")
	// ErrNumeric covers zero or non-finite denominators.
	ErrNumeric = errors.New("numeric error")
)

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.sentinel(), e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.sentinel(), e.Msg)
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindValidation:
		return ErrValidation
	case KindDimension:
		return ErrDimension
	case KindNumeric:
		return ErrNumeric
	default:
		return nil
	}
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Dimension(op, format string, args ...any) error {
	return &Error{Kind: KindDimension, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Numeric(op, format string, args ...any) error {
	return &Error{Kind: KindNumeric, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain,
// or an empty Kind when err is not a pipeline error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
