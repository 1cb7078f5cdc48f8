package multierr

import (
	"errors"
	"fmt"
	"strings"
)

// Error collects the failures from a validation pass so callers see
// everything wrong at once instead of fixing problems one at a time.
type Error []error

func (e Error) Error() string {
	switch len(e) {
	case 0:
		return "<nil>"

	case 1:
		return e[0].Error()

	default:
		sb := new(strings.Builder)
		fmt.Fprintf(sb, "%d errors occurred:", len(e))
		for _, err := range e {
			fmt.Fprintf(sb, "\n\t* %v", err)
		}
		return sb.String()
	}
}

// Append adds err to e, ignoring nil errors:
//
//	var e multierr.Error
//	e.Append(validate(step))
func (e *Error) Append(err error) {
	if e == nil || err == nil {
		return
	}
	*e = append(*e, err)
}

// ErrOrNil converts e to a plain error. A typed nil Error is not a nil
// interface, so returning e directly from a func() error would always
// compare non-nil; this unwraps the empty and single-element cases.
func (e Error) ErrOrNil() error {
	switch len(e) {
	case 0:
		return nil

	case 1:
		return e[0]

	default:
		return e
	}
}

func (e Error) Unwrap() error {
	switch len(e) {
	case 0:
		return nil

	case 1:
		return e[0]

	default:
		return e[1:]
	}
}

func (e Error) Is(target error) bool {
	for _, err := range e {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (e Error) As(target any) bool {
	for _, err := range e {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}
