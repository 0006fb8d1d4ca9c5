package streak

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("streak: invalid value")
	ErrInvalidValue       = fmt.Errorf("%w: streak must be at least 1", ErrValidation)
	ErrDuplicateKey       = errors.New("streak: duplicate username")
	ErrStaleConfirmation  = errors.New("streak: stale confirmation")
	ErrAllocatorExhausted = errors.New("streak: wheel slots exhausted")
)

// RecordError reports a single activity record that could not be applied.
// The participant it names keeps the state it had before the run.
type RecordError struct {
	Row      int
	Username string
	Err      error
}

func (e *RecordError) Error() string {
	if e.Username == "" {
		return fmt.Sprintf("streak: record #%d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("streak: record %q: %v", e.Username, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
