package streakd

import "errors"

var (
	// ErrAlreadyProcessed is returned when the same batch was already applied
	// for its day.
	ErrAlreadyProcessed = errors.New("streakd: batch already processed")
	// ErrDayConflict is returned when a different batch was already applied
	// for the same day. Re-running requires force.
	ErrDayConflict = errors.New("streakd: day already processed with a different batch")
	// ErrDayRequired is returned when a batch carries no day.
	ErrDayRequired = errors.New("streakd: batch day required")
)
