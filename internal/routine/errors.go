package routine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidDate is returned for unparsable or nonsensical date input.
	ErrInvalidDate = errors.New("invalid date")
	// ErrUnknownSection is returned when a section name is not one of the fixed routine sections.
	ErrUnknownSection = errors.New("unknown routine section")
	// ErrInvalidItem is returned when an item id is empty after sanitizing.
	ErrInvalidItem = errors.New("invalid routine item")
	// ErrInvalidCadence is returned for cadence settings that cannot be interpreted.
	ErrInvalidCadence = errors.New("invalid cadence configuration")
	// ErrDuplicateRoutine matches any *DuplicateRoutineError.
	ErrDuplicateRoutine = errors.New("routine already exists for this date")
)

// DuplicateRoutineError reports that a routine already exists for the same user and day.
type DuplicateRoutineError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateRoutineError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateRoutine.Error(), e.ExistingID)
}

// Is lets errors.Is(err, ErrDuplicateRoutine) match.
func (e *DuplicateRoutineError) Is(target error) bool {
	return target == ErrDuplicateRoutine
}
