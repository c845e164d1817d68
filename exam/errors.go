package exam

import (
	"errors"
	"fmt"
)

// ErrEmptyPool is returned when no question matches the requested subjects and chapters.
var ErrEmptyPool = errors.New("no questions found for the selected subjects and chapters")

// ErrParentExamNotFound is returned when saving versions under an unknown exam template.
var ErrParentExamNotFound = errors.New("parent exam not found")

// ConfigurationError reports a generation request that cannot be run as given
// (no subjects, no positive point target, non-positive version count).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid generation request: " + e.Reason
}

// UnsatisfiableTargetError names the first subject whose point target could not be met.
type UnsatisfiableTargetError struct {
	SubjectID int
	Target    float64
}

func (e *UnsatisfiableTargetError) Error() string {
	return fmt.Sprintf("cannot build a combination of %g points for subject %d: not enough questions, or point values do not add up",
		e.Target, e.SubjectID)
}

// ErrSavedExamNotFound is returned when a saved subject does not exist.
var ErrSavedExamNotFound = errors.New("saved subject not found")
