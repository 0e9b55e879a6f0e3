package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/julianstephens/habitnudge/internal/constants"
)

var (
	// ErrTimeZone marks a zone string that could not be loaded
	ErrTimeZone = stderrors.New("time zone resolution failed")
	// ErrStoreRead marks a failed read of a candidate's data
	ErrStoreRead = stderrors.New("store read failed")
	// ErrStoreWrite marks a failed write-back of a sent timestamp
	ErrStoreWrite = stderrors.New("store write failed")
	// ErrDelivery marks a failed push to the chat transport
	ErrDelivery = stderrors.New("delivery failed")
	// ErrInvalidSchedule marks a stored schedule or user row that cannot be parsed
	ErrInvalidSchedule = stderrors.New("invalid schedule")
	// ErrLeaseHeld is returned when another pass holds an engine's lease
	ErrLeaseHeld = stderrors.New("lease held by another pass")
	// ErrNotFound is returned by stores when a row does not exist
	ErrNotFound = stderrors.New("not found")
)

// New, Is, As and Join are re-exported so callers need one errors import.
func New(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// TimeZoneError reports the zone that failed to load.
type TimeZoneError struct {
	Zone string
	Err  error
}

func (e *TimeZoneError) Error() string {
	return fmt.Sprintf("invalid timezone %q: %v", e.Zone, e.Err)
}

func (e *TimeZoneError) Unwrap() []error {
	return []error{ErrTimeZone, e.Err}
}

// CandidateError is the failure recorded for one schedule or user in a pass.
type CandidateError struct {
	Key  string
	Kind constants.FailureKind
	Err  error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Key, e.Kind, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

// Classify maps an error to the failure kind it belongs to.
func Classify(err error) constants.FailureKind {
	var ce *CandidateError
	switch {
	case stderrors.As(err, &ce):
		return ce.Kind
	case stderrors.Is(err, ErrInvalidSchedule):
		return constants.FailureInvalidSchedule
	case stderrors.Is(err, ErrStoreRead):
		return constants.FailureStoreRead
	case stderrors.Is(err, ErrStoreWrite):
		return constants.FailureStoreWrite
	case stderrors.Is(err, ErrDelivery):
		return constants.FailureDelivery
	default:
		return constants.FailureUnexpected
	}
}

// Candidate wraps err for the given candidate key, classifying it.
func Candidate(key string, err error) *CandidateError {
	return &CandidateError{Key: key, Kind: Classify(err), Err: err}
}

// Wrap joins a sentinel kind with the underlying cause, keeping both
// reachable through Is.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w", kind, fmt.Errorf(format, args...))
}
