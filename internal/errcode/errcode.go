package errcode

import (
	"errors"
	"fmt"
	"time"
)

// Stable machine-readable codes carried on client-facing failures. Handlers
// map these straight onto response bodies, so the strings are part of the
// wire contract and never change.
const (
	BadRequest            = "BAD_REQUEST"
	NotFound              = "NOT_FOUND"
	NoLocation            = "NO_LOCATION"
	TooFar                = "TOO_FAR"
	TooEarly              = "TOO_EARLY"
	AlreadyTaken          = "ALREADY_TAKEN"
	BeingExtracted        = "BEING_EXTRACTED"
	Expired               = "EXPIRED"
	NotSpawned            = "NOT_SPAWNED"
	NotAvailable          = "NOT_AVAILABLE"
	NotExtracting         = "NOT_EXTRACTING"
	ExtractionNotComplete = "EXTRACTION_NOT_COMPLETE"
	Conflict              = "CONFLICT"
	Internal              = "INTERNAL_ERROR"
)

// Error is a coded failure. Precondition failures carry the measurement that
// produced them so clients can show "12m too far" or a countdown instead of
// a bare rejection.
type Error struct {
	Code    string
	Message string

	// DistanceMeters is set on TOO_FAR responses.
	DistanceMeters float64

	// Remaining is set on TOO_EARLY / EXTRACTION_NOT_COMPLETE responses.
	Remaining time.Duration

	// Reverted is set when a failed completion pushed the entity back into
	// the field.
	Reverted bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a coded error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// TooFarError reports a failed distance precondition.
func TooFarError(distance, limit float64) *Error {
	return &Error{
		Code:           TooFar,
		Message:        fmt.Sprintf("distance %.1fm exceeds %.1fm", distance, limit),
		DistanceMeters: distance,
	}
}

// NotReadyError reports a timing precondition with the remaining wait.
func NotReadyError(code string, remaining time.Duration) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf("%.0fs remaining", remaining.Seconds()),
		Remaining: remaining,
	}
}

// CodeOf extracts the code from err, or INTERNAL_ERROR for uncoded errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return CodeOf(err) == code
}
