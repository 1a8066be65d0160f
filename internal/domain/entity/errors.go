package entity

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a run failure for retry and reporting policy.
type ErrorKind string

const (
	// ErrorKindValidation marks user-correctable input problems. Never retried.
	ErrorKindValidation ErrorKind = "VALIDATION"
	// ErrorKindExternalTool marks probe/extraction/inference engine failures,
	// which may be transient. The caller's retry policy decides.
	ErrorKindExternalTool ErrorKind = "EXTERNAL_TOOL"
	// ErrorKindIntegrity marks a broken pipeline invariant. Always fatal.
	ErrorKindIntegrity ErrorKind = "INTEGRITY"
	// ErrorKindResource marks workspace create/cleanup failures. Logged,
	// never allowed to mask a computed result.
	ErrorKindResource ErrorKind = "RESOURCE"
)

// Sentinel causes, matched with errors.Is through AnalysisError.Unwrap.
var (
	ErrNoVideoStream        = errors.New("no video stream found")
	ErrInvalidTargetCount   = errors.New("target frame count must be positive")
	ErrSourceNotFound       = errors.New("video source not found")
	ErrNoFramesProduced     = errors.New("frame extraction produced no frames")
	ErrShortDurationLimit   = errors.New("short video exceeds duration limit")
	ErrSequenceLengthBroken = errors.New("landmark sequence length mismatch")
)

// AnalysisError pairs a failure with its kind so the coordinator can map
// it onto retry and notification policy.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

func NewValidationError(message string, cause error) *AnalysisError {
	return &AnalysisError{Kind: ErrorKindValidation, Message: message, Err: cause}
}

func NewExternalToolError(message string, cause error) *AnalysisError {
	return &AnalysisError{Kind: ErrorKindExternalTool, Message: message, Err: cause}
}

func NewIntegrityError(message string, cause error) *AnalysisError {
	return &AnalysisError{Kind: ErrorKindIntegrity, Message: message, Err: cause}
}

func NewResourceError(message string, cause error) *AnalysisError {
	return &AnalysisError{Kind: ErrorKindResource, Message: message, Err: cause}
}

// KindOf extracts the classification of err. Unclassified errors are
// treated as external-tool failures so the retry loop gets a chance.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrorKindExternalTool
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == ErrorKindExternalTool
}
