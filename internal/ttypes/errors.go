package ttypes

import (
	"errors"
	"fmt"
)

// Common narration errors
var (
	// ErrNothingToExport indicates export was requested before any successful narration
	ErrNothingToExport = errors.New("nothing to export: no narration has completed yet")

	// ErrSuperseded indicates a newer narration run replaced this one
	ErrSuperseded = errors.New("narration superseded by a newer run")

	// ErrNoCredential indicates no API key is available
	ErrNoCredential = errors.New("no API key selected")

	// ErrEncoderUnavailable indicates the MP3 encoder binary cannot be found
	ErrEncoderUnavailable = errors.New("mp3 encoder unavailable")

	// ErrEmptyText indicates there is nothing to narrate
	ErrEmptyText = errors.New("text is empty")
)

// ErrorKind classifies narration failures.
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION"
	KindTransient      ErrorKind = "TRANSIENT"
	KindQuota          ErrorKind = "QUOTA_EXCEEDED"
	KindConfiguration  ErrorKind = "CONFIGURATION"
	KindContentBlocked ErrorKind = "CONTENT_BLOCKED"
	KindDecoding       ErrorKind = "DECODING"
	KindGeneration     ErrorKind = "GENERATION"
)

// Report is the user facing category of a failure.
type Report int

const (
	// ReportGeneric means "try shorter text or a different voice"
	ReportGeneric Report = iota
	// ReportQuota means "use your own credentials"
	ReportQuota
	// ReportConfiguration means "reconnect credentials"
	ReportConfiguration
)

// NarrationError represents a narration failure with additional context
type NarrationError struct {
	Kind    ErrorKind
	Message string
	Cause   error
	Context map[string]interface{}
}

// NewError creates a new narration error
func NewError(kind ErrorKind, message string, cause error) *NarrationError {
	return &NarrationError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *NarrationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *NarrationError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *NarrationError) WithContext(key string, value interface{}) *NarrationError {
	e.Context[key] = value
	return e
}

// IsRetryable returns true if the request may succeed when repeated
func (e *NarrationError) IsRetryable() bool {
	switch e.Kind {
	case KindTransient, KindQuota:
		return true
	default:
		return false
	}
}

// Report maps the error to the guidance shown to the user.
func (e *NarrationError) Report() Report {
	switch e.Kind {
	case KindQuota:
		return ReportQuota
	case KindConfiguration:
		return ReportConfiguration
	default:
		return ReportGeneric
	}
}

// KindOf returns the kind of the first NarrationError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ne *NarrationError
	if errors.As(err, &ne) {
		return ne.Kind, true
	}
	return "", false
}

// ReportOf returns the user facing category for any error.
func ReportOf(err error) Report {
	if errors.Is(err, ErrNoCredential) {
		return ReportConfiguration
	}
	var ne *NarrationError
	if errors.As(err, &ne) {
		return ne.Report()
	}
	return ReportGeneric
}

// Guidance returns the actionable message for a report category.
func Guidance(r Report) string {
	switch r {
	case ReportQuota:
		return "Narration limit reached. To continue crafting Urdu stories, switch to your own API key with `dastaan key`."
	case ReportConfiguration:
		return "Your API key configuration is invalid. Reconnect it with `dastaan key` or check your Google Cloud project settings."
	default:
		return "Failed to generate narration. Please try a shorter text or a different voice."
	}
}
