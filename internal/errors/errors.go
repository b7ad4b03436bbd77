package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ModelNotFound indicates the structural model file does not exist
	ModelNotFound ErrorCode = "MODEL_NOT_FOUND"
	// ModelInvalid indicates the structural model violates its contract
	ModelInvalid ErrorCode = "MODEL_INVALID"
	// UnsupportedFormat indicates an unknown model or output format
	UnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	// ExtractionFailed indicates source extraction could not complete
	ExtractionFailed ErrorCode = "EXTRACTION_FAILED"
	// ExtractorUnavailable indicates the binary was built without cgo
	ExtractorUnavailable ErrorCode = "EXTRACTOR_UNAVAILABLE"
	// BuildNotFound indicates a stored build id is unknown
	BuildNotFound ErrorCode = "BUILD_NOT_FOUND"
	// StorageFailure indicates the build history database failed
	StorageFailure ErrorCode = "STORAGE_FAILURE"
	// ExportFailed indicates a graph database export failed
	ExportFailed ErrorCode = "EXPORT_FAILED"
	// ConfigInvalid indicates invalid configuration
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
}

// FlowError represents an archflow error with code, message, and suggestions
type FlowError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a FlowError with the default suggested fixes for its code
func New(code ErrorCode, message string, cause error) *FlowError {
	return &FlowError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf creates a FlowError without a cause and a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *FlowError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *FlowError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *FlowError) WithDetails(details interface{}) *FlowError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first FlowError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	ModelNotFound: {
		{
			Type:        RunCommand,
			Command:     "archflow extract . -o model.json",
			Safe:        true,
			Description: "Extract a structural model from source first",
		},
	},
	ExtractorUnavailable: {
		{
			Type:        RunCommand,
			Command:     "CGO_ENABLED=1 go install archflow/cmd/archflow",
			Safe:        true,
			Description: "Rebuild with cgo to enable tree-sitter extraction",
		},
	},
	BuildNotFound: {
		{
			Type:        RunCommand,
			Command:     "archflow builds list",
			Safe:        true,
			Description: "List stored builds",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "archflow config init --force",
			Safe:        false,
			Description: "Rewrite the default configuration",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
