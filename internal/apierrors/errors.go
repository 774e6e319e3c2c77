// Package apierrors defines the typed error taxonomy shared by every
// supervisor and orchestrator operation, so failures can be propagated
// end-to-end without losing their code or remediation hint.
package apierrors

import "fmt"

// Code is a stable, machine-checkable error category.
type Code string

const (
	CodeModelNotFound          Code = "MODEL_NOT_FOUND"
	CodePortInUse              Code = "PORT_IN_USE"
	CodeBinaryError            Code = "BINARY_ERROR"
	CodeInsufficientResources  Code = "INSUFFICIENT_RESOURCES"
	CodeFileSystemError        Code = "FILE_SYSTEM_ERROR"
	CodeChecksumError          Code = "CHECKSUM_ERROR"
	CodeDownloadFailed         Code = "DOWNLOAD_FAILED"
	CodeServerError            Code = "SERVER_ERROR"
)

// Reason is a finer-grained tag attached to SERVER_ERROR for the handful
// of distinct causes §4 and §7 call out by name (ALREADY_RUNNING,
// STARTUP_TIMEOUT, HEALTH_TIMEOUT, ...). It rides in Details["reason"].
type Reason string

const (
	ReasonAlreadyRunning    Reason = "ALREADY_RUNNING"
	ReasonNoConfig          Reason = "NO_CONFIG"
	ReasonStartupTimeout    Reason = "STARTUP_TIMEOUT"
	ReasonHealthTimeout     Reason = "HEALTH_TIMEOUT"
	ReasonSpawnFailed       Reason = "SPAWN_FAILED"
	ReasonCannotOffload     Reason = "CANNOT_OFFLOAD"
	ReasonBusy              Reason = "BUSY"
	ReasonSavedStatePending Reason = "SAVED_STATE_PENDING"
	ReasonUnknownServer     Reason = "UNKNOWN_SERVER"
	ReasonUnknownGeneration Reason = "UNKNOWN_GENERATION"
)

// ServerError is the typed error carried end-to-end through supervisor and
// orchestrator operations. A wrapper at the process boundary (the HTTP
// control API) converts it to {code, title, message, remediation} for
// display; everything in between passes it through unwrapped via errors.As.
type ServerError struct {
	Code       Code
	Message    string
	Suggestion string
	Details    map[string]any
	Cause      error
}

func (e *ServerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServerError) Unwrap() error { return e.Cause }

// New builds a ServerError with the given code and message.
func New(code Code, message string) *ServerError {
	return &ServerError{Code: code, Message: message}
}

// Newf builds a ServerError with a formatted message.
func Newf(code Code, format string, args ...any) *ServerError {
	return &ServerError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to an underlying error, preserving it as
// Cause so errors.Is/errors.As keep working against the original.
func Wrap(code Code, message string, cause error) *ServerError {
	return &ServerError{Code: code, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details merged in.
func (e *ServerError) WithDetails(details map[string]any) *ServerError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ServerError{Code: e.Code, Message: e.Message, Suggestion: e.Suggestion, Details: merged, Cause: e.Cause}
}

// WithSuggestion returns a copy of e with a remediation suggestion set.
func (e *ServerError) WithSuggestion(s string) *ServerError {
	return &ServerError{Code: e.Code, Message: e.Message, Suggestion: s, Details: e.Details, Cause: e.Cause}
}

// Server builds a SERVER_ERROR tagged with a Reason, the catch-all code for
// supervisor/orchestrator failures that aren't one of the named categories.
func Server(reason Reason, message string) *ServerError {
	return &ServerError{
		Code:    CodeServerError,
		Message: message,
		Details: map[string]any{"reason": reason},
	}
}

func Serverf(reason Reason, format string, args ...any) *ServerError {
	return Server(reason, fmt.Sprintf(format, args...))
}

// ReasonOf extracts the Reason tag from a ServerError, if present.
func ReasonOf(err error) (Reason, bool) {
	se, ok := err.(*ServerError)
	if !ok || se.Details == nil {
		return "", false
	}
	r, ok := se.Details["reason"].(Reason)
	return r, ok
}

// Display is the process-boundary shape handed to the HTTP control API and,
// eventually, any UI: {code, title, message, remediation}.
type Display struct {
	Code        Code   `json:"code"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

// ToDisplay converts any error into the UI-facing shape. Typed ServerErrors
// keep their code and suggestion; unknown errors are wrapped as SERVER_ERROR.
func ToDisplay(err error) Display {
	if err == nil {
		return Display{}
	}
	se, ok := err.(*ServerError)
	if !ok {
		return Display{
			Code:    CodeServerError,
			Title:   "Unexpected error",
			Message: err.Error(),
		}
	}
	return Display{
		Code:        se.Code,
		Title:       title(se.Code),
		Message:     se.Error(),
		Remediation: se.Suggestion,
	}
}

func title(c Code) string {
	switch c {
	case CodeModelNotFound:
		return "Model not found"
	case CodePortInUse:
		return "Port already in use"
	case CodeBinaryError:
		return "Binary unavailable"
	case CodeInsufficientResources:
		return "Insufficient resources"
	case CodeFileSystemError:
		return "File system error"
	case CodeChecksumError:
		return "Checksum verification failed"
	case CodeDownloadFailed:
		return "Download failed"
	default:
		return "Server error"
	}
}
