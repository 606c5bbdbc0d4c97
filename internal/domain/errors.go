package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode identifies a category of launcher failure.
type ErrorCode string

const (
	// Configuration errors: nothing was launched.
	CodeUnresolvedTarget ErrorCode = "UNRESOLVED_TARGET"
	CodeInvalidPort      ErrorCode = "INVALID_PORT"

	// Process lifecycle errors
	CodeLaunchFailed      ErrorCode = "LAUNCH_FAILED"
	CodeAlreadyRunning    ErrorCode = "ALREADY_RUNNING"
	CodeUnexpectedExit    ErrorCode = "UNEXPECTED_EXIT"
	CodeTerminationFailed ErrorCode = "TERMINATION_FAILED"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Window errors
	CodeWindowCreate ErrorCode = "WINDOW_CREATE_FAILED"
)

// Sentinels for errors.Is. A *SupervisorError matches the sentinel of its code.
var (
	ErrUnresolvedTarget     = errors.New("backend target unresolved for this platform")
	ErrInvalidPort          = errors.New("invalid backend port")
	ErrLaunchFailed         = errors.New("backend launch failed")
	ErrAlreadyRunning       = errors.New("backend already running")
	ErrUnexpectedExit       = errors.New("backend exited unexpectedly")
	ErrTerminationFailed    = errors.New("backend termination failed")
	ErrInvalidTransition    = errors.New("invalid supervisor state transition")
	ErrWindowCreate         = errors.New("window creation failed")
	ErrTerminateUnsupported = errors.New("graceful terminate not supported on this platform")
)

var sentinels = map[ErrorCode]error{
	CodeUnresolvedTarget:  ErrUnresolvedTarget,
	CodeInvalidPort:       ErrInvalidPort,
	CodeLaunchFailed:      ErrLaunchFailed,
	CodeAlreadyRunning:    ErrAlreadyRunning,
	CodeUnexpectedExit:    ErrUnexpectedExit,
	CodeTerminationFailed: ErrTerminationFailed,
	CodeInvalidTransition: ErrInvalidTransition,
	CodeWindowCreate:      ErrWindowCreate,
}

// SupervisorError carries a code, context for troubleshooting and the cause.
type SupervisorError struct {
	Code    ErrorCode
	Message string
	Context map[string]interface{}
	Cause   error
}

// NewError creates a SupervisorError with the given code and message.
func NewError(code ErrorCode, message string) *SupervisorError {
	return &SupervisorError{Code: code, Message: message}
}

// WithContext adds a key/value pair to the error.
func (e *SupervisorError) WithContext(key string, value interface{}) *SupervisorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *SupervisorError) WithCause(cause error) *SupervisorError {
	e.Cause = cause
	return e
}

func (e *SupervisorError) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Code, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, strings.Join(kv, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SupervisorError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel that corresponds to the error's code.
func (e *SupervisorError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// CodeOf returns the code of the first SupervisorError in err's chain.
func CodeOf(err error) ErrorCode {
	var se *SupervisorError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
