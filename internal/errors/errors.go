package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all gateway failure modes
type ErrorCode string

const (
	// ConfigError indicates a malformed backend or gateway configuration
	ConfigError ErrorCode = "CONFIG_ERROR"
	// InstallationError indicates a local backend failed its install check
	InstallationError ErrorCode = "INSTALLATION_ERROR"
	// CommunicationError indicates a backend's streams could not be opened
	CommunicationError ErrorCode = "COMMUNICATION_ERROR"
	// InitializationTimeout indicates the initialize handshake did not answer in time
	InitializationTimeout ErrorCode = "INITIALIZATION_TIMEOUT"
	// InitializationError indicates the backend rejected the initialize handshake
	InitializationError ErrorCode = "INITIALIZATION_ERROR"
	// NoBackendAvailable indicates no backend reached the initialized state for a path
	NoBackendAvailable ErrorCode = "NO_BACKEND_AVAILABLE"
	// PerCallError indicates a single backend call failed or timed out
	PerCallError ErrorCode = "PER_CALL_ERROR"
	// NotFound indicates an unknown backend id or registry key
	NotFound ErrorCode = "NOT_FOUND"
	// InvalidParams indicates a malformed caller request
	InvalidParams ErrorCode = "INVALID_PARAMS"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// RPCErrorCode is the JSON-RPC error code reported to callers for gateway errors.
const RPCErrorCode = -27000

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// EditConfig suggests editing a configuration file
	EditConfig FixActionType = "edit-config"
	// InstallTool suggests installing a tool
	InstallTool FixActionType = "install-tool"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	Path        string        `json:"path,omitempty"`
	Tool        string        `json:"tool,omitempty"`
}

// GatewayError represents a gateway error with code, message, and suggestions
type GatewayError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Backend        string      `json:"backend,omitempty"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a GatewayError with the default fixes for its code.
func New(code ErrorCode, message string, cause error) *GatewayError {
	return &GatewayError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// ForBackend creates a GatewayError attributed to a single backend.
func ForBackend(code ErrorCode, backend, message string, cause error) *GatewayError {
	e := New(code, message, cause)
	e.Backend = backend
	return e
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	prefix := string(e.Code)
	if e.Backend != "" {
		prefix += " " + e.Backend
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *GatewayError) Unwrap() error {
	return e.cause
}

// Is matches another GatewayError by code so errors.Is works against
// code-only sentinels such as &GatewayError{Code: NotFound}.
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// WithDetails adds details to the error
func (e *GatewayError) WithDetails(details interface{}) *GatewayError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first GatewayError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		return ge.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given gateway code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	ConfigError: {
		{
			Type:        EditConfig,
			Path:        ".lsgw/config.json",
			Description: "Fix the backend configuration",
		},
		{
			Type:        RunCommand,
			Command:     "lsgw doctor",
			Safe:        true,
			Description: "Validate configuration and backends",
		},
	},
	InstallationError: {
		{
			Type:        RunCommand,
			Command:     "lsgw install ${backend}",
			Description: "Record the backend installation",
		},
	},
	CommunicationError: {
		{
			Type:        RunCommand,
			Command:     "lsgw doctor",
			Safe:        true,
			Description: "Check backend reachability",
		},
	},
	NoBackendAvailable: {
		{
			Type:        RunCommand,
			Command:     "lsgw backends list",
			Safe:        true,
			Description: "List configured backends and their language patterns",
		},
	},
	InitializationTimeout: {
		{
			Type:        RunCommand,
			Command:     "lsgw doctor --verbose",
			Safe:        true,
			Description: "Inspect backend startup logs",
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
