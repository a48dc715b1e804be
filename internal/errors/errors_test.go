package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New(CommunicationError, "backend not reachable", cause)

	if err.Code != CommunicationError {
		t.Errorf("Code = %v, want %v", err.Code, CommunicationError)
	}
	if err.Message != "backend not reachable" {
		t.Errorf("Message = %q, want %q", err.Message, "backend not reachable")
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
}

func TestGatewayError_Error(t *testing.T) {
	tests := []struct {
		name      string
		err       *GatewayError
		wantParts []string
	}{
		{
			name:      "with cause",
			err:       New(InitializationTimeout, "no answer", errors.New("deadline exceeded")),
			wantParts: []string{"INITIALIZATION_TIMEOUT", "no answer", "deadline exceeded"},
		},
		{
			name:      "without cause",
			err:       New(NoBackendAvailable, "nothing for /a.txt", nil),
			wantParts: []string{"NO_BACKEND_AVAILABLE", "nothing for /a.txt"},
		},
		{
			name:      "with backend",
			err:       ForBackend(PerCallError, "ts", "hover failed", nil),
			wantParts: []string{"PER_CALL_ERROR ts", "hover failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestGatewayError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(InternalError, "something went wrong", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	if New(NotFound, "x", nil).Unwrap() != nil {
		t.Errorf("Unwrap() on error without cause should return nil")
	}
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("initialize: %w", New(NoBackendAvailable, "none", nil))

	if !IsCode(wrapped, NoBackendAvailable) {
		t.Errorf("IsCode(wrapped, NoBackendAvailable) = false, want true")
	}
	if IsCode(wrapped, ConfigError) {
		t.Errorf("IsCode(wrapped, ConfigError) = true, want false")
	}
	if IsCode(errors.New("plain"), InternalError) {
		t.Errorf("IsCode(plain) = true, want false")
	}
	if !errors.Is(wrapped, &GatewayError{Code: NoBackendAvailable}) {
		t.Errorf("errors.Is against code sentinel = false, want true")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(ConfigError); len(fixes) == 0 {
		t.Errorf("GetSuggestedFixes(ConfigError) returned no fixes")
	}
	if fixes := GetSuggestedFixes(PerCallError); fixes != nil {
		t.Errorf("GetSuggestedFixes(PerCallError) = %v, want nil", fixes)
	}
}
