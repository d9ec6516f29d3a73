package types

import (
	"fmt"
	"time"
)

// GatewayError represents a gateway-level failure with a stable
// machine-readable code. It never carries stack traces or credential
// material, so it is safe to surface to clients verbatim.
type GatewayError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Tool      string            `json:"tool,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error [%s]: %s", e.Code, e.Message)
}

// NewGatewayError creates a new gateway error
func NewGatewayError(code, message string) *GatewayError {
	return &GatewayError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]string),
	}
}

// Gateway error codes
const (
	ErrorCodeToolNotFound      = "TOOL_NOT_FOUND"
	ErrorCodeInvalidArguments  = "INVALID_ARGUMENTS"
	ErrorCodeAccessUnavailable = "ACCESS_UNAVAILABLE"
	ErrorCodeUpstreamFailure   = "UPSTREAM_FAILURE"
	ErrorCodeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	ErrorCodeRefreshFailed     = "REFRESH_FAILED"
)
