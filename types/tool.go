package types

import "encoding/json"

// ToolDefinition describes one invocable tool. Definitions are loaded once
// at startup and never mutated afterwards, so the catalog a client sees at
// initialize time is the catalog it sees for the life of the session.
type ToolDefinition struct {
	// Name uniquely identifies the tool.
	Name string `json:"name" yaml:"name"`
	// Description is the human-readable summary advertised to clients.
	Description string `json:"description" yaml:"description"`
	// InputSchema is a JSON Schema document describing the argument map.
	InputSchema json.RawMessage `json:"inputSchema" yaml:"-"`
	// RequiresDelegatedAccess marks tools that read patient-specific
	// records and therefore need a delegated access token before dispatch.
	RequiresDelegatedAccess bool `json:"requiresDelegatedAccess" yaml:"requires_delegated_access"`
	// Audience names the credential audience for delegated tools.
	Audience string `json:"-" yaml:"audience"`
}

// ToolInvocation is a single call: created per request, discarded after the
// response is sent.
type ToolInvocation struct {
	Name          string                 `json:"name"`
	Arguments     map[string]interface{} `json:"arguments"`
	CorrelationID string                 `json:"correlationId"`
}

// ToolResult is the outcome of running a tool. A connector failure is
// reported here with IsError set, not as a protocol-level error, so the
// client can tell "the tool ran and failed" from "the call was malformed".
type ToolResult struct {
	Content json.RawMessage `json:"content,omitempty"`
	IsError bool            `json:"isError,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ErrorResult wraps a connector failure message into a ToolResult.
func ErrorResult(message string) *ToolResult {
	return &ToolResult{IsError: true, Message: message}
}
