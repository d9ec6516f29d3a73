package types

import "encoding/json"

// jsonrpc frame types for the gateway wire protocol.
// Both transports (stdio stream and HTTP request/response) exchange
// exactly these frames, so the protocol cannot drift between them.

// Version is the JSON-RPC version tag every frame must carry.
const Version = "2.0"

// Request is a single protocol request frame.
type Request struct {
	// JSONRPC specifies the version of the JSON-RPC protocol. MUST be "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID is the correlation id established by the client. Echoed verbatim
	// in the response.
	ID interface{} `json:"id,omitempty"`
	// Method is the name of the method to be invoked.
	Method string `json:"method"`
	// Params holds the parameter values for the invocation. Stored as raw
	// JSON to be decoded by the method handler.
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is a single protocol response frame. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the structured error object carried in a response frame.
// Data carries the coded GatewayError when the failure has one.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes, plus gateway-specific codes in the
// implementation-defined range.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeAccessUnavailable = -32001
)

// NewResponse builds a success response echoing the request id. The result
// is marshalled here so handlers only deal in typed values.
func NewResponse(id interface{}, result interface{}) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response echoing the request id.
func NewErrorResponse(id interface{}, code int, message string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}
