// Package protocol implements the gateway's framed request/response
// protocol. One core handler serves both transports (the stdio stream and
// the HTTP listener), so error codes and framing cannot drift between them.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/medbridge-ai/medgate/generation"
	"github.com/medbridge-ai/medgate/logger"
	"github.com/medbridge-ai/medgate/registry"
	"github.com/medbridge-ai/medgate/routing"
	"github.com/medbridge-ai/medgate/types"
)

// ProtocolVersion is negotiated at initialize time.
const ProtocolVersion = "2025-03-26"

// Supported methods.
const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
	MethodPing       = "ping"
	MethodRoute      = "route"
)

// Server is the transport-independent protocol core.
type Server struct {
	Name    string
	Version string

	dispatcher *registry.Dispatcher
	engine     *routing.Engine
	backends   *generation.Router
	log        *logger.Logger
}

// NewServer wires the protocol core.
func NewServer(name, version string, d *registry.Dispatcher, e *routing.Engine, b *generation.Router) *Server {
	return &Server{
		Name:       name,
		Version:    version,
		dispatcher: d,
		engine:     e,
		backends:   b,
		log:        logger.Get().WithField("component", "protocol"),
	}
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      serverInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

type toolsListResult struct {
	Tools []types.ToolDefinition `json:"tools"`
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type routeParams struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type routeResult struct {
	SessionID string                `json:"session_id"`
	Decision  types.RoutingDecision `json:"decision"`
	Output    string                `json:"output,omitempty"`
	// GenerationError reports a backend failure after a successful routing
	// decision; the decision itself stands.
	GenerationError string `json:"generation_error,omitempty"`
}

// Handle processes one request frame and always produces a response frame.
// It never panics a connection away: every failure path maps to a
// structured error.
func (s *Server) Handle(ctx context.Context, req *types.Request) *types.Response {
	if req.JSONRPC != types.Version {
		return types.NewErrorResponse(req.ID, types.CodeInvalidRequest,
			fmt.Sprintf("unsupported protocol version tag %q", req.JSONRPC))
	}

	switch req.Method {
	case MethodInitialize:
		return s.handleInitialize(req)
	case MethodToolsList:
		return s.handleToolsList(req)
	case MethodToolsCall:
		return s.handleToolsCall(ctx, req)
	case MethodPing:
		return s.mustResponse(req.ID, map[string]any{})
	case MethodRoute:
		return s.handleRoute(ctx, req)
	default:
		return types.NewErrorResponse(req.ID, types.CodeMethodNotFound,
			fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) handleInitialize(req *types.Request) *types.Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return types.NewErrorResponse(req.ID, types.CodeInvalidParams, "malformed initialize params")
		}
	}
	s.log.Info("client initialized", map[string]interface{}{
		"client":          params.ClientInfo.Name,
		"clientVersion":   params.ClientInfo.Version,
		"protocolVersion": params.ProtocolVersion,
	})
	return s.mustResponse(req.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      serverInfo{Name: s.Name, Version: s.Version},
		Capabilities: map[string]any{
			"tools":   map[string]any{},
			"routing": map[string]any{},
		},
	})
}

func (s *Server) handleToolsList(req *types.Request) *types.Response {
	return s.mustResponse(req.ID, toolsListResult{Tools: s.dispatcher.ListTools()})
}

func (s *Server) handleToolsCall(ctx context.Context, req *types.Request) *types.Response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return types.NewErrorResponse(req.ID, types.CodeInvalidParams, "tools/call requires a tool name")
	}

	inv := types.ToolInvocation{
		Name:          params.Name,
		Arguments:     params.Arguments,
		CorrelationID: correlationID(req.ID),
	}
	result, rpcErr := s.dispatcher.Invoke(ctx, inv)
	if rpcErr != nil {
		return &types.Response{JSONRPC: types.Version, ID: req.ID, Error: rpcErr}
	}
	return s.mustResponse(req.ID, result)
}

// Accept performs the order-sensitive part of a frame synchronously and
// returns a completion for the remaining work. The stream transport calls
// this from its read loop: the routing decision for a `route` frame is
// taken before the next frame is read, so a sensitive request confirms its
// session before any later frame in that session is decided. Generation and
// tool dispatch stay inside the completion and may run concurrently.
func (s *Server) Accept(ctx context.Context, req *types.Request) func() *types.Response {
	if req.JSONRPC != types.Version || req.Method != MethodRoute {
		return func() *types.Response { return s.Handle(ctx, req) }
	}
	params, errResp := s.parseRouteParams(req)
	if errResp != nil {
		return func() *types.Response { return errResp }
	}
	decision := s.engine.Decide(params.SessionID, params.Text)
	return func() *types.Response { return s.finishRoute(ctx, req.ID, params, decision) }
}

func (s *Server) parseRouteParams(req *types.Request) (routeParams, *types.Response) {
	var params routeParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Text == "" {
		return params, types.NewErrorResponse(req.ID, types.CodeInvalidParams, "route requires text")
	}
	if params.SessionID == "" {
		params.SessionID = uuid.NewString()
	}
	return params, nil
}

func (s *Server) handleRoute(ctx context.Context, req *types.Request) *types.Response {
	params, errResp := s.parseRouteParams(req)
	if errResp != nil {
		return errResp
	}
	decision := s.engine.Decide(params.SessionID, params.Text)
	return s.finishRoute(ctx, req.ID, params, decision)
}

// finishRoute runs the generation backend, if the decision selected one,
// and assembles the result frame.
func (s *Server) finishRoute(ctx context.Context, id interface{}, params routeParams, decision types.RoutingDecision) *types.Response {
	res := routeResult{SessionID: params.SessionID, Decision: decision}

	if backend, err := s.backends.For(decision); err == nil {
		out, genErr := backend.Generate(ctx, decision, params.Text)
		if genErr != nil {
			s.log.Error("generation failed", genErr, map[string]interface{}{
				"session": params.SessionID, "kind": decision.Kind,
			})
			res.GenerationError = "generation backend failed"
		} else {
			res.Output = out
		}
	}
	return s.mustResponse(id, res)
}

// mustResponse marshals a result; a marshalling failure degrades to an
// internal error rather than a broken frame.
func (s *Server) mustResponse(id interface{}, result interface{}) *types.Response {
	resp, err := types.NewResponse(id, result)
	if err != nil {
		s.log.Error("marshal response", err, nil)
		return types.NewErrorResponse(id, types.CodeInternalError, "internal error")
	}
	return resp
}

func correlationID(id interface{}) string {
	if id == nil {
		return uuid.NewString()
	}
	return fmt.Sprintf("%v", id)
}
