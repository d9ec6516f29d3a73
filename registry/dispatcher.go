package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medbridge-ai/medgate/cache"
	"github.com/medbridge-ai/medgate/connectors"
	"github.com/medbridge-ai/medgate/credential"
	"github.com/medbridge-ai/medgate/logger"
	"github.com/medbridge-ai/medgate/resilience"
	"github.com/medbridge-ai/medgate/types"
)

// Dispatcher validates tool calls against the registry, obtains delegated
// credentials when required, consults the response cache, and invokes the
// matching connector. A connector failure comes back as a tool-level error
// result, never as a transport failure.
type Dispatcher struct {
	registry   *Registry
	creds      *credential.Manager
	cache      *cache.Cache
	connectors connectors.Set
	timeout    time.Duration
	log        *logger.Logger
}

// NewDispatcher wires the dispatcher. timeout is the per-call bound applied
// to every connector invocation.
func NewDispatcher(reg *Registry, creds *credential.Manager, c *cache.Cache, conns connectors.Set, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:   reg,
		creds:      creds,
		cache:      c,
		connectors: conns,
		timeout:    timeout,
		log:        logger.Get().WithField("component", "dispatcher"),
	}
}

// ListTools returns the static catalog verbatim.
func (d *Dispatcher) ListTools() []types.ToolDefinition {
	return d.registry.List()
}

// Invoke runs one tool call. The returned RPCError covers protocol-visible
// failures (unknown tool, bad arguments, access unavailable); a connector
// failure is reported inside the ToolResult instead.
func (d *Dispatcher) Invoke(ctx context.Context, inv types.ToolInvocation) (*types.ToolResult, *types.RPCError) {
	def, ok := d.registry.Get(inv.Name)
	if !ok {
		ge := d.gatewayError(types.ErrorCodeToolNotFound,
			fmt.Sprintf("unknown tool %q", inv.Name), inv)
		return nil, &types.RPCError{Code: types.CodeInvalidParams, Message: ge.Message, Data: ge}
	}
	if err := d.registry.Validate(inv.Name, inv.Arguments); err != nil {
		d.log.Warn("rejected tool call", map[string]interface{}{
			"tool": inv.Name, "correlationId": inv.CorrelationID, "reason": err.Error(),
		})
		ge := d.gatewayError(types.ErrorCodeInvalidArguments, err.Error(), inv)
		return nil, &types.RPCError{Code: types.CodeInvalidParams, Message: ge.Message, Data: ge}
	}

	conn, ok := d.connectors.Get(inv.Name)
	if !ok {
		return nil, &types.RPCError{
			Code:    types.CodeInternalError,
			Message: fmt.Sprintf("no connector registered for tool %q", inv.Name),
		}
	}

	var cred *credential.Credential
	if def.RequiresDelegatedAccess {
		var err error
		cred, err = d.creds.GetToken(ctx, def.Audience)
		if err != nil {
			// Never fall back to an unauthenticated call.
			d.log.Error("credential unavailable", err, map[string]interface{}{
				"tool": inv.Name, "audience": def.Audience,
			})
			ge := credential.AsGatewayError(err)
			ge.Tool = inv.Name
			ge.RequestID = inv.CorrelationID
			return nil, &types.RPCError{
				Code:    types.CodeAccessUnavailable,
				Message: ge.Message,
				Data:    ge,
			}
		}
	}

	key := cache.Key(inv.Name, inv.Arguments)
	value, err := d.cache.GetOrFetch(ctx, key, func(fctx context.Context) ([]byte, error) {
		var raw json.RawMessage
		err := resilience.WithTimeout(fctx, d.timeout, func(tctx context.Context) error {
			var err error
			raw, err = conn.Execute(tctx, inv.Arguments, cred)
			return err
		})
		return raw, err
	})
	if err != nil {
		// The tool ran and failed. Distinguishable from a malformed call.
		code := types.ErrorCodeUpstreamFailure
		if errors.Is(err, resilience.ErrTimeout) {
			code = types.ErrorCodeUpstreamTimeout
		}
		d.log.Error("connector call failed", err, map[string]interface{}{
			"tool": inv.Name, "correlationId": inv.CorrelationID, "code": code,
		})
		ge := d.gatewayError(code, sanitizedMessage(err), inv)
		return types.ErrorResult(fmt.Sprintf("%s: %s", ge.Code, ge.Message)), nil
	}

	return &types.ToolResult{Content: value}, nil
}

// gatewayError builds the coded error carried alongside a failed call.
func (d *Dispatcher) gatewayError(code, message string, inv types.ToolInvocation) *types.GatewayError {
	ge := types.NewGatewayError(code, message)
	ge.Tool = inv.Name
	ge.RequestID = inv.CorrelationID
	return ge
}

// sanitizedMessage strips anything that must not reach a client. Connector
// errors are already credential-free; this guards the timeout and breaker
// wrappers too.
func sanitizedMessage(err error) string {
	switch {
	case errors.Is(err, resilience.ErrTimeout):
		return "upstream did not respond in time"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "upstream temporarily unavailable"
	default:
		return err.Error()
	}
}
