package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbridge-ai/medgate/cache"
	"github.com/medbridge-ai/medgate/connectors"
	"github.com/medbridge-ai/medgate/credential"
	"github.com/medbridge-ai/medgate/types"
)

type fakeConnector struct {
	calls    int64
	result   json.RawMessage
	err      error
	delay    time.Duration
	lastCred *credential.Credential
}

func (f *fakeConnector) Execute(ctx context.Context, args map[string]interface{}, cred *credential.Credential) (json.RawMessage, error) {
	atomic.AddInt64(&f.calls, 1)
	f.lastCred = cred
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type staticRefresher struct {
	err error
}

func (s *staticRefresher) Refresh(ctx context.Context, audience string, prev *credential.Credential) (*credential.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &credential.Credential{Token: "tok", Audience: audience, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newDispatcher(t *testing.T, conns connectors.Set, refresher credential.Refresher) *Dispatcher {
	t.Helper()
	reg, err := New(DefaultCatalog())
	require.NoError(t, err)
	if refresher == nil {
		refresher = &staticRefresher{}
	}
	return NewDispatcher(reg, credential.NewManager(refresher), cache.New(time.Minute), conns, time.Second)
}

func TestInvokeUnknownTool(t *testing.T) {
	d := newDispatcher(t, connectors.Set{}, nil)
	_, rpcErr := d.Invoke(context.Background(), types.ToolInvocation{Name: "no_such_tool"})

	require.NotNil(t, rpcErr)
	assert.Equal(t, types.CodeInvalidParams, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "unknown tool")
}

func TestInvokeRejectsBadArguments(t *testing.T) {
	conn := &fakeConnector{result: json.RawMessage(`{}`)}
	d := newDispatcher(t, connectors.Set{"search_literature": conn}, nil)

	_, rpcErr := d.Invoke(context.Background(), types.ToolInvocation{
		Name:      "search_literature",
		Arguments: map[string]interface{}{"max_results": 5}, // query missing
	})
	require.NotNil(t, rpcErr)
	assert.Equal(t, types.CodeInvalidParams, rpcErr.Code)
	assert.Zero(t, atomic.LoadInt64(&conn.calls), "connector must not run")
}

func TestInvokeSuccessAndCacheIdempotence(t *testing.T) {
	conn := &fakeConnector{result: json.RawMessage(`{"ids":[1,2,3]}`)}
	d := newDispatcher(t, connectors.Set{"search_literature": conn}, nil)
	inv := types.ToolInvocation{
		Name:      "search_literature",
		Arguments: map[string]interface{}{"query": "metformin"},
	}

	first, rpcErr := d.Invoke(context.Background(), inv)
	require.Nil(t, rpcErr)
	require.False(t, first.IsError)

	second, rpcErr := d.Invoke(context.Background(), inv)
	require.Nil(t, rpcErr)

	assert.Equal(t, first.Content, second.Content, "byte-identical within TTL")
	assert.Equal(t, int64(1), atomic.LoadInt64(&conn.calls), "cache hit skips the connector")
}

func TestInvokeConnectorFailureIsToolLevel(t *testing.T) {
	conn := &fakeConnector{err: errors.New("upstream returned 502")}
	d := newDispatcher(t, connectors.Set{"search_literature": conn}, nil)

	result, rpcErr := d.Invoke(context.Background(), types.ToolInvocation{
		Name:      "search_literature",
		Arguments: map[string]interface{}{"query": "metformin"},
	})
	require.Nil(t, rpcErr, "connector failure is not a protocol error")
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Message, types.ErrorCodeUpstreamFailure)
}

func TestInvokeConnectorTimeout(t *testing.T) {
	conn := &fakeConnector{result: json.RawMessage(`{}`), delay: 5 * time.Second}
	d := newDispatcher(t, connectors.Set{"search_literature": conn}, nil)

	result, rpcErr := d.Invoke(context.Background(), types.ToolInvocation{
		Name:      "search_literature",
		Arguments: map[string]interface{}{"query": "metformin"},
	})
	require.Nil(t, rpcErr)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Message, types.ErrorCodeUpstreamTimeout)
}

func TestInvokeDelegatedToolGetsCredential(t *testing.T) {
	conn := &fakeConnector{result: json.RawMessage(`{"resourceType":"Patient"}`)}
	d := newDispatcher(t, connectors.Set{"lookup_patient_record": conn}, nil)

	result, rpcErr := d.Invoke(context.Background(), types.ToolInvocation{
		Name:      "lookup_patient_record",
		Arguments: map[string]interface{}{"patient_id": "p-100"},
	})
	require.Nil(t, rpcErr)
	require.False(t, result.IsError)
	require.NotNil(t, conn.lastCred)
	assert.Equal(t, "tok", conn.lastCred.Token)
}

func TestInvokeAccessUnavailable(t *testing.T) {
	conn := &fakeConnector{result: json.RawMessage(`{}`)}
	d := newDispatcher(t, connectors.Set{"lookup_patient_record": conn},
		&staticRefresher{err: errors.New("token endpoint down")})

	_, rpcErr := d.Invoke(context.Background(), types.ToolInvocation{
		Name:      "lookup_patient_record",
		Arguments: map[string]interface{}{"patient_id": "p-100"},
	})
	require.NotNil(t, rpcErr)
	assert.Equal(t, types.CodeAccessUnavailable, rpcErr.Code)
	assert.Zero(t, atomic.LoadInt64(&conn.calls), "never falls back to an unauthenticated call")
}

func TestInvokeErrorsCarryCodedData(t *testing.T) {
	d := newDispatcher(t, connectors.Set{}, nil)

	_, rpcErr := d.Invoke(context.Background(), types.ToolInvocation{
		Name: "no_such_tool", CorrelationID: "corr-9",
	})
	require.NotNil(t, rpcErr)
	ge, ok := rpcErr.Data.(*types.GatewayError)
	require.True(t, ok, "protocol errors carry the coded gateway error")
	assert.Equal(t, types.ErrorCodeToolNotFound, ge.Code)
	assert.Equal(t, "no_such_tool", ge.Tool)
	assert.Equal(t, "corr-9", ge.RequestID)

	_, rpcErr = d.Invoke(context.Background(), types.ToolInvocation{
		Name:      "search_literature",
		Arguments: map[string]interface{}{"query": 42},
	})
	require.NotNil(t, rpcErr)
	ge, ok = rpcErr.Data.(*types.GatewayError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorCodeInvalidArguments, ge.Code)
}

func TestAccessUnavailableCarriesRefreshCause(t *testing.T) {
	conn := &fakeConnector{result: json.RawMessage(`{}`)}
	d := newDispatcher(t, connectors.Set{"lookup_patient_record": conn},
		&staticRefresher{err: errors.New("token endpoint down")})

	_, rpcErr := d.Invoke(context.Background(), types.ToolInvocation{
		Name:      "lookup_patient_record",
		Arguments: map[string]interface{}{"patient_id": "p-100"},
	})
	require.NotNil(t, rpcErr)
	ge, ok := rpcErr.Data.(*types.GatewayError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorCodeAccessUnavailable, ge.Code)
	assert.Equal(t, types.ErrorCodeRefreshFailed, ge.Details["cause"])
	assert.Equal(t, "lookup_patient_record", ge.Tool)
	assert.NotContains(t, ge.Message, "token endpoint down", "upstream cause stays in logs")
}

func TestListToolsStable(t *testing.T) {
	d := newDispatcher(t, connectors.Set{}, nil)
	first := d.ListTools()
	second := d.ListTools()
	assert.Equal(t, first, second)
	assert.Len(t, first, len(DefaultCatalog()))
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	defs := DefaultCatalog()
	defs = append(defs, defs[0])
	_, err := New(defs)
	assert.Error(t, err)
}
