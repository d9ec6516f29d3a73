// Package connectors holds the request/response adapters to the upstream
// medical data sources. Each connector is stateless: the dispatcher owns
// caching, credentials and timeouts, a connector only shapes one HTTP
// exchange.
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medbridge-ai/medgate/credential"
	"github.com/medbridge-ai/medgate/resilience"
)

// Connector executes one upstream call. cred is nil for tools that do not
// require delegated access.
type Connector interface {
	Execute(ctx context.Context, args map[string]interface{}, cred *credential.Credential) (json.RawMessage, error)
}

// Set maps tool names to connectors.
type Set map[string]Connector

// Get returns the connector for a tool name.
func (s Set) Get(name string) (Connector, bool) {
	c, ok := s[name]
	return c, ok
}

// httpClient is shared by all connectors; per-call deadlines come from the
// dispatcher's context, this is only a hard upper bound.
var httpClient = &http.Client{Timeout: 30 * time.Second}

const maxResponseBytes = 4 << 20

// getJSON performs a GET guarded by the connector's breaker and returns the
// raw response body.
func getJSON(ctx context.Context, breaker *resilience.Breaker, url string, cred *credential.Credential) (json.RawMessage, error) {
	var body []byte
	err := breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if cred != nil {
			req.Header.Set("Authorization", "Bearer "+cred.Token)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream returned non-JSON payload")
	}
	return json.RawMessage(body), nil
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

func intArg(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
