package protocol

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/medbridge-ai/medgate/logger"
	"github.com/medbridge-ai/medgate/types"
)

// HTTPTransport is the request/response listener. Unlike the stream
// transport it serves unboundedly many concurrent clients; net/http already
// gives each request its own goroutine.
type HTTPTransport struct {
	srv    *Server
	server *http.Server
	log    *logger.Logger
	start  time.Time
}

// NewHTTPTransport creates the listener for addr.
func NewHTTPTransport(srv *Server, addr string) *HTTPTransport {
	t := &HTTPTransport{
		srv:   srv,
		log:   logger.Get().WithField("transport", "http"),
		start: time.Now(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", t.handleRPC)
	mux.HandleFunc("/healthz", t.handleHealth)
	t.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return t
}

// ListenAndServe blocks until the listener stops.
func (t *HTTPTransport) ListenAndServe() error {
	t.log.Info("http listener starting", map[string]interface{}{"addr": t.server.Addr})
	err := t.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and lets in-flight calls finish
// within ctx's deadline.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	return t.server.Shutdown(ctx)
}

func (t *HTTPTransport) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err := dec.Decode(&req); err != nil {
		writeFrame(w, types.NewErrorResponse(nil, types.CodeParseError, "malformed frame"))
		return
	}
	// A wrong version tag yields an immediate structured error with no side
	// effects: Handle validates the tag before touching any component.
	writeFrame(w, t.srv.Handle(r.Context(), &req))
}

// handleHealth reports process-up status. It deliberately ignores connector
// health: one failing upstream must not mark the gateway unhealthy.
func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(t.start).String(),
	})
}

func writeFrame(w http.ResponseWriter, resp *types.Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
