// Package websocket serves the gateway's diagnostic side channel. Protocol
// framing on stdout must stay pristine, so log output is mirrored here for
// anyone who wants to watch the gateway live.
package websocket

import (
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // diagnostic channel, local use
	},
}

// LogServer broadcasts log lines to websocket subscribers.
type LogServer struct {
	hub    *Hub
	port   int
	server *http.Server
	mu     sync.Mutex
}

// NewLogServer creates a server listening on port once started.
func NewLogServer(port int) *LogServer {
	return &LogServer{hub: NewHub(), port: port}
}

// Start begins accepting websocket subscribers on /ws.
func (s *LogServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	go s.hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "websocket server error: %v\n", err)
		}
	}()
	return nil
}

// Stop closes the listener and disconnects all clients.
func (s *LogServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub.Stop()
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// BroadcastLog mirrors one rendered log line to every subscriber.
func (s *LogServer) BroadcastLog(line []byte) {
	s.hub.Broadcast(line)
}

func (s *LogServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := NewClient(s.hub, conn)
	client.hub.register <- client
	go client.writePump()
	go client.readPump()
}
