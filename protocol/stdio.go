package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/medbridge-ai/medgate/logger"
	"github.com/medbridge-ai/medgate/types"
)

// maxFrameBytes bounds a single newline-delimited frame on the stream
// transport.
const maxFrameBytes = 4 << 20

// StdioTransport serves the persistent stream transport: newline-delimited
// JSON frames, exactly one client per process. Output framing is pristine;
// diagnostics go to the logger, never to the frame writer.
type StdioTransport struct {
	srv *Server
	in  io.Reader
	out io.Writer
	log *logger.Logger

	writeMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// NewStdioTransport wires the stream transport over in/out (stdin/stdout
// in production; buffers in tests).
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		srv: srv,
		in:  in,
		out: out,
		log: logger.Get().WithField("transport", "stdio"),
	}
}

// Run reads frames until EOF or context cancellation. When the client
// disconnects mid-call, in-flight dispatches complete and their results are
// discarded; upstream side effects are never aborted halfway.
func (t *StdioTransport) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			t.close()
			t.wg.Wait()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				t.log.Info("stream client disconnected", nil)
				t.close()
				t.wg.Wait()
				return scanner.Err()
			}
			if len(line) == 0 {
				continue
			}
			t.dispatch(ctx, line)
		}
	}
}

// dispatch handles one frame. The order-sensitive part (the routing
// decision for a route frame) runs here in the read loop, so same-session
// frames are decided in arrival order; the slow remainder (tool dispatch,
// generation) runs concurrently and does not block subsequent frames.
func (t *StdioTransport) dispatch(ctx context.Context, line []byte) {
	var req types.Request
	if err := json.Unmarshal(line, &req); err != nil {
		t.write(types.NewErrorResponse(nil, types.CodeParseError, "malformed frame"))
		return
	}
	finish := t.srv.Accept(ctx, &req)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.write(finish())
	}()
}

// write emits one response frame. After close, responses from in-flight
// calls are discarded.
func (t *StdioTransport) write(resp *types.Response) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.closed {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.log.Error("marshal frame", err, nil)
		return
	}
	data = append(data, '\n')
	if _, err := t.out.Write(data); err != nil {
		t.log.Error("write frame", err, nil)
		t.closed = true
	}
}

func (t *StdioTransport) close() {
	t.writeMu.Lock()
	t.closed = true
	t.writeMu.Unlock()
}
