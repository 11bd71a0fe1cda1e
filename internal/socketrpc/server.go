package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinytelemetry/cleanstat/internal/ingest"
	"github.com/tinytelemetry/cleanstat/internal/model"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (64 KB).
	scannerInitBufSize = 64 * 1024
	// maxMessageSize bounds one newline-delimited message in either direction.
	// It leaves room for a 32 MB log after JSON escaping.
	maxMessageSize = 64 * 1024 * 1024

	refreshTimeout = 30 * time.Second
)

// Service is the pipeline contract exposed over the socket.
type Service interface {
	Refresh(ctx context.Context) (ingest.RefreshResult, error)
	Ingest(source, text string) (ingest.RefreshResult, error)
	Summary(date string) (ingest.Summary, error)
	Records() ([]model.LogRecord, error)
	Clear() error
	SourceName() string
}

// Server exposes a Service over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	svc        Service
	listener   net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a new socket RPC server.
func NewServer(socketPath string, svc Service) *Server {
	return &Server{
		socketPath: socketPath,
		svc:        svc,
		conns:      make(map[net.Conn]struct{}),
		quit:       make(chan struct{}),
	}
}

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	// Remove stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	log.Printf("socketrpc: listening on %s", s.socketPath)
	return nil
}

// Stop closes the listener and open connections, waits for handlers to
// return, and removes the socket file. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				log.Printf("socketrpc: accept error: %v", err)
				// Continue on transient errors (e.g., fd limit) instead of
				// killing the entire accept loop.
				continue
			}
		}

		s.mu.Lock()
		select {
		case <-s.quit:
			s.mu.Unlock()
			conn.Close()
			return
		default:
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), maxMessageSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", ID: 0, Error: &RPCError{Code: -32700, Message: "parse error"}}
			encoder.Encode(resp)
			continue
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v interface{}, err error) Response {
		if err != nil {
			resp.Error = &RPCError{Code: -32000, Message: err.Error()}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: -32603, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	switch req.Method {
	case "Refresh":
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		return marshalResult(s.svc.Refresh(ctx))

	case "Ingest":
		var p struct {
			Source string
			Text   string
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = &RPCError{Code: -32602, Message: fmt.Sprintf("invalid params: %v", err)}
			return resp
		}
		if p.Source == "" {
			p.Source = "socket"
		}
		return marshalResult(s.svc.Ingest(p.Source, p.Text))

	case "Summary":
		var p struct{ Date string }
		// Allow empty/null params for all dates; only reject genuinely malformed JSON.
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			resp.Error = &RPCError{Code: -32602, Message: fmt.Sprintf("invalid params: %v", err)}
			return resp
		}
		return marshalResult(s.svc.Summary(p.Date))

	case "Records":
		return marshalResult(s.svc.Records())

	case "Clear":
		if err := s.svc.Clear(); err != nil {
			return marshalResult(nil, err)
		}
		return marshalResult(map[string]bool{"cleared": true}, nil)

	case "SourceName":
		return marshalResult(s.svc.SourceName(), nil)

	default:
		resp.Error = &RPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}
