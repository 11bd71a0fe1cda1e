package tcpserver

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/cleanstat/internal/ingest"
)

const (
	// DefaultMaxBlobSize is the default maximum size (in bytes) of one pushed log.
	DefaultMaxBlobSize = 32 * 1024 * 1024 // 32MB

	// DefaultReadTimeout bounds how long one connection may take to send its log.
	DefaultReadTimeout = time.Minute
)

// Ingester merges already fetched log text.
type Ingester interface {
	Ingest(source, text string) (ingest.RefreshResult, error)
}

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	MaxBlobSize int
	ReadTimeout time.Duration
}

// Server accepts pushed cleanup logs over TCP. Each connection carries one
// log, read until the client closes its write side, e.g.
//
//	cat log.txt | nc -N 127.0.0.1 4000
//
// A one-line result is written back before the connection is closed.
type Server struct {
	listener    net.Listener
	addr        string
	ingester    Ingester
	maxBlobSize int
	readTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewServer creates a new TCP server. Default addr is "127.0.0.1:4000".
func NewServer(addr string, ingester Ingester, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = "127.0.0.1:4000"
	}
	maxBlobSize := DefaultMaxBlobSize
	readTimeout := DefaultReadTimeout
	if len(conf) > 0 {
		if conf[0].MaxBlobSize > 0 {
			maxBlobSize = conf[0].MaxBlobSize
		}
		if conf[0].ReadTimeout > 0 {
			readTimeout = conf[0].ReadTimeout
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		ingester:    ingester,
		maxBlobSize: maxBlobSize,
		readTimeout: readTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins accepting TCP connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					continue
				}
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the read when the server stops.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	data, err := io.ReadAll(io.LimitReader(conn, int64(s.maxBlobSize)+1))
	if err != nil {
		log.Printf("tcpserver: read error from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if len(data) > s.maxBlobSize {
		log.Printf("tcpserver: dropped log from %s exceeding max size (%d bytes)", conn.RemoteAddr(), s.maxBlobSize)
		// Drain so the reply is not lost to a reset on close.
		io.Copy(io.Discard, conn)
		fmt.Fprintf(conn, "error: log exceeds %d bytes\n", s.maxBlobSize)
		return
	}

	res, err := s.ingester.Ingest("tcp", string(data))
	if err != nil {
		log.Printf("tcpserver: ingest from %s failed: %v", conn.RemoteAddr(), err)
		fmt.Fprintf(conn, "error: %v\n", err)
		return
	}
	fmt.Fprintf(conn, "ok: parsed %d, stored %d\n", res.Parsed, res.Stored)
}

// Stop gracefully shuts down the TCP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
