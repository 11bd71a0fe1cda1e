package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the ingest pipeline of a running cleanstat
// service over a Unix domain socket, so the dashboard does not need to open
// the store itself.
//
//   Method        Params              Result
//   ──────────    ─────────────────   ────────────────────
//   Refresh       (none)              ingest.RefreshResult
//   Ingest        {Source, Text}      ingest.RefreshResult
//   Summary       {Date: string}      ingest.Summary
//   Records       (none)              []model.LogRecord
//   Clear         (none)              {cleared: true}
//   SourceName    (none)              string
//
// Summary with an empty or missing Date covers all dates.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (source or store failure)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/cleanstat/cleanstat.sock, falling back to
// ~/.local/state/cleanstat/cleanstat.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "cleanstat", "cleanstat.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/cleanstat.sock"
	}
	return filepath.Join(home, ".local", "state", "cleanstat", "cleanstat.sock")
}
