package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/cleanstat/internal/ingest"
	"github.com/tinytelemetry/cleanstat/internal/model"
)

// ErrRequestTooLarge is returned when an encoded request would exceed the
// server's message limit. Nothing is sent and the client stays usable.
var ErrRequestTooLarge = errors.New("socketrpc: request too large")

// Client talks to a running cleanstat service over a Unix domain socket.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner

	sourceName string
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), maxMessageSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(ctx context.Context, method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal request: %w", err)
	}
	// The server's scanner needs the whole line, newline included, below the limit.
	if len(data)+1 >= maxMessageSize {
		return fmt.Errorf("%w: %s is %d bytes encoded, limit %d", ErrRequestTooLarge, method, len(data), maxMessageSize)
	}
	data = append(data, '\n')

	deadline := time.Now().Add(refreshTimeout + 5*time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, id)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) Refresh(ctx context.Context) (ingest.RefreshResult, error) {
	var result ingest.RefreshResult
	err := c.call(ctx, "Refresh", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) Ingest(source, text string) (ingest.RefreshResult, error) {
	var result ingest.RefreshResult
	err := c.call(context.Background(), "Ingest", map[string]interface{}{"Source": source, "Text": text}, &result)
	return result, err
}

func (c *Client) Summary(date string) (ingest.Summary, error) {
	var result ingest.Summary
	err := c.call(context.Background(), "Summary", map[string]interface{}{"Date": date}, &result)
	return result, err
}

func (c *Client) Records() ([]model.LogRecord, error) {
	var result []model.LogRecord
	err := c.call(context.Background(), "Records", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) Clear() error {
	return c.call(context.Background(), "Clear", map[string]interface{}{}, nil)
}

// SourceName returns the service's source name, cached after the first
// successful call. It returns "unknown" when the service cannot be reached.
func (c *Client) SourceName() string {
	c.mu.Lock()
	cached := c.sourceName
	c.mu.Unlock()
	if cached != "" {
		return cached
	}

	var name string
	if err := c.call(context.Background(), "SourceName", map[string]interface{}{}, &name); err != nil {
		return "unknown"
	}
	c.mu.Lock()
	c.sourceName = name
	c.mu.Unlock()
	return name
}
