package tcpserver

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/cleanstat/internal/ingest"
	"github.com/tinytelemetry/cleanstat/internal/kv"
	"github.com/tinytelemetry/cleanstat/internal/series"
)

func TestNewServer_DefaultLocalhostAddress(t *testing.T) {
	t.Parallel()

	s := NewServer("", nil)
	if got := s.Addr(); got != "127.0.0.1:4000" {
		t.Fatalf("Addr() = %q, want %q", got, "127.0.0.1:4000")
	}
}

func TestNewServer_UsesConfiguredAddressAndLimits(t *testing.T) {
	t.Parallel()

	s := NewServer("0.0.0.0:5000", nil, ServerConfig{
		MaxBlobSize: 2048,
		ReadTimeout: time.Second,
	})

	if got := s.Addr(); got != "0.0.0.0:5000" {
		t.Fatalf("Addr() = %q, want %q", got, "0.0.0.0:5000")
	}
	if got := s.maxBlobSize; got != 2048 {
		t.Fatalf("max blob size = %d, want %d", got, 2048)
	}
	if got := s.readTimeout; got != time.Second {
		t.Fatalf("read timeout = %s, want 1s", got)
	}
}

func push(t *testing.T, addr, text string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(text)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return strings.TrimSpace(reply)
}

func TestPushIngestsWholeLog(t *testing.T) {
	t.Parallel()

	now := func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.Local) }
	p := ingest.NewPipeline(nil, series.NewStore(kv.NewMemoryStore(), ""), ingest.Config{Now: now})

	s := NewServer("127.0.0.1:0", p)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	reply := push(t, s.Addr(), "2024-01-10 01:00:00 已删除文件数: 3\n2024-01-10 01:00:00 已删除文件数: 2\n")
	if reply != "ok: parsed 1, stored 1" {
		t.Fatalf("reply = %q", reply)
	}

	records, err := p.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 || records[0].DeletedFiles != 5 {
		t.Fatalf("records = %+v", records)
	}
}

func TestPushRejectsOversizedLog(t *testing.T) {
	t.Parallel()

	p := ingest.NewPipeline(nil, series.NewStore(kv.NewMemoryStore(), ""))
	s := NewServer("127.0.0.1:0", p, ServerConfig{MaxBlobSize: 16})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	reply := push(t, s.Addr(), strings.Repeat("x", 64))
	if !strings.HasPrefix(reply, "error:") {
		t.Fatalf("reply = %q, want error", reply)
	}
	if records, _ := p.Records(); len(records) != 0 {
		t.Errorf("records = %+v, want none", records)
	}
}

func TestStopUnblocksIdleConnection(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung on an idle connection")
	}
}
