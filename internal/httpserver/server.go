package httpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/cleanstat/internal/ingest"
	"github.com/tinytelemetry/cleanstat/internal/model"
)

// maxIngestBody bounds the size of a POST /api/ingest body.
const maxIngestBody = 32 << 20

// Service is the narrow pipeline contract required by the HTTP API.
type Service interface {
	Refresh(ctx context.Context) (ingest.RefreshResult, error)
	Ingest(source, text string) (ingest.RefreshResult, error)
	Records() ([]model.LogRecord, error)
	Clear() error
	Summary(date string) (ingest.Summary, error)
	LastRefresh() ingest.RefreshResult
}

// Server provides an HTTP API over the cleanup statistics store.
type Server struct {
	addr      string
	svc       Service
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, svc Service) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler builds the gin router with every API route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/records", s.handleRecords)
	api.DELETE("/records", s.handleClear)
	api.POST("/refresh", s.handleRefresh)
	api.POST("/ingest", s.handleIngest)
	api.GET("/summary", s.handleSummary)

	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	records, err := s.svc.Records()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read store"})
		return
	}

	body := gin.H{
		"status":       "ok",
		"uptime":       time.Since(s.startTime).String(),
		"record_count": len(records),
	}
	if last := s.svc.LastRefresh(); !last.At.IsZero() {
		body["last_refresh"] = last
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRecords(c *gin.Context) {
	records, err := s.svc.Records()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) handleClear(c *gin.Context) {
	if err := s.svc.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) handleRefresh(c *gin.Context) {
	res, err := s.svc.Refresh(c.Request.Context())
	if err != nil {
		var fetchErr *ingest.FetchError
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ingest.ErrNoSource):
			status = http.StatusConflict
		case errors.As(err, &fetchErr):
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleIngest(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(body) > maxIngestBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	res, err := s.svc.Ingest("http", string(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSummary(c *gin.Context) {
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
	}

	summary, err := s.svc.Summary(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}
