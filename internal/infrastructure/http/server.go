// Package http exposes the chatbot and document management over HTTP and
// WebSocket.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
	"github.com/0xcro3dile/ragchat/internal/infrastructure/metrics"
	"github.com/0xcro3dile/ragchat/internal/logger"
)

// ChatService answers prompts.
type ChatService interface {
	Query(ctx context.Context, prompt string) (string, error)
	QueryStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error)
}

// DocumentService manages indexed documents.
type DocumentService interface {
	AddDocument(ctx context.Context, name string, data []byte) ([]string, error)
	ListDocuments(ctx context.Context) ([]string, error)
	DeleteDocument(ctx context.Context, name string) (bool, error)
}

type Config struct {
	Addr            string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP server for the chatbot API.
type Server struct {
	cfg      Config
	chat     ChatService
	docs     DocumentService
	metrics  *metrics.Metrics
	log      logger.Logger
	origins  originPolicy
	upgrader *websocket.Upgrader
	now      func() time.Time
}

func NewServer(cfg Config, chat ChatService, docs DocumentService, m *metrics.Metrics, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	origins := newOriginPolicy(cfg.CORSOrigins)
	return &Server{
		cfg:      cfg,
		chat:     chat,
		docs:     docs,
		metrics:  m,
		log:      log,
		origins:  origins,
		upgrader: newUpgrader(origins),
		now:      time.Now,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), loggerMiddleware(s.log), corsMiddleware(s.origins))
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)

	chatbot := api.Group("/chatbot")
	chatbot.POST("/chat", s.handleChat)
	chatbot.GET("/ws", s.handleChatWS)

	documents := api.Group("/documents")
	documents.POST("/upload", s.handleUpload)
	documents.GET("/list", s.handleList)
	documents.DELETE("/:filename", s.handleDelete)

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	s.log.Info("ragchat server starting", "addr", s.cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("ragchat server shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// internalErrorDetail is the only detail clients see for a 500.
const internalErrorDetail = "Internal server error"

func errorJSON(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// internalError logs err and answers 500 without exposing it.
func internalError(c *gin.Context, msg string, err error) {
	_ = c.Error(err)
	logger.FromContext(c.Request.Context()).Error(msg, "path", c.Request.URL.Path, "error", err)
	errorJSON(c, http.StatusInternalServerError, internalErrorDetail)
}
