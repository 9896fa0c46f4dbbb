// Package httpapi expone el motor por HTTP: intake de propuestas firmadas,
// lectura del RuntimeState, health, métricas y el websocket de dashboards.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/gin-gonic/gin"
)

// StateReader es lo que el API necesita del state.Store.
type StateReader interface {
	Current() domain.RuntimeState
}

// Config del servidor.
type Config struct {
	Addr           string
	WebhookSecret  string // vacío = webhook deshabilitado
	ProductionMode bool
}

// Deps son los colaboradores del API. Metrics y WS son opcionales.
type Deps struct {
	State     StateReader
	Queue     *ProposalQueue
	Metrics   http.Handler
	WS        http.Handler
	Connected func() bool // estado de la sesión con el broker
}

// Server es el API HTTP.
type Server struct {
	cfg        Config
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
	started    time.Time
}

// NewServer arma el router con sus rutas.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	s := &Server{cfg: cfg, deps: deps, router: router, started: time.Now()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/state", s.handleState)
	s.router.GET("/state/:symbol", s.handleSymbol)
	s.router.POST("/webhook", s.handleWebhook)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	if s.deps.WS != nil {
		s.router.GET("/ws", gin.WrapH(s.deps.WS))
	}
}

// Handler devuelve el router (tests).
func (s *Server) Handler() http.Handler { return s.router }

// Run sirve hasta que ctx se cancela y entonces apaga con gracia.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("httpapi.Run: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("api: shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi.Run: shutdown: %w", err)
	}
	return <-errCh
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(c *gin.Context) {
	st := s.deps.State.Current()
	connected := true
	if s.deps.Connected != nil {
		connected = s.deps.Connected()
	}

	status := http.StatusOK
	label := "ok"
	if !connected || !st.Running {
		status = http.StatusServiceUnavailable
		label = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     label,
		"connected":  connected,
		"running":    st.Running,
		"cycle":      st.Cycle,
		"mode":       st.Mode,
		"execution":  st.Execution,
		"updated_at": st.UpdatedAt,
		"uptime":     time.Since(s.started).Truncate(time.Second).String(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.State.Current())
}

func (s *Server) handleSymbol(c *gin.Context) {
	st := s.deps.State.Current()
	slot, ok := st.Symbols[c.Param("symbol")]
	if !ok {
		errorResponse(c, http.StatusNotFound, "unknown symbol")
		return
	}
	c.JSON(http.StatusOK, slot)
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": true, "message": message})
}

// requestLogger loguea cada request con slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("api: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
