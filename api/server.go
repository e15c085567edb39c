// Package api is the HTTP surface: synchronous job processing, website
// capture, health and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justapithecus/glean/adapter"
	"github.com/justapithecus/glean/capture"
	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/metrics"
	"github.com/justapithecus/glean/pipeline"
	"github.com/justapithecus/glean/store"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 5 * time.Minute
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

// JobProcessor runs one job synchronously.
type JobProcessor interface {
	Process(ctx context.Context, raw string) (*pipeline.Result, error)
}

// Resolver checks that a capture domain resolves. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Config holds the capture settings.
type Config struct {
	// Addr is the listen address.
	Addr string
	// Bucket receives captures (required for capture).
	Bucket string
	// CapturePrefix is the key prefix of captures (default "screenshots").
	CapturePrefix string
	// Allowlist holds the client networks allowed to capture. Empty allows all.
	Allowlist []netip.Prefix
	// TrustedProxies are honored for X-Forwarded-For. Empty uses the peer address.
	TrustedProxies []string
	// WorkDir is the parent of per-request capture workspaces.
	WorkDir string
}

// Deps are the handles the server uses. Processor enables POST /v1/jobs;
// Capturer and Store enable capture. Presigner and Publisher are optional.
type Deps struct {
	Processor JobProcessor
	Capturer  capture.Capturer
	Store     store.Store
	Presigner store.Presigner
	Publisher adapter.Adapter
	Resolver  Resolver
	Metrics   *metrics.Collector
	Logger    *log.Logger
	Now       func() time.Time
}

// Server is the HTTP API.
type Server struct {
	config Config
	deps   Deps
	router *gin.Engine
	logger *log.Logger
}

// NewServer builds the router.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = log.NewNop()
	}
	if deps.Resolver == nil {
		deps.Resolver = net.DefaultResolver
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.CapturePrefix == "" {
		cfg.CapturePrefix = capture.DefaultPrefix
	}
	if deps.Capturer != nil && (deps.Store == nil || cfg.Bucket == "") {
		return nil, errors.New("api: capture requires a store and a bucket")
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("api: trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(hstsMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(deps.Logger))

	s := &Server{config: cfg, deps: deps, router: router, logger: deps.Logger}

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	v1 := router.Group("/v1")
	if deps.Processor != nil {
		v1.POST("/jobs", s.processJob)
	}
	if deps.Capturer != nil {
		v1.GET("/capture/*target", s.capture)
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", map[string]any{"addr": s.config.Addr})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
