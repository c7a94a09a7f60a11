// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the management REST API and the streaming WebSocket
// endpoint of the Covox server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/covoxlabs/covox/internal/buildinfo"
	"github.com/covoxlabs/covox/internal/config"
	"github.com/covoxlabs/covox/internal/manager"
)

// Server wires the operation manager into HTTP and WebSocket endpoints.
type Server struct {
	mgr    *manager.Manager
	engine *gin.Engine
	srv    *http.Server

	cfgMu sync.RWMutex
	cfg   *config.Config

	// reload re-reads the config file and reloads the roster. Wired by the
	// server entrypoint so the handler does not depend on file paths.
	reload func(ctx context.Context) error
}

// NewServer builds the router. The reload callback may be nil, in which case
// the reload endpoint reports it as unavailable.
func NewServer(cfg *config.Config, mgr *manager.Manager, reload func(ctx context.Context) error) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		mgr:    mgr,
		cfg:    cfg,
		reload: reload,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware())

	engine.GET("/health", s.handleHealth)

	v1 := engine.Group("/v1", s.authMiddleware())
	{
		v1.GET("/operations", s.handleListOperations)
		v1.GET("/operations/ids", s.handleKnownIDs)
		v1.POST("/operations", s.handleLoadOperation)
		v1.DELETE("/operations/:role/:id", s.handleCloseOperation)
		v1.GET("/operations/:role/config", s.handleGetConfiguration)
		v1.PUT("/operations/:role/config", s.handleConfigure)
		v1.POST("/reload", s.handleReload)
		v1.POST("/preview/:role", s.handlePreview)
		v1.GET("/use/:role", s.handleUse)
	}

	s.engine = engine
	return s
}

// SetConfig swaps the active config after a hot reload.
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.config()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("API server listening on %s", addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	})
}
