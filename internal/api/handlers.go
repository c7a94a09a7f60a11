// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/covoxlabs/covox/internal/operation"
	"github.com/covoxlabs/covox/internal/operation/registry"
)

const previewTimeout = 2 * time.Minute

// loadRequest is the body of POST /v1/operations.
type loadRequest struct {
	Role     string         `json:"role" binding:"required"`
	ID       string         `json:"id" binding:"required"`
	Settings map[string]any `json:"settings"`
}

// configureRequest is the body of PUT /v1/operations/:role/config.
type configureRequest struct {
	ID       string         `json:"id"`
	Settings map[string]any `json:"settings" binding:"required"`
}

func (s *Server) handleListOperations(c *gin.Context) {
	loaded := s.mgr.Loaded()
	out := make(map[string]gin.H, len(loaded))
	for role, ids := range loaded {
		entry := gin.H{"operations": ids}
		if role.Kind() == operation.SlotFallback {
			entry["blacklist"] = s.mgr.Blacklist(role)
		}
		out[string(role)] = entry
	}
	c.JSON(http.StatusOK, gin.H{"roles": out})
}

func (s *Server) handleKnownIDs(c *gin.Context) {
	known := registry.Known()
	out := make(map[string][]string, len(known))
	for typ, ids := range known {
		out[string(typ)] = ids
	}
	c.JSON(http.StatusOK, gin.H{"ids": out})
}

func (s *Server) handleLoadOperation(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := operation.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.mgr.Load(c.Request.Context(), role, req.ID, req.Settings); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	log.Infof("Loaded operation %s/%s", role, req.ID)
	c.JSON(http.StatusOK, gin.H{"role": string(role), "id": req.ID})
}

func (s *Server) handleCloseOperation(c *gin.Context) {
	role, err := operation.ParseRole(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mgr.Close(role, c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": string(role), "id": c.Param("id")})
}

func (s *Server) handleGetConfiguration(c *gin.Context) {
	role, err := operation.ParseRole(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields, err := s.mgr.Configuration(role, c.Query("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": string(role), "configuration": fields})
}

func (s *Server) handleConfigure(c *gin.Context) {
	role, err := operation.ParseRole(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req configureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mgr.Configure(role, req.ID, req.Settings); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": string(role)})
}

func (s *Server) handleReload(c *gin.Context) {
	if s.reload == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reload not available"})
		return
	}
	if err := s.reload(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

// handlePreview runs a single chunk through a role and returns the collected
// stream. Meant for configuration smoke tests, not for latency-sensitive use.
func (s *Server) handlePreview(c *gin.Context) {
	role, err := operation.ParseRole(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var in operation.Chunk
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), previewTimeout)
	defer cancel()

	stream, err := s.mgr.Use(ctx, role, in, c.Query("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	chunks, err := operation.Collect(stream)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "chunks": chunks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var unknownRole *operation.UnknownRoleError
	var unknownID *operation.UnknownIDError
	var notLoaded *operation.NotLoadedError
	var dup *operation.DuplicateFilterError
	switch {
	case errors.As(err, &unknownRole), errors.As(err, &unknownID):
		return http.StatusBadRequest
	case errors.As(err, &notLoaded):
		return http.StatusNotFound
	case errors.As(err, &dup):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
