// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/covoxlabs/covox/internal/operation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
	// auth happens in the management key middleware before the upgrade
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsError is sent in place of a chunk when a stream fails.
type wsError struct {
	Error string `json:"error"`
}

// wsDone terminates each stream so clients can frame responses.
type wsDone struct {
	Done bool `json:"done"`
}

// handleUse upgrades to a WebSocket and drives the role with each received
// chunk. Responses for one input are streamed back in order and terminated
// with a done marker. Binary payloads travel base64-encoded inside JSON.
func (s *Server) handleUse(c *gin.Context) {
	role, err := operation.ParseRole(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	targetID := c.Query("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket closed")
			}
			return
		}

		var in operation.Chunk
		if err := json.Unmarshal(payload, &in); err != nil {
			if writeJSON(conn, wsError{Error: "invalid chunk: " + err.Error()}) != nil {
				return
			}
			continue
		}

		stream, err := s.mgr.Use(ctx, role, in, targetID)
		if err != nil {
			if writeJSON(conn, wsError{Error: err.Error()}) != nil {
				return
			}
			continue
		}

		for item := range stream {
			if item.Err != nil {
				if writeJSON(conn, wsError{Error: item.Err.Error()}) != nil {
					return
				}
				continue
			}
			if writeJSON(conn, item.Chunk) != nil {
				return
			}
		}
		if writeJSON(conn, wsDone{Done: true}) != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
