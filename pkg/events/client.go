/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package events carries the bidirectional control channel to the
// server: typed JSON envelopes over a websocket, with the read side
// doubling as the disconnect detector.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Client is one live event channel. It satisfies connmgr.Session: Done
// closes when the read loop dies, which the resilience manager treats
// as a disconnect.
type Client struct {
	conn    *websocket.Conn
	logger  logger.Logger
	handler func(env *models.Envelope)

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// newClient wraps an established connection and starts the read and
// ping loops. handler runs on the read goroutine; it must hand blocking
// work off elsewhere.
func newClient(conn *websocket.Conn, handler func(env *models.Envelope), log logger.Logger) *Client {
	c := &Client{
		conn:    conn,
		logger:  log,
		handler: handler,
		done:    make(chan struct{}),
	}

	go c.readLoop()
	go c.pingLoop()

	return c
}

// Done closes when the channel is no longer usable.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears the channel down. Safe to call more than once.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})

	return err
}

// Emit sends one typed event. Writes are serialized so concurrent
// emitters never interleave frames.
func (c *Client) Emit(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}

	env := models.Envelope{Type: eventType, Data: data}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	if err := c.conn.WriteJSON(&env); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}

	return nil
}

func (c *Client) readLoop() {
	defer c.signalDone()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.logger != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Event channel read failed")
			}

			return
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			if c.logger != nil {
				c.logger.Warn().Err(err).Msg("Discarding malformed event")
			}

			continue
		}

		if env.Type == "" {
			continue
		}

		if c.handler != nil {
			c.handler(&env)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()

			if err != nil {
				return
			}
		}
	}
}

func (c *Client) signalDone() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})

	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
