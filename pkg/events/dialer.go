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

package events

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/fleetdisplay/pkg/connmgr"
	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
)

const (
	handshakeTimeout = 10 * time.Second
	eventPath        = "/ws"
)

// Dialer opens event channels against whichever server URL the
// resilience manager settles on. It satisfies connmgr.Dialer.
type Dialer struct {
	Logger logger.Logger
	// OnEvent receives every decoded inbound envelope. Runs on the read
	// goroutine.
	OnEvent func(env *models.Envelope)
	// OnConnect fires after a channel is established, before the
	// session is handed to the manager. Used for the hello handshake.
	OnConnect func(client *Client)
	// Header is sent with the websocket handshake.
	Header http.Header
}

// Dial derives the websocket endpoint from the server's http URL and
// establishes the event channel.
func (d *Dialer) Dial(ctx context.Context, serverURL string) (connmgr.Session, error) {
	endpoint, err := EventURL(serverURL)
	if err != nil {
		return nil, err
	}

	wd := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, resp, err := wd.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("websocket handshake with %s failed (status %d): %w",
				endpoint, resp.StatusCode, err)
		}

		return nil, fmt.Errorf("websocket dial %s failed: %w", endpoint, err)
	}

	if resp != nil {
		_ = resp.Body.Close()
	}

	client := newClient(conn, d.OnEvent, d.Logger)

	if d.OnConnect != nil {
		d.OnConnect(client)
	}

	return client, nil
}

// EventURL maps a server base URL to its websocket endpoint: http
// becomes ws, https becomes wss, and the event path is appended.
func EventURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in server URL %q", u.Scheme, serverURL)
	}

	u.Path = strings.TrimRight(u.Path, "/") + eventPath

	return u.String(), nil
}
