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

package kiosk

import (
	"errors"
	"os"
	"time"

	"github.com/carverauto/fleetdisplay/pkg/connmgr"
	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
	"github.com/carverauto/fleetdisplay/pkg/supervisor"
)

var errServerURLRequired = errors.New("server_url is required")

const (
	defaultProbeTimeout       = 3 * time.Second
	defaultScreenshotInterval = 3 * time.Second
	defaultDisplay            = ":0"
)

// RendererConfig describes the browser process the supervisor manages.
type RendererConfig struct {
	// Command is the renderer binary plus arguments. The page URLs are
	// appended at launch so every page opens in its own tab.
	Command []string `json:"command"`
	Display string   `json:"display"`
}

// ScreenshotConfig controls display capture and upload.
type ScreenshotConfig struct {
	Enabled bool `json:"enabled"`
	// MinInterval throttles captures; requests inside the interval are
	// dropped, not queued.
	MinInterval models.Duration `json:"min_interval"`
	// Command captures the display to the file path appended as its
	// last argument.
	Command []string `json:"command"`
	Display string   `json:"display"`
}

// Config is the full agent configuration.
type Config struct {
	// ServerURL is the operator-provided control server address.
	ServerURL string `json:"server_url"`
	// PeerName optionally names the server on the overlay mesh.
	PeerName string `json:"peer_name,omitempty"`
	// ServerPort overrides the port for discovered candidates.
	ServerPort string `json:"server_port,omitempty"`
	// AutoScan enumerates overlay peers when nothing else resolves.
	AutoScan bool `json:"auto_scan"`
	// Hostname identifies this device to the server; defaults to the
	// OS hostname.
	Hostname string `json:"hostname,omitempty"`

	ProbeTimeout models.Duration   `json:"probe_timeout"`
	Connection   connmgr.Config    `json:"connection"`
	Supervisor   supervisor.Config `json:"supervisor"`
	Renderer     RendererConfig    `json:"renderer"`
	Screenshot   ScreenshotConfig  `json:"screenshot"`

	Logging *logger.Config `json:"logging,omitempty"`
}

// Validate applies defaults and rejects configs the agent cannot run on.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errServerURLRequired
	}

	if c.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			c.Hostname = name
		} else {
			c.Hostname = "kiosk"
		}
	}

	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = models.Duration(defaultProbeTimeout)
	}

	if err := c.Connection.Validate(); err != nil {
		return err
	}

	if err := c.Supervisor.Validate(); err != nil {
		return err
	}

	if len(c.Renderer.Command) == 0 {
		c.Renderer.Command = []string{
			"chromium-browser",
			"--kiosk",
			"--noerrdialogs",
			"--disable-infobars",
			"--disable-session-crashed-bubble",
			"--disable-restore-session-state",
		}
	}

	if c.Renderer.Display == "" {
		c.Renderer.Display = defaultDisplay
	}

	if c.Screenshot.MinInterval == 0 {
		c.Screenshot.MinInterval = models.Duration(defaultScreenshotInterval)
	}

	if len(c.Screenshot.Command) == 0 {
		c.Screenshot.Command = []string{"scrot", "--overwrite"}
	}

	if c.Screenshot.Display == "" {
		c.Screenshot.Display = defaultDisplay
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	return nil
}
