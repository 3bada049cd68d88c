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
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/carverauto/fleetdisplay/pkg/logger"
)

const (
	screenshotPath    = "/api/kiosk/screenshot"
	screenshotTimeout = 15 * time.Second
)

// Screenshotter captures the display and uploads it to the control
// server. Captures are serialized and rate limited; a request that
// arrives inside the interval is dropped rather than queued, so a burst
// of status changes costs at most one capture per interval.
type Screenshotter struct {
	cfg      ScreenshotConfig
	hostname string
	client   *http.Client
	logger   logger.Logger

	// capture is injectable for tests; nil shells out to cfg.Command.
	capture func(ctx context.Context, path string) error

	mu   sync.Mutex
	last time.Time
}

// NewScreenshotter creates a Screenshotter for the given device.
func NewScreenshotter(cfg ScreenshotConfig, hostname string, log logger.Logger) *Screenshotter {
	return &Screenshotter{
		cfg:      cfg,
		hostname: hostname,
		client:   &http.Client{Timeout: screenshotTimeout},
		logger:   log,
	}
}

// Upload captures the display and posts it to serverURL. Returns without
// error when disabled or rate limited.
func (s *Screenshotter) Upload(ctx context.Context, serverURL string) error {
	if !s.cfg.Enabled || serverURL == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !s.last.IsZero() && now.Sub(s.last) < time.Duration(s.cfg.MinInterval) {
		return nil
	}

	s.last = now

	path := filepath.Join(os.TempDir(), "kiosk-screenshot.png")
	defer func() { _ = os.Remove(path) }()

	if err := s.doCapture(ctx, path); err != nil {
		return fmt.Errorf("screenshot capture failed: %w", err)
	}

	if err := s.post(ctx, serverURL, path); err != nil {
		return fmt.Errorf("screenshot upload failed: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug().Str("server", serverURL).Msg("Screenshot uploaded")
	}

	return nil
}

func (s *Screenshotter) doCapture(ctx context.Context, path string) error {
	if s.capture != nil {
		return s.capture(ctx, path)
	}

	captureCtx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()

	args := append(append([]string{}, s.cfg.Command[1:]...), path)
	cmd := exec.CommandContext(captureCtx, s.cfg.Command[0], args...)
	cmd.Env = append(os.Environ(), "DISPLAY="+s.cfg.Display)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", s.cfg.Command[0], err, string(out))
	}

	return nil
}

// post sends the capture as a multipart form with the device hostname.
func (s *Screenshotter) post(ctx context.Context, serverURL, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("hostname", s.hostname); err != nil {
		return err
	}

	part, err := writer.CreateFormFile("screenshot", filepath.Base(path))
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, file); err != nil {
		return err
	}

	if err := writer.Close(); err != nil {
		return err
	}

	target := trimSlash(serverURL) + screenshotPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil
}

func trimSlash(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}

	return u
}
