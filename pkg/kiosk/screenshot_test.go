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
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
)

func fakeCapture(counter *int) func(ctx context.Context, path string) error {
	return func(_ context.Context, path string) error {
		*counter++
		return os.WriteFile(path, []byte("fake png"), 0o600)
	}
}

func screenshotServer(t *testing.T, gotHostname *string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, screenshotPath, r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		*gotHostname = r.FormValue("hostname")

		file, _, err := r.FormFile("screenshot")
		require.NoError(t, err)

		_ = file.Close()

		w.WriteHeader(http.StatusOK)
	}))

	t.Cleanup(srv.Close)

	return srv
}

func TestScreenshotUpload(t *testing.T) {
	var hostname string

	srv := screenshotServer(t, &hostname)

	captures := 0
	s := NewScreenshotter(ScreenshotConfig{
		Enabled:     true,
		MinInterval: models.Duration(time.Hour),
	}, "kiosk-7", logger.NewTestLogger())
	s.capture = fakeCapture(&captures)

	require.NoError(t, s.Upload(context.Background(), srv.URL))

	assert.Equal(t, 1, captures)
	assert.Equal(t, "kiosk-7", hostname)
}

func TestScreenshotRateLimited(t *testing.T) {
	var hostname string

	srv := screenshotServer(t, &hostname)

	captures := 0
	s := NewScreenshotter(ScreenshotConfig{
		Enabled:     true,
		MinInterval: models.Duration(time.Hour),
	}, "kiosk-7", logger.NewTestLogger())
	s.capture = fakeCapture(&captures)

	require.NoError(t, s.Upload(context.Background(), srv.URL))

	// Inside the interval the request is dropped, not queued.
	require.NoError(t, s.Upload(context.Background(), srv.URL))
	require.NoError(t, s.Upload(context.Background(), srv.URL))

	assert.Equal(t, 1, captures)
}

func TestScreenshotDisabled(t *testing.T) {
	captures := 0
	s := NewScreenshotter(ScreenshotConfig{Enabled: false}, "kiosk-7", logger.NewTestLogger())
	s.capture = fakeCapture(&captures)

	require.NoError(t, s.Upload(context.Background(), "http://127.0.0.1:1"))
	assert.Zero(t, captures)
}

func TestScreenshotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	captures := 0
	s := NewScreenshotter(ScreenshotConfig{
		Enabled:     true,
		MinInterval: models.Duration(time.Millisecond),
	}, "kiosk-7", logger.NewTestLogger())
	s.capture = fakeCapture(&captures)

	assert.Error(t, s.Upload(context.Background(), srv.URL))
}
