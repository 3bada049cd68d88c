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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetdisplay/pkg/models"
)

type sampleConfig struct {
	ServerURL string          `json:"server_url"`
	Interval  models.Duration `json:"interval"`

	validated bool
}

func (c *sampleConfig) Validate() error {
	c.validated = true

	if c.ServerURL == "" {
		return errors.New("server_url missing")
	}

	return nil
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kiosk.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	path := writeConfigFile(t, `{"server_url": "http://192.168.1.50:5000", "interval": "45s"}`)

	var cfg sampleConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "http://192.168.1.50:5000", cfg.ServerURL)
	assert.Equal(t, models.Duration(45*time.Second), cfg.Interval)
	assert.True(t, cfg.validated)
}

func TestLoadAndValidateValidationFailure(t *testing.T) {
	path := writeConfigFile(t, `{"interval": "45s"}`)

	var cfg sampleConfig

	assert.Error(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	var cfg sampleConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), "/does/not/exist.json", &cfg)
	assert.Error(t, err)
}

func TestLoadAndValidateMalformedFile(t *testing.T) {
	path := writeConfigFile(t, `{not json`)

	var cfg sampleConfig

	assert.Error(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))
}

func TestLoadAndValidateFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("FLEETDISPLAY_CONFIG_JSON", `{"server_url": "http://localhost:5000"}`)

	var cfg sampleConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, "http://localhost:5000", cfg.ServerURL)
}

func TestLoadAndValidateEnvMissingVariable(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("FLEETDISPLAY_CONFIG_JSON", "")

	var cfg sampleConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg)
	assert.ErrorIs(t, err, errNoEnvConfig)
}

func TestLoadAndValidateCustomEnvPrefix(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "KIOSK_")
	t.Setenv("KIOSK_CONFIG_JSON", `{"server_url": "http://localhost:5000"}`)

	var cfg sampleConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, "http://localhost:5000", cfg.ServerURL)
}

func TestLoadAndValidateInvalidSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg sampleConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg)
	assert.ErrorIs(t, err, errInvalidConfigSource)
}

func TestValidateConfigSkipsNonValidator(t *testing.T) {
	type plain struct{ A int }

	assert.NoError(t, ValidateConfig(&plain{}))
}
