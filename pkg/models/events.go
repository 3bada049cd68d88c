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

package models

import (
	"encoding/json"
	"strconv"
)

// Event channel message types.
const (
	EventPagesSync    = "pages_sync"
	EventPagesUpdated = "pages_updated"
	EventSync         = "sync"
	EventControl      = "control"
	EventWifiConfig   = "wifi_config"
	EventRestart      = "restart_kiosk"
	EventReboot       = "reboot_system"

	EventKioskConnect = "kiosk_connect"
	EventKioskStatus  = "kiosk_status"
	EventRequestPages = "request_pages"
	EventWifiResult   = "wifi_result"
)

// Control actions.
const (
	ActionPause         = "pause"
	ActionResume        = "resume"
	ActionNext          = "next"
	ActionPrev          = "prev"
	ActionRefresh       = "refresh"
	ActionGoto          = "goto"
	ActionLoginMode     = "login_mode"
	ActionExitLoginMode = "exit_login_mode"
	ActionAdminMode     = "admin_mode"
	ActionExitAdminMode = "exit_admin_mode"
)

// Envelope is the wire frame for every event channel message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PagesSync replaces the rotation state wholesale and refreshes the
// server clock reference.
type PagesSync struct {
	Pages       []Page  `json:"pages"`
	ServerTime  float64 `json:"server_time"`
	SyncEnabled bool    `json:"sync_enabled"`
}

// SyncCommand orders a fleet-wide simultaneous realignment at SyncAt
// (unix seconds). A malformed or missing fire time decodes to zero; the
// rotation engine substitutes a near-future default rather than dropping
// the command.
type SyncCommand struct {
	SyncAt      float64 `json:"sync_at"`
	PageID      *int64  `json:"page_id,omitempty"`
	SyncEnabled bool    `json:"sync_enabled"`
}

func (s *SyncCommand) UnmarshalJSON(b []byte) error {
	var raw struct {
		SyncAt      json.RawMessage `json:"sync_at"`
		PageID      *int64          `json:"page_id"`
		SyncEnabled *bool           `json:"sync_enabled"`
	}

	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	s.PageID = raw.PageID

	// Sync stays on unless the server says otherwise.
	s.SyncEnabled = true
	if raw.SyncEnabled != nil {
		s.SyncEnabled = *raw.SyncEnabled
	}

	s.SyncAt = parseUnixSeconds(raw.SyncAt)

	return nil
}

// parseUnixSeconds accepts a JSON number or a numeric string and returns
// zero for anything else.
func parseUnixSeconds(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return f
		}
	}

	return 0
}

// ControlCommand is a single remote-control action.
type ControlCommand struct {
	Action string `json:"action"`
	PageID int64  `json:"page_id,omitempty"`
}

// WifiConfig provisions wireless credentials on the device.
type WifiConfig struct {
	SSID     string `json:"ssid"`
	Password string `json:"password,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`
}

// KioskConnect announces the device after the event channel comes up.
type KioskConnect struct {
	Hostname       string    `json:"hostname"`
	IP             string    `json:"ip,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	ConnectionType PathClass `json:"connection_type"`
}

// KioskStatus reports the current display state to the control server.
type KioskStatus struct {
	Hostname       string    `json:"hostname"`
	SessionID      string    `json:"session_id,omitempty"`
	CurrentPageID  *int64    `json:"current_page_id"`
	CurrentIndex   int       `json:"current_index"`
	TotalPages     int       `json:"total_pages"`
	Paused         bool      `json:"paused"`
	SafeMode       bool      `json:"safe_mode"`
	ConnectionType PathClass `json:"connection_type"`
	UptimeSec      uint64    `json:"uptime_sec,omitempty"`
}

// RequestPages asks the server for this device's page list.
type RequestPages struct {
	Hostname string `json:"hostname"`
}

// WifiResult reports the outcome of a WifiConfig command.
type WifiResult struct {
	Hostname string `json:"hostname"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}
