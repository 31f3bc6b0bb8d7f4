// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Session.JoinTimeout != 500*time.Millisecond {
		t.Errorf("JoinTimeout = %v, want 500ms", cfg.Session.JoinTimeout)
	}
	want := []string{SourceRaw, SourceMicrophone, SourceMiniaudio}
	if !reflect.DeepEqual(cfg.Audio.Sources, want) {
		t.Errorf("Sources = %v, want %v", cfg.Audio.Sources, want)
	}
	if !cfg.Audio.MicrophonePermission {
		t.Error("microphone permission should default to granted")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  input_device: 3
  sources: [wav, miniaudio]
  input_file: take.wav
session:
  join_timeout: 250ms
  dispatch_queue: 16
transport:
  websocket_address: "127.0.0.1:7000"
history:
  path: ""
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Audio.InputDevice != 3 {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Audio.Sources, []string{SourceWAV, SourceMiniaudio}) {
		t.Errorf("Sources = %v", cfg.Audio.Sources)
	}
	if cfg.Session.JoinTimeout != 250*time.Millisecond {
		t.Errorf("JoinTimeout = %v, want 250ms", cfg.Session.JoinTimeout)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Transport.UDPSendInterval != 100*time.Millisecond {
		t.Errorf("UDPSendInterval = %v, want default", cfg.Transport.UDPSendInterval)
	}
	if cfg.History.Path != "" {
		t.Errorf("History.Path = %q, want empty", cfg.History.Path)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown source", func(c *Config) { c.Audio.Sources = []string{"bluetooth"} }, "sources"},
		{"no sources", func(c *Config) { c.Audio.Sources = nil }, "sources"},
		{"device below default", func(c *Config) { c.Audio.InputDevice = -2 }, "input_device"},
		{"zero join timeout", func(c *Config) { c.Session.JoinTimeout = 0 }, "join_timeout"},
		{"zero queue", func(c *Config) { c.Session.DispatchQueue = 0 }, "dispatch_queue"},
		{"bad ws address", func(c *Config) { c.Transport.WebSocketAddress = "nope" }, "websocket_address"},
		{"udp without target", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = ""
		}, "udp_target_address"},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}, "metrics.address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_LOG_LEVEL", "WARN")
	t.Setenv("ENV_INPUT_DEVICE", "2")
	t.Setenv("ENV_MIC_PERMISSION", "false")
	t.Setenv("ENV_WS_ADDRESS", "127.0.0.1:8181")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "127.0.0.1:9999")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "50ms")

	cfg := Default()
	cfg.applyEnvOverrides()

	if !cfg.Debug || cfg.LogLevel != "warn" || cfg.Audio.InputDevice != 2 {
		t.Errorf("general overrides not applied: %+v", cfg)
	}
	if cfg.Audio.MicrophonePermission {
		t.Error("ENV_MIC_PERMISSION=false not applied")
	}
	tr := cfg.Transport
	if tr.WebSocketAddress != "127.0.0.1:8181" || !tr.UDPEnabled ||
		tr.UDPTargetAddress != "127.0.0.1:9999" || tr.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("transport overrides not applied: %+v", tr)
	}
}

func TestEnvOverrides_InvalidIgnored(t *testing.T) {
	t.Setenv("ENV_UDP_SEND_INTERVAL", "soon")
	t.Setenv("ENV_INPUT_DEVICE", "first")

	cfg := Default()
	cfg.applyEnvOverrides()

	if cfg.Transport.UDPSendInterval != 100*time.Millisecond {
		t.Errorf("invalid interval should be ignored, got %v", cfg.Transport.UDPSendInterval)
	}
	if cfg.Audio.InputDevice != MinDeviceID {
		t.Errorf("invalid device should be ignored, got %d", cfg.Audio.InputDevice)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("ENV_TEST_DOTENV_MARKER=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_TEST_DOTENV_MARKER", "")
	os.Unsetenv("ENV_TEST_DOTENV_MARKER")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}
	if got := os.Getenv("ENV_TEST_DOTENV_MARKER"); got != "loaded" {
		t.Errorf("marker = %q, want loaded", got)
	}
	if err := loadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}
