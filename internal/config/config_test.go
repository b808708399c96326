package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatroom.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
	if cfg.Timeouts.Chunk != 500*time.Millisecond {
		t.Errorf("Timeouts.Chunk = %v", cfg.Timeouts.Chunk)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  address: wss://chat.example.com:8443/
  insecure_skip_verify: true
timeouts:
  request: 2s
  chunk: 250ms
log:
  level: debug
transcript:
  path: /tmp/chat.pb
listen:
  max_rooms: 5
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Address != "wss://chat.example.com:8443/" || !cfg.Server.InsecureSkipVerify {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Timeouts.Request != 2*time.Second || cfg.Timeouts.Chunk != 250*time.Millisecond {
		t.Errorf("Timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Timeouts.Poll != time.Second {
		t.Errorf("Timeouts.Poll = %v, want default", cfg.Timeouts.Poll)
	}
	if cfg.Log.Level != "debug" || cfg.Transcript.Path != "/tmp/chat.pb" {
		t.Errorf("Log = %+v, Transcript = %+v", cfg.Log, cfg.Transcript)
	}
	if cfg.Listen.MaxRooms != 5 || cfg.Listen.MaxUsers != 100 {
		t.Errorf("Listen = %+v", cfg.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile() of a missing file succeeded")
	}
	if _, err := LoadFile(writeConfig(t, "timeouts: [1, 2")); err == nil {
		t.Error("LoadFile() of malformed YAML succeeded")
	}
	if _, err := LoadFile(writeConfig(t, "timeouts:\n  chunk: soon\n")); err == nil {
		t.Error("LoadFile() accepted an invalid duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty address", func(c *Config) { c.Server.Address = "" }, "server.address"},
		{"zero chunk", func(c *Config) { c.Timeouts.Chunk = 0 }, "timeouts.chunk"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"cert without key", func(c *Config) { c.Listen.CertFile = "cert.pem" }, "listen.cert_file"},
		{"admin without password", func(c *Config) { c.Listen.AdminUsername = "root" }, "listen.admin_username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
