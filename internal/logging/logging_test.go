package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pterm/pterm"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    pterm.LogLevel
		wantErr bool
	}{
		{"debug", pterm.LogLevelDebug, false},
		{"INFO", pterm.LogLevelInfo, false},
		{"", pterm.LogLevelInfo, false},
		{"warning", pterm.LogLevelWarn, false},
		{"error", pterm.LogLevelError, false},
		{"off", pterm.LogLevelDisabled, false},
		{"loud", pterm.LogLevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden detail")
	logger.Info("client connected")

	out := buf.String()
	if !strings.Contains(out, "client connected") {
		t.Errorf("output %q does not contain the info record", out)
	}
	if strings.Contains(out, "hidden detail") {
		t.Errorf("output %q contains a debug record", out)
	}
}

func TestNew_Off(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("off", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing", buf.String())
	}
}

func TestNew_UnknownLevel(t *testing.T) {
	if _, err := New("loud", &bytes.Buffer{}); err == nil {
		t.Error("New() accepted an unknown level")
	}
}
