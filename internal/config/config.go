// Package config loads chatroom configuration from a YAML file.
//
// Both commands start from Default, merge the file named by --config when
// one is given, and then apply command-line flags on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omochice/chatroom/internal/logging"
)

// Config is the configuration for the chatroom client and server.
type Config struct {
	// Server describes how the client reaches the chat server.
	Server ServerConfig `yaml:"server"`

	// Timeouts bounds the client's network waits.
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// Log configures diagnostic logging.
	Log LogConfig `yaml:"log"`

	// Transcript configures the optional record of received chat lines.
	Transcript TranscriptConfig `yaml:"transcript"`

	// Listen configures chatroom-server.
	Listen ListenConfig `yaml:"listen"`
}

// ServerConfig configures the connection to the chat server.
type ServerConfig struct {
	// Address is host:port, or a wss:// URL for the WebSocket transport.
	Address string `yaml:"address"`

	// ServerName overrides the host name verified against the certificate.
	ServerName string `yaml:"server_name"`

	// InsecureSkipVerify accepts any server certificate.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CAFile is a PEM bundle used instead of the system roots.
	CAFile string `yaml:"ca_file"`
}

// TimeoutsConfig holds the client timeouts.
type TimeoutsConfig struct {
	Dial    time.Duration `yaml:"dial"`
	Request time.Duration `yaml:"request"`
	// Chunk ends a multi-chunk reply once the server goes quiet.
	Chunk time.Duration `yaml:"chunk"`
	Poll  time.Duration `yaml:"poll"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error or off.
	Level string `yaml:"level"`
}

// TranscriptConfig configures transcript recording.
type TranscriptConfig struct {
	// Path is the transcript file. Empty disables recording.
	Path string `yaml:"path"`
}

// ListenConfig configures the chat server.
type ListenConfig struct {
	Address  string `yaml:"address"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`

	MaxUsers   int `yaml:"max_users"`
	MaxClients int `yaml:"max_clients"`
	MaxRooms   int `yaml:"max_rooms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:8080",
		},
		Timeouts: TimeoutsConfig{
			Dial:    10 * time.Second,
			Request: 5 * time.Second,
			Chunk:   500 * time.Millisecond,
			Poll:    time.Second,
		},
		Log: LogConfig{
			Level: "warn",
		},
		Listen: ListenConfig{
			Address:    ":8080",
			MaxUsers:   100,
			MaxClients: 50,
			MaxRooms:   20,
		},
	}
}

// LoadFile reads path over the defaults. Keys missing from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	for name, d := range map[string]time.Duration{
		"timeouts.dial":    c.Timeouts.Dial,
		"timeouts.request": c.Timeouts.Request,
		"timeouts.chunk":   c.Timeouts.Chunk,
		"timeouts.poll":    c.Timeouts.Poll,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if (c.Listen.CertFile == "") != (c.Listen.KeyFile == "") {
		errs = append(errs, errors.New("listen.cert_file and listen.key_file must be set together"))
	}
	if (c.Listen.AdminUsername == "") != (c.Listen.AdminPassword == "") {
		errs = append(errs, errors.New("listen.admin_username and listen.admin_password must be set together"))
	}

	return errors.Join(errs...)
}
