// Package config holds the runtime configuration for lanchat: well-known
// ports, the downloads directory and the optional control endpoint.
//
// Values come from Default(), optionally overlaid by a YAML file (LoadFile),
// then by command-line flags in cmd/lanchat.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known ports shared by every peer on the subnet. Peers do not negotiate
// ports, so changing one on a single machine isolates it from the others.
const (
	DefaultVoicePort     = 11000
	DefaultDiscoveryPort = 11001
	DefaultFilePort      = 11002
)

// Config stores all runtime parameters.
type Config struct {
	// HostName overrides os.Hostname as the identity announced to peers.
	HostName string `yaml:"host_name"`

	// Interface pins discovery to one network interface by name.
	// Empty picks the first usable IPv4 interface.
	Interface string `yaml:"interface"`

	DiscoveryPort int `yaml:"discovery_port"`
	FilePort      int `yaml:"file_port"`
	VoicePort     int `yaml:"voice_port"`

	// DownloadDir receives inbound files. Relative paths resolve against
	// the working directory.
	DownloadDir string `yaml:"download_dir"`

	// DialTimeout bounds the TCP connect of an outbound file transfer.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ControlAddr is the listen address of the WebSocket control endpoint,
	// e.g. "127.0.0.1:7070". Empty disables it.
	ControlAddr string `yaml:"control_addr"`

	// ControlToken must be presented by control clients as the "token"
	// query parameter. Empty generates a fresh one at startup.
	ControlToken string `yaml:"control_token"`

	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DiscoveryPort: DefaultDiscoveryPort,
		FilePort:      DefaultFilePort,
		VoicePort:     DefaultVoicePort,
		DownloadDir:   "Downloads",
		DialTimeout:   10 * time.Second,
	}
}

// LoadFile reads a YAML file and overlays it on Default(). Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks port ranges and required fields.
func (c Config) Validate() error {
	var errs []error
	for _, p := range []struct {
		name string
		port int
	}{
		{"discovery_port", c.DiscoveryPort},
		{"file_port", c.FilePort},
		{"voice_port", c.VoicePort},
	} {
		if p.port < 1 || p.port > 65535 {
			errs = append(errs, fmt.Errorf("%s must be 1~65535, got %d", p.name, p.port))
		}
	}
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("download_dir must not be empty"))
	}
	if c.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("dial_timeout must not be negative, got %s", c.DialTimeout))
	}
	return errors.Join(errs...)
}
