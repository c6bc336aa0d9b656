package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "beaconchat"
	// TransportBLE selects the Bluetooth Low Energy adapter.
	TransportBLE = "ble"
	// TransportMDNS selects the LAN mDNS adapter.
	TransportMDNS = "mdns"
	// DefaultPayloadLimit caps the user-facing broadcast payload length in
	// runes. The cap is enforced by the application layer, not the core.
	DefaultPayloadLimit = 12
	// DefaultMDNSPort is registered with the mDNS service record.
	DefaultMDNSPort = 42424
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// DeviceConfig contains persistent local-device settings.
type DeviceConfig struct {
	DeviceID     string `json:"device_id"`
	DeviceName   string `json:"device_name"`
	Transport    string `json:"transport"`
	PayloadLimit int    `json:"payload_limit"`
	MDNSPort     int    `json:"mdns_port"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If BEACONCHAT_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv("BEACONCHAT_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg DeviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *DeviceConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures the data directory and config exist, then returns the
// config and its path.
func LoadOrCreate() (*DeviceConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create directory %q: %w", dataDir, err)
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig()
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig() *DeviceConfig {
	return &DeviceConfig{
		DeviceID:     uuid.NewString(),
		DeviceName:   defaultDeviceName(),
		Transport:    TransportBLE,
		PayloadLimit: DefaultPayloadLimit,
		MDNSPort:     DefaultMDNSPort,
	}
}

func defaultDeviceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "Beacon Device"
}

func normalizeDefaults(cfg *DeviceConfig) bool {
	updated := false

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		updated = true
	}

	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName()
		updated = true
	}

	if normalizeTransport(cfg.Transport) == "" {
		cfg.Transport = TransportBLE
		updated = true
	}

	if cfg.PayloadLimit <= 0 {
		cfg.PayloadLimit = DefaultPayloadLimit
		updated = true
	}

	if cfg.MDNSPort <= 0 {
		cfg.MDNSPort = DefaultMDNSPort
		updated = true
	}

	return updated
}

func normalizeTransport(transport string) string {
	switch transport {
	case TransportBLE:
		return TransportBLE
	case TransportMDNS:
		return TransportMDNS
	default:
		return ""
	}
}
