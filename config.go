package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/denisbrodbeck/machineid"
	"github.com/spf13/afero"
)

const configFileName = "concepto_sync_config.json"

// Config is the only persisted state besides the downloaded asset tree.
type Config struct {
	APIEndpoint  string `json:"api_endpoint"`
	APIKey       string `json:"api_key"`
	ShowID       string `json:"show_id"`
	EpisodeID    string `json:"episode_id"`
	DownloadRoot string `json:"download_root"`
}

// Validate checks the fields every sync operation needs before any side
// effect happens.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.APIEndpoint) == "" {
		missing = append(missing, "api_endpoint")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(c.EpisodeID) == "" {
		missing = append(missing, "episode_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("configuration incomplete, missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// scriptsDir returns the host's utility-scripts directory for the current
// platform. The config file lives beside it so the in-host script and this
// helper read the same file.
func scriptsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Blackmagic Design", "DaVinci Resolve", "Support", "Fusion", "Scripts", "Utility")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Blackmagic Design", "DaVinci Resolve", "Fusion", "Scripts", "Utility")
	default:
		return filepath.Join(home, ".local", "share", "DaVinciResolve", "Fusion", "Scripts", "Utility")
	}
}

// ConfigPath picks the config file location: beside the scripts directory
// when it exists, the home directory otherwise.
func ConfigPath(fs afero.Fs) string {
	if dir := scriptsDir(); dir != "" {
		if ok, _ := afero.DirExists(fs, dir); ok {
			return filepath.Join(dir, configFileName)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return configFileName
	}
	return filepath.Join(home, configFileName)
}

// LoadConfig reads the config at path, returning defaults when the file
// does not exist yet.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	cfg := &Config{}
	raw, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		log.Printf("No config at %s, starting with defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.DownloadRoot == "" {
		cfg.DownloadRoot = defaultDownloadRoot()
	}
	return cfg, nil
}

// SaveConfig writes the config to path.
func SaveConfig(fs afero.Fs, path string, cfg *Config) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := afero.WriteFile(fs, path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ImportConfigJSON merges a pasted JSON snippet into cfg. The service's
// "Get API" page emits camelCase keys; our own config file uses snake_case.
// Both spellings are accepted, and only keys present in the snippet are
// applied, so a partial paste keeps existing values. Unknown keys (the
// per-segment fields the setup page includes) are ignored.
func ImportConfigJSON(cfg *Config, snippet string) error {
	var partial map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(snippet)), &partial); err != nil {
		return fmt.Errorf("pasted config is not valid JSON: %w", err)
	}
	apply := func(dst *string, keys ...string) error {
		for _, key := range keys {
			raw, ok := partial[key]
			if !ok {
				continue
			}
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("config field %s must be a string", key)
			}
			*dst = v
			return nil
		}
		return nil
	}
	if err := apply(&cfg.APIEndpoint, "api_endpoint", "apiEndpoint"); err != nil {
		return err
	}
	if err := apply(&cfg.APIKey, "api_key", "apiKey"); err != nil {
		return err
	}
	if err := apply(&cfg.ShowID, "show_id", "showId"); err != nil {
		return err
	}
	if err := apply(&cfg.EpisodeID, "episode_id", "episodeId"); err != nil {
		return err
	}
	return apply(&cfg.DownloadRoot, "download_root", "downloadRoot")
}

func defaultDownloadRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "concepto_assets"
	}
	return filepath.Join(home, "ConceptoSync", "assets")
}

// clientID identifies this installation to the service. Hashed per app so
// the raw machine id never leaves the box.
func clientID() string {
	id, err := machineid.ProtectedID("concepto-sync")
	if err != nil {
		log.Printf("Machine id unavailable, using hostname: %v", err)
		host, herr := os.Hostname()
		if herr != nil {
			return "unknown"
		}
		return host
	}
	return id
}
