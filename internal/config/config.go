// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for resonance.
//
// Configuration is read from ~/.resonance/config.toml with built-in defaults
// and environment variable overrides applied last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete resonance configuration.
type Config struct {
	// Language is the startup conversation language: "en" or "zh".
	// Empty means detect from the LANG environment.
	Language string `toml:"language"`

	// DatabasePath is the SQLite database location.
	// Empty means ~/.resonance/resonance.db.
	DatabasePath string `toml:"database_path"`

	// ServerURL points the terminal client at a remote resonance server
	// instead of the local database. Empty means local storage.
	ServerURL string `toml:"server_url"`

	// ServerToken is the bearer credential for ServerURL.
	ServerToken string `toml:"server_token"`

	Gateway GatewayConfig `toml:"gateway"`
	Server  ServerConfig  `toml:"server"`
	Export  ExportConfig  `toml:"export"`
	UI      UIConfig      `toml:"ui"`
}

// GatewayConfig configures the OpenRouter connection.
type GatewayConfig struct {
	// APIKey is the OpenRouter API key.
	APIKey string `toml:"api_key"`
	// Model overrides the default completion model.
	Model string `toml:"model"`
	// BaseURL overrides the API base URL, mainly for proxies.
	BaseURL string `toml:"base_url"`
}

// ServerConfig configures the `resonance serve` HTTP API.
type ServerConfig struct {
	// Port is the listen port.
	Port int `toml:"port"`
	// AuthToken protects /api routes when set.
	AuthToken string `toml:"auth_token"`
	// RateLimitPerSecond throttles each client IP. Zero disables limiting.
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
	// RateLimitBurst is the per-client burst allowance.
	RateLimitBurst int `toml:"rate_limit_burst"`
}

// ExportConfig configures conversation export.
type ExportConfig struct {
	// OutputDir is where exports are written. Empty means the current
	// directory.
	OutputDir string `toml:"output_dir"`
	// Format is the default export format: "markdown", "json" or "text".
	Format string `toml:"format"`
}

// UIConfig configures the terminal interface.
type UIConfig struct {
	// Theme is "dark" or "light".
	Theme string `toml:"theme"`
	// CompactMode hides timestamps and tightens spacing.
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Language: "",
		Gateway: GatewayConfig{
			APIKey:  "",
			Model:   "",
			BaseURL: "",
		},
		Server: ServerConfig{
			Port:               8590,
			RateLimitPerSecond: 10,
			RateLimitBurst:     20,
		},
		Export: ExportConfig{
			OutputDir: ".",
			Format:    "markdown",
		},
		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the resonance configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".resonance"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDatabasePath returns the default SQLite database location.
func DefaultDatabasePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "resonance.db"), nil
}

// ensureSecurePermissions fixes config file permissions so the API key is
// not world-readable.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions: %w", err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads configuration from the default config file, falling back to
// defaults when the file is missing. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from a specific TOML file. A missing
// file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		// SECURITY: the file carries the API key; keep it owner-only.
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file with owner-only
// permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to a specific TOML file.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// SECURITY: 0600 keeps the API key owner-readable only.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# resonance configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// OVERRIDES / VALIDATION
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides. Environment
// always wins over the file so deployments can inject secrets without
// writing them to disk.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("RESONANCE_MODEL"); v != "" {
		c.Gateway.Model = v
	}
	if v := os.Getenv("RESONANCE_BASE_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("RESONANCE_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("RESONANCE_SERVER_TOKEN"); v != "" {
		c.ServerToken = v
	}
	if v := os.Getenv("RESONANCE_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("RESONANCE_LANGUAGE"); v != "" {
		c.Language = v
	}
	if v := os.Getenv("RESONANCE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = defaults.Server.RateLimitBurst
	}
	if c.Export.OutputDir == "" {
		c.Export.OutputDir = defaults.Export.OutputDir
	}
	if c.Export.Format == "" {
		c.Export.Format = defaults.Export.Format
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitPerSecond < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	switch c.Language {
	case "", "en", "zh":
	default:
		return fmt.Errorf("unsupported language %q (use \"en\" or \"zh\")", c.Language)
	}
	switch c.UI.Theme {
	case "dark", "light":
	default:
		return fmt.Errorf("unknown theme %q", c.UI.Theme)
	}
	switch c.Export.Format {
	case "markdown", "md", "json", "text", "txt":
	default:
		return fmt.Errorf("unknown export format %q", c.Export.Format)
	}
	return nil
}
