package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/dshills/localbrain/internal/providers"
	"github.com/dshills/localbrain/internal/redact"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "LOCAL_BRAIN_CONFIG"

// Config represents the local-brain configuration.
type Config struct {
	OllamaHost   string        `toml:"ollama_host" json:"ollamaHost"`
	Timeout      int           `toml:"timeout" json:"timeout"`
	Format       string        `toml:"format" json:"format"`
	RegistryPath string        `toml:"registry_path,omitempty" json:"registryPath,omitempty"`
	Runs         int           `toml:"runs" json:"runs"`
	Parallel     int           `toml:"parallel" json:"parallel"`
	Kind         string        `toml:"kind,omitempty" json:"kind,omitempty"`
	ReviewFocus  string        `toml:"review_focus,omitempty" json:"reviewFocus,omitempty"`
	RulesFile    string        `toml:"rules_file,omitempty" json:"rulesFile,omitempty"`
	Retries      int           `toml:"retries" json:"retries"`
	Privacy      PrivacyConfig `toml:"privacy" json:"privacy"`
}

// PrivacyConfig controls redaction of file content before it reaches the model.
type PrivacyConfig struct {
	RedactSecrets bool     `toml:"redact_secrets" json:"redactSecrets"`
	RedactPaths   []string `toml:"redact_paths,omitempty" json:"redactPaths,omitempty"`
}

// fileConfig mirrors Config with pointers so keys absent from the file can be
// told apart from zero values.
type fileConfig struct {
	OllamaHost   *string `toml:"ollama_host"`
	Timeout      *int    `toml:"timeout"`
	Format       *string `toml:"format"`
	RegistryPath *string `toml:"registry_path"`
	Runs         *int    `toml:"runs"`
	Parallel     *int    `toml:"parallel"`
	Kind         *string `toml:"kind"`
	ReviewFocus  *string `toml:"review_focus"`
	RulesFile    *string `toml:"rules_file"`
	Retries      *int    `toml:"retries"`
	Privacy      struct {
		RedactSecrets *bool    `toml:"redact_secrets"`
		RedactPaths   []string `toml:"redact_paths"`
	} `toml:"privacy"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		OllamaHost: providers.DefaultHost,
		Timeout:    120,
		Format:     "markdown",
		Runs:       1,
		Parallel:   1,
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   append([]string(nil), redact.DefaultSensitivePaths...),
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for local-brain.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "local-brain"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "local-brain"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "local-brain"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "local-brain"), nil
	default:
		return filepath.Join(home, ".config", "local-brain"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadFile loads the config file on top of the defaults. A missing file
// yields the defaults and no error.
func LoadFile() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	mergeFile(&cfg, fc)
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(dst *Config, src fileConfig) {
	setString(&dst.OllamaHost, src.OllamaHost)
	setString(&dst.Format, src.Format)
	setString(&dst.RegistryPath, src.RegistryPath)
	setString(&dst.Kind, src.Kind)
	setString(&dst.ReviewFocus, src.ReviewFocus)
	setString(&dst.RulesFile, src.RulesFile)
	setPositive(&dst.Timeout, src.Timeout)
	setPositive(&dst.Runs, src.Runs)
	setPositive(&dst.Parallel, src.Parallel)
	if src.Retries != nil && *src.Retries >= 0 {
		dst.Retries = *src.Retries
	}
	if src.Privacy.RedactSecrets != nil {
		dst.Privacy.RedactSecrets = *src.Privacy.RedactSecrets
	}
	if src.Privacy.RedactPaths != nil {
		dst.Privacy.RedactPaths = src.Privacy.RedactPaths
	}
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setPositive(dst *int, v *int) {
	if v != nil && *v > 0 {
		*dst = *v
	}
}

// envKeys maps environment variables to config keys accepted by SetField.
var envKeys = []struct{ env, key string }{
	{"OLLAMA_HOST", "ollama_host"},
	{"LOCAL_BRAIN_TIMEOUT", "timeout"},
	{"LOCAL_BRAIN_FORMAT", "format"},
	{"LOCAL_BRAIN_REGISTRY", "registry_path"},
	{"LOCAL_BRAIN_RUNS", "runs"},
	{"LOCAL_BRAIN_PARALLEL", "parallel"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists the keys accepted by SetField.
var Keys = []string{
	"ollama_host", "timeout", "format", "registry_path", "runs", "parallel",
	"kind", "review_focus", "rules_file", "retries",
	"privacy.redact_secrets", "privacy.redact_paths",
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "ollama_host":
		cfg.OllamaHost = value
	case "timeout":
		n, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Timeout = n
	case "format":
		cfg.Format = value
	case "registry_path":
		cfg.RegistryPath = value
	case "runs":
		n, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Runs = n
	case "parallel":
		n, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Parallel = n
	case "kind":
		cfg.Kind = value
	case "review_focus":
		cfg.ReviewFocus = value
	case "rules_file":
		cfg.RulesFile = value
	case "retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("retries must be a non-negative integer: %q", value)
		}
		cfg.Retries = n
	case "privacy.redact_secrets":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("privacy.redact_secrets must be a boolean: %w", err)
		}
		cfg.Privacy.RedactSecrets = b
	case "privacy.redact_paths":
		var paths []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		cfg.Privacy.RedactPaths = paths
	default:
		return fmt.Errorf("unknown config key: %s (valid keys: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

func positiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer: %q", key, value)
	}
	return n, nil
}
