// Package config loads process configuration from environment variables and
// an optional YAML tool manifest.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL    = "https://api.cbetaonline.cn"
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "cbeta-mcp-server/1.0 (https://github.com/olgasafonova/cbeta-mcp-server)"
	DefaultToolsRoot = "cbeta"
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 8000
	DefaultBaseURL   = "http://localhost:8000"
)

// Config holds process settings
type Config struct {
	// APIURL is the remote search service base URL, without trailing slash
	APIURL string

	// Timeout is the default per-call timeout for remote requests
	Timeout time.Duration

	// UserAgent identifies the server to the remote service
	UserAgent string

	// ToolsRoot selects which tool units the loader considers
	ToolsRoot string

	// ManifestPath is an optional YAML manifest; empty means none
	ManifestPath string

	// Host and Port form the HTTP listen address
	Host string
	Port int

	// BaseURL is the externally advertised address of the HTTP transport
	BaseURL string

	// LogLevel is the minimum level written to stderr
	LogLevel slog.Level

	// Manifest is the parsed manifest, zero when ManifestPath is empty
	Manifest Manifest
}

// Manifest narrows the set of loaded tools.
type Manifest struct {
	Root    string   `yaml:"root"`
	Exclude []string `yaml:"exclude"`
	Disable []string `yaml:"disable"`
}

// Load reads configuration from the environment. A manifest named by
// CBETA_MANIFEST is read and applied; a manifest root overrides CBETA_TOOLS_ROOT.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:       strings.TrimRight(getEnv("CBETA_API_URL", DefaultAPIURL), "/"),
		Timeout:      DefaultTimeout,
		UserAgent:    getEnv("CBETA_USER_AGENT", DefaultUserAgent),
		ToolsRoot:    getEnv("CBETA_TOOLS_ROOT", DefaultToolsRoot),
		ManifestPath: os.Getenv("CBETA_MANIFEST"),
		Host:         getEnv("APP_HOST", DefaultHost),
		Port:         DefaultPort,
		BaseURL:      getEnv("APP_BASE_URL", DefaultBaseURL),
		LogLevel:     slog.LevelInfo,
	}

	if u, err := url.Parse(cfg.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("CBETA_API_URL must be an absolute URL, got %q", cfg.APIURL)
	}

	if t := os.Getenv("CBETA_TIMEOUT"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("CBETA_TIMEOUT must be a positive duration, got %q", t)
		}
		cfg.Timeout = d
	}

	if p := os.Getenv("APP_PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("APP_PORT must be a port number, got %q", p)
		}
		cfg.Port = n
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level, err := ParseLevel(lvl)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}

	if cfg.ManifestPath != "" {
		m, err := LoadManifest(cfg.ManifestPath)
		if err != nil {
			return nil, err
		}
		cfg.Manifest = *m
		if m.Root != "" {
			cfg.ToolsRoot = m.Root
		}
	}

	return cfg, nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadManifest reads and parses a YAML manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest YAML. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		// An empty document is a valid, empty manifest.
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	m.Root = strings.Trim(strings.TrimSpace(m.Root), "/")
	return &m, nil
}

// ParseLevel maps a level name to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
