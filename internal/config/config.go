// Package config loads the onedrive-personal configuration from a TOML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

// Environment variables read by the CLI.
const (
	EnvConfigPath  = "ONEDRIVE_CONFIG_PATH"
	EnvAccessToken = "ONEDRIVE_ACCESS_TOKEN"
)

const (
	appName        = "onedrive-personal"
	configFileName = "config.toml"
	tokenFileName  = "token.json"
)

// ClientID is the default Azure application registration used for refresh.
const ClientID = "71ae7ad2-0207-4618-90d3-d21db38f9f7a"

// Config holds all settings of the CLI.
type Config struct {
	Graph   GraphConfig   `toml:"graph"`
	Upload  UploadConfig  `toml:"upload"`
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`

	// AccessToken comes from ONEDRIVE_ACCESS_TOKEN and is never read from
	// or written to the file.
	AccessToken string `toml:"-"`
	// Path is the file the configuration was loaded from.
	Path string `toml:"-"`
}

// GraphConfig configures the HTTP side of the SDK client.
type GraphConfig struct {
	BaseURL           string   `toml:"base_url"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

// UploadConfig configures resumable uploads.
type UploadConfig struct {
	ChunkSize    Size     `toml:"chunk_size"`
	MaxRetries   int      `toml:"max_retries"`
	ChunkTimeout Duration `toml:"chunk_timeout"`
	VerifyHash   bool     `toml:"verify_hash"`
}

// AuthConfig locates the stored OAuth2 token and the app it belongs to.
type AuthConfig struct {
	ClientID  string `toml:"client_id"`
	Tenant    string `toml:"tenant"`
	TokenFile string `toml:"token_file"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as "30s" or "2m" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Size is a byte count written as "10MiB", "5 MB" or a bare number.
type Size int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	v, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	*s = Size(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(humanize.IBytes(uint64(s))), nil
}

func (s Size) String() string { return humanize.IBytes(uint64(s)) }

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			BaseURL: onedrive.GraphBaseURL,
			Timeout: Duration(onedrive.DefaultTimeout),
			Burst:   1,
		},
		Upload: UploadConfig{
			ChunkSize:    Size(onedrive.DefaultChunkSize),
			MaxRetries:   onedrive.DefaultMaxRetries,
			ChunkTimeout: Duration(onedrive.DefaultChunkTimeout),
			VerifyHash:   true,
		},
		Auth: AuthConfig{
			ClientID:  ClientID,
			Tenant:    "consumers",
			TokenFile: filepath.Join(DefaultConfigDir(), tokenFileName),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// DefaultConfigDir follows XDG_CONFIG_HOME and falls back to ~/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return appName
	}
	return filepath.Join(home, ".config", appName)
}

// DefaultPath returns ONEDRIVE_CONFIG_PATH or the file in DefaultConfigDir.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir(), configFileName)
}

// Load reads path, or DefaultPath when path is empty. A missing file yields
// the defaults. Unknown keys are rejected so typos do not go unnoticed.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	cfg.Path = path

	md, err := toml.DecodeFile(path, cfg)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	cfg.AccessToken = os.Getenv(EnvAccessToken)
	cfg.Auth.TokenFile = expandHome(cfg.Auth.TokenFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges that the TOML types cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Graph.BaseURL == "" {
		errs = append(errs, errors.New("graph.base_url is empty"))
	}
	if c.Graph.Timeout <= 0 {
		errs = append(errs, errors.New("graph.timeout must be positive"))
	}
	if c.Graph.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("graph.requests_per_second must not be negative"))
	}
	if c.Graph.RequestsPerSecond > 0 && c.Graph.Burst < 1 {
		errs = append(errs, errors.New("graph.burst must be at least 1 when rate limiting"))
	}
	if c.Upload.ChunkSize <= 0 || c.Upload.ChunkSize%onedrive.ChunkAlignment != 0 {
		errs = append(errs, fmt.Errorf("upload.chunk_size %s is not a positive multiple of 320KiB", c.Upload.ChunkSize))
	}
	if c.Upload.MaxRetries < 0 {
		errs = append(errs, errors.New("upload.max_retries must not be negative"))
	}
	if c.Upload.ChunkTimeout <= 0 {
		errs = append(errs, errors.New("upload.chunk_timeout must be positive"))
	}
	if c.AccessToken == "" && c.Auth.TokenFile == "" {
		errs = append(errs, errors.New("auth.token_file is empty"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Write encodes c as TOML.
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ChunkSizeBytes returns the configured chunk size as int64.
func (c *Config) ChunkSizeBytes() int64 { return int64(c.Upload.ChunkSize) }

// Summary is a one-line description used in debug logs.
func (c *Config) Summary() string {
	return "chunk_size=" + c.Upload.ChunkSize.String() +
		" max_retries=" + strconv.Itoa(c.Upload.MaxRetries) +
		" timeout=" + time.Duration(c.Graph.Timeout).String()
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
