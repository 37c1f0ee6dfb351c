package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Storage    StorageConfig    `mapstructure:"storage" json:"storage"`
	Transcoder TranscoderConfig `mapstructure:"transcoder" json:"transcoder"`
	Model      ModelConfig      `mapstructure:"model" json:"model"`
	Mirror     MirrorConfig     `mapstructure:"mirror" json:"mirror"`
	Auth       AuthConfig       `mapstructure:"auth" json:"auth"`
	Limits     LimitsConfig     `mapstructure:"limits" json:"limits"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen" json:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	// URL is where clients reach the server; empty derives it from Listen.
	URL string `mapstructure:"url" json:"url"`
}

// ClientURL returns the base URL clients use. A wildcard listen host is
// reached through the loopback address.
func (s ServerConfig) ClientURL() string {
	if s.URL != "" {
		return strings.TrimRight(s.URL, "/")
	}
	host, port, err := net.SplitHostPort(s.Listen)
	if err != nil {
		return "http://" + s.Listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// StorageConfig locates the durable and ephemeral directories.
// Empty References and Outputs are derived from Root.
type StorageConfig struct {
	Root       string `mapstructure:"root" json:"root"`
	References string `mapstructure:"references" json:"references"`
	Outputs    string `mapstructure:"outputs" json:"outputs"`
	// Workspace is the parent of per-request scratch directories; empty means os.TempDir().
	Workspace string `mapstructure:"workspace" json:"workspace"`
}

// ReferencesDir returns the reference clip directory.
func (s StorageConfig) ReferencesDir() string {
	if s.References != "" {
		return s.References
	}
	return filepath.Join(s.Root, "references")
}

// OutputsDir returns the generated artifact directory.
func (s StorageConfig) OutputsDir() string {
	if s.Outputs != "" {
		return s.Outputs
	}
	return filepath.Join(s.Root, "outputs")
}

// TranscoderConfig holds the audio transcoder settings.
type TranscoderConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// ModelConfig describes how the synthesis model is invoked:
// <command> <args...> <reference.wav> <text> <lang> <output.wav>.
type ModelConfig struct {
	Command         string   `mapstructure:"command" json:"command"`
	Args            []string `mapstructure:"args" json:"args"`
	DefaultLanguage string   `mapstructure:"default_language" json:"default_language"`
}

// MirrorConfig enables copying generated artifacts to a NATS object store.
type MirrorConfig struct {
	NATSURL string `mapstructure:"nats_url" json:"nats_url"`
	Bucket  string `mapstructure:"bucket" json:"bucket"`
}

// Enabled reports whether a mirror is configured.
func (m MirrorConfig) Enabled() bool {
	return m.NATSURL != ""
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key" json:"api_key"`
}

// LimitsConfig holds request limit settings.
type LimitsConfig struct {
	MaxTextLength  int   `mapstructure:"max_text_length" json:"max_text_length"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       "0.0.0.0:8080",
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Storage: StorageConfig{
			Root: "storage",
		},
		Transcoder: TranscoderConfig{
			Path: "ffmpeg",
		},
		Model: ModelConfig{
			Command:         ".venv/bin/python",
			Args:            []string{"scripts/xtts_generate.py"},
			DefaultLanguage: "en",
		},
		Mirror: MirrorConfig{
			Bucket: "voxclone-outputs",
		},
		Limits: LimitsConfig{
			MaxTextLength:  0,
			MaxUploadBytes: 50 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load returns a Config populated with defaults and environment overrides.
func Load() (*Config, error) {
	return LoadWithDefaults(nil)
}

// LoadWithDefaults loads configuration using defaults and optional overrides map (for tests).
func LoadWithDefaults(overrides map[string]interface{}) (*Config, error) {
	cfg := Default()
	ApplyEnvOverrides(cfg)

	if overrides != nil {
		raw, err := json.Marshal(overrides)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// envBinding maps a config key to its environment variables, checked in
// order. The first non-empty variable wins.
type envBinding struct {
	key  string
	vars []string
	set  func(cfg *Config, v string) error
}

var envBindings = []envBinding{
	{"server.listen", []string{"VOX_LISTEN"}, func(c *Config, v string) error { c.Server.Listen = v; return nil }},
	{"server.read_timeout", []string{"VOX_READ_TIMEOUT"}, func(c *Config, v string) error { return setDuration(&c.Server.ReadTimeout, v) }},
	{"server.write_timeout", []string{"VOX_WRITE_TIMEOUT"}, func(c *Config, v string) error { return setDuration(&c.Server.WriteTimeout, v) }},
	{"server.url", []string{"VOX_SERVER_URL"}, func(c *Config, v string) error { c.Server.URL = v; return nil }},
	{"storage.root", []string{"VOX_STORAGE_ROOT"}, func(c *Config, v string) error { c.Storage.Root = v; return nil }},
	{"storage.references", []string{"VOX_REFERENCES_DIR"}, func(c *Config, v string) error { c.Storage.References = v; return nil }},
	{"storage.outputs", []string{"VOX_OUTPUTS_DIR"}, func(c *Config, v string) error { c.Storage.Outputs = v; return nil }},
	{"storage.workspace", []string{"VOX_WORKSPACE_DIR"}, func(c *Config, v string) error { c.Storage.Workspace = v; return nil }},
	{"transcoder.path", []string{"VOX_TRANSCODER"}, func(c *Config, v string) error { c.Transcoder.Path = v; return nil }},
	// XTTS_PYTHON is the interpreter variable used by existing deployments.
	{"model.command", []string{"VOX_MODEL_COMMAND", "XTTS_PYTHON"}, func(c *Config, v string) error { c.Model.Command = v; return nil }},
	{"model.args", []string{"VOX_MODEL_ARGS"}, func(c *Config, v string) error { c.Model.Args = strings.Fields(v); return nil }},
	{"model.default_language", []string{"VOX_DEFAULT_LANGUAGE"}, func(c *Config, v string) error { c.Model.DefaultLanguage = v; return nil }},
	{"mirror.nats_url", []string{"VOX_MIRROR_NATS_URL"}, func(c *Config, v string) error { c.Mirror.NATSURL = v; return nil }},
	{"mirror.bucket", []string{"VOX_MIRROR_BUCKET"}, func(c *Config, v string) error { c.Mirror.Bucket = v; return nil }},
	{"auth.api_key", []string{"VOX_API_KEY"}, func(c *Config, v string) error { c.Auth.APIKey = v; return nil }},
	{"limits.max_text_length", []string{"VOX_MAX_TEXT_LENGTH"}, func(c *Config, v string) error { return setInt(&c.Limits.MaxTextLength, v) }},
	{"limits.max_upload_bytes", []string{"VOX_MAX_UPLOAD_BYTES"}, func(c *Config, v string) error { return setInt64(&c.Limits.MaxUploadBytes, v) }},
	{"logging.level", []string{"VOX_LOG_LEVEL"}, func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"logging.format", []string{"VOX_LOG_FORMAT"}, func(c *Config, v string) error { c.Logging.Format = v; return nil }},
}

// EnvVars returns the environment variables of every config key, for binding
// the same names into viper.
func EnvVars() map[string][]string {
	vars := make(map[string][]string, len(envBindings))
	for _, b := range envBindings {
		vars[b.key] = b.vars
	}
	return vars
}

// ApplyEnvOverrides overwrites cfg fields from VOX_* environment variables.
// Malformed numbers and durations are ignored.
func ApplyEnvOverrides(cfg *Config) {
	for _, b := range envBindings {
		for _, name := range b.vars {
			if v := os.Getenv(name); v != "" {
				_ = b.set(cfg, v)
				break
			}
		}
	}
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, v string) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}
