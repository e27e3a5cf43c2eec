// Package config provides configuration for the interntrack server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Remote types.
const (
	RemoteNone  = ""
	RemoteDrive = "drive"
	RemoteS3    = "s3"
	RemoteLocal = "local"
)

// Config holds the interntrack configuration.
type Config struct {
	// DataDir is the base directory for the database, session and local backups
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`

	// DBPath is the tracker database file
	DBPath string `json:"db_path" yaml:"db_path" toml:"db_path"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http" toml:"http"`

	// Remote backup configuration
	Remote RemoteConfig `json:"remote" yaml:"remote" toml:"remote"`

	// Session configuration
	Session SessionConfig `json:"session" yaml:"session" toml:"session"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log" toml:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`

	// ShutdownTimeout bounds the drain of in-flight requests
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// RemoteConfig holds remote backup configuration.
type RemoteConfig struct {
	// Type is the remote type: drive, s3, local, or empty to disable
	Type string `json:"type" yaml:"type" toml:"type"`

	// ObjectName is the name of the backup object
	ObjectName string `json:"object_name" yaml:"object_name" toml:"object_name"`

	// Timeout bounds each remote call
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`

	// Compress stores snappy-framed payloads
	Compress bool `json:"compress" yaml:"compress" toml:"compress"`

	Drive DriveConfig `json:"drive" yaml:"drive" toml:"drive"`
	S3    S3Config    `json:"s3" yaml:"s3" toml:"s3"`
	Local LocalConfig `json:"local" yaml:"local" toml:"local"`
}

// DriveConfig holds Google Drive OAuth client configuration. Either
// CredentialsFile or ClientID and ClientSecret must be set.
type DriveConfig struct {
	// CredentialsFile is a client secrets JSON downloaded from the Google console
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file" toml:"credentials_file"`

	ClientID     string `json:"client_id" yaml:"client_id" toml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret" toml:"client_secret"`

	// RedirectURL is the OAuth callback; defaults to this server's callback route
	RedirectURL string `json:"redirect_url" yaml:"redirect_url" toml:"redirect_url"`
}

// S3Config holds S3 remote configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket" toml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region" toml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`

	// Prefix is the hidden key prefix holding the backup
	Prefix string `json:"prefix" yaml:"prefix" toml:"prefix"`

	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style" toml:"use_path_style"`
}

// LocalConfig holds local directory remote configuration.
type LocalConfig struct {
	Path string `json:"path" yaml:"path" toml:"path"`
}

// SessionConfig holds session persistence configuration.
type SessionConfig struct {
	// Path is the session file
	Path string `json:"path" yaml:"path" toml:"path"`
}

// LogConfig holds log output configuration. An empty File logs to stderr.
type LogConfig struct {
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress" toml:"compress"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/interntrack",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Remote: RemoteConfig{
			Type:       RemoteDrive,
			ObjectName: "intern-tracker-backup.json",
			Timeout:    30 * time.Second,
			S3: S3Config{
				Region: "us-east-1",
				Prefix: ".interntrack/",
			},
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/interntrack"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "interntrack.db")
	}
	if c.Session.Path == "" {
		c.Session.Path = filepath.Join(c.DataDir, "session.json")
	}
	if c.Remote.Local.Path == "" {
		c.Remote.Local.Path = filepath.Join(c.DataDir, "backups")
	}
	if c.Remote.Drive.RedirectURL == "" {
		host := c.HTTP.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		c.Remote.Drive.RedirectURL = "http://" + host + "/api/sync/auth/callback"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Remote.Type {
	case RemoteNone, RemoteDrive, RemoteS3, RemoteLocal:
	default:
		return fmt.Errorf("invalid remote type: %s (must be drive, s3, local, or empty)", c.Remote.Type)
	}

	if c.Remote.Type == RemoteS3 && c.Remote.S3.Bucket == "" {
		return fmt.Errorf("remote.s3.bucket is required when remote type is s3")
	}

	if c.Remote.ObjectName == "" || strings.ContainsAny(c.Remote.ObjectName, `/\`) {
		return fmt.Errorf("remote.object_name must be a plain file name, got %q", c.Remote.ObjectName)
	}

	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative, got %s", c.Remote.Timeout)
	}

	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}

	return nil
}

// DriveConfigured reports whether Drive OAuth client credentials are set.
func (c *Config) DriveConfigured() bool {
	d := c.Remote.Drive
	return d.CredentialsFile != "" || (d.ClientID != "" && d.ClientSecret != "")
}

// LoadFromFile loads configuration from a YAML, JSON or TOML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the INTERNTRACK_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("INTERNTRACK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("INTERNTRACK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("INTERNTRACK_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Remote configuration
	if v, ok := os.LookupEnv("INTERNTRACK_REMOTE_TYPE"); ok {
		cfg.Remote.Type = v
	}
	if v := os.Getenv("INTERNTRACK_REMOTE_OBJECT_NAME"); v != "" {
		cfg.Remote.ObjectName = v
	}
	if v := os.Getenv("INTERNTRACK_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = d
		}
	}
	if v := os.Getenv("INTERNTRACK_REMOTE_COMPRESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Remote.Compress = b
		}
	}

	// Drive configuration
	if v := os.Getenv("INTERNTRACK_DRIVE_CREDENTIALS_FILE"); v != "" {
		cfg.Remote.Drive.CredentialsFile = v
	}
	if v := os.Getenv("INTERNTRACK_DRIVE_CLIENT_ID"); v != "" {
		cfg.Remote.Drive.ClientID = v
	}
	if v := os.Getenv("INTERNTRACK_DRIVE_CLIENT_SECRET"); v != "" {
		cfg.Remote.Drive.ClientSecret = v
	}
	if v := os.Getenv("INTERNTRACK_DRIVE_REDIRECT_URL"); v != "" {
		cfg.Remote.Drive.RedirectURL = v
	}

	// S3 configuration
	if v := os.Getenv("INTERNTRACK_S3_BUCKET"); v != "" {
		cfg.Remote.S3.Bucket = v
	}
	if v := os.Getenv("INTERNTRACK_S3_REGION"); v != "" {
		cfg.Remote.S3.Region = v
	}
	if v := os.Getenv("INTERNTRACK_S3_ENDPOINT"); v != "" {
		cfg.Remote.S3.Endpoint = v
	}
	if v := os.Getenv("INTERNTRACK_S3_PREFIX"); v != "" {
		cfg.Remote.S3.Prefix = v
	}

	if v := os.Getenv("INTERNTRACK_LOCAL_PATH"); v != "" {
		cfg.Remote.Local.Path = v
	}
	if v := os.Getenv("INTERNTRACK_SESSION_PATH"); v != "" {
		cfg.Session.Path = v
	}
	if v := os.Getenv("INTERNTRACK_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.DBPath),
		filepath.Dir(c.Session.Path),
	}
	if c.Remote.Type == RemoteLocal {
		dirs = append(dirs, c.Remote.Local.Path)
	}
	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
