package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("remote timeout = %s, want 30s", cfg.Remote.Timeout)
	}
	if cfg.DBPath != filepath.Join(cfg.DataDir, "interntrack.db") {
		t.Errorf("db path = %s", cfg.DBPath)
	}
	if cfg.Remote.Drive.RedirectURL != "http://localhost:8080/api/sync/auth/callback" {
		t.Errorf("redirect url = %s", cfg.Remote.Drive.RedirectURL)
	}
	if cfg.DriveConfigured() {
		t.Error("drive should not be configured without credentials")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"bad remote type", func(c *Config) { c.Remote.Type = "ftp" }, "invalid remote type"},
		{"s3 without bucket", func(c *Config) { c.Remote.Type = RemoteS3 }, "bucket"},
		{"object name with slash", func(c *Config) { c.Remote.ObjectName = "a/b.json" }, "object_name"},
		{"empty object name", func(c *Config) { c.Remote.ObjectName = "" }, "object_name"},
		{"negative timeout", func(c *Config) { c.Remote.Timeout = -time.Second }, "timeout"},
		{"negative log size", func(c *Config) { c.Log.MaxSizeMB = -1 }, "log"},
		{"disabled remote", func(c *Config) { c.Remote.Type = RemoteNone }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			cfg.Resolve()
			err := cfg.Validate()
			if tt.errSub == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("got %v, want error containing %q", err, tt.errSub)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"config.yaml": `
data_dir: /var/lib/interntrack
remote:
  type: s3
  timeout: 45s
  compress: true
  s3:
    bucket: backups
`,
		"config.json": `{
  "data_dir": "/var/lib/interntrack",
  "remote": {"type": "s3", "timeout": 45000000000, "compress": true, "s3": {"bucket": "backups"}}
}`,
		"config.toml": `
data_dir = "/var/lib/interntrack"

[remote]
type = "s3"
timeout = "45s"
compress = true

[remote.s3]
bucket = "backups"
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile failed: %v", err)
			}

			if cfg.DataDir != "/var/lib/interntrack" || cfg.Remote.Type != RemoteS3 || cfg.Remote.S3.Bucket != "backups" {
				t.Errorf("unexpected config: %+v", cfg)
			}
			if cfg.Remote.Timeout != 45*time.Second || !cfg.Remote.Compress {
				t.Errorf("remote = %+v", cfg.Remote)
			}
			// Unset fields keep their defaults.
			if cfg.HTTP.Addr != ":8080" || cfg.Remote.S3.Region != "us-east-1" {
				t.Errorf("defaults lost: addr=%s region=%s", cfg.HTTP.Addr, cfg.Remote.S3.Region)
			}
		})
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	ini := filepath.Join(dir, "config.ini")
	os.WriteFile(ini, []byte("x=1"), 0644)
	if _, err := LoadFromFile(ini); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("got %v, want unsupported format", err)
	}

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("[remote\n"), 0644)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected TOML parse error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INTERNTRACK_DATA_DIR", "/tmp/it")
	t.Setenv("INTERNTRACK_REMOTE_TYPE", "local")
	t.Setenv("INTERNTRACK_REMOTE_TIMEOUT", "5s")
	t.Setenv("INTERNTRACK_REMOTE_COMPRESS", "true")
	t.Setenv("INTERNTRACK_DRIVE_CLIENT_ID", "id")
	t.Setenv("INTERNTRACK_DRIVE_CLIENT_SECRET", "secret")
	t.Setenv("INTERNTRACK_S3_BUCKET", "b")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.DataDir != "/tmp/it" || cfg.Remote.Type != RemoteLocal {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Remote.Timeout != 5*time.Second || !cfg.Remote.Compress {
		t.Errorf("remote = %+v", cfg.Remote)
	}
	if !cfg.DriveConfigured() || cfg.Remote.S3.Bucket != "b" {
		t.Errorf("credentials not loaded: %+v", cfg.Remote)
	}
}

func TestLoadFromEnv_EmptyRemoteTypeDisables(t *testing.T) {
	t.Setenv("INTERNTRACK_REMOTE_TYPE", "")
	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	if cfg.Remote.Type != RemoteNone {
		t.Errorf("remote type = %q, want disabled", cfg.Remote.Type)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data")
	cfg := DefaultConfig()
	cfg.DataDir = base
	cfg.Remote.Type = RemoteLocal
	cfg.Log.File = filepath.Join(base, "logs", "interntrack.log")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{base, cfg.Remote.Local.Path, filepath.Dir(cfg.Log.File)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}
