// Package main implements the interntrack binary: the sync HTTP service
// and one-shot backup commands against the same local database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/interntrack/interntrack/internal/app"
	"github.com/interntrack/interntrack/internal/config"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configFile string
	dataDir    string
	remoteType string
	compress   bool
)

var rootCmd = &cobra.Command{
	Use:   "interntrack",
	Short: "Backup, restore and sync for the intern tracker database",
	Long: `interntrack snapshots the intern tracker database into a single JSON
backup object and keeps it in sync with a remote (Google Drive, S3 or a
local directory).

Configuration is read from --config (YAML, JSON or TOML), then
INTERNTRACK_* environment variables, then command line flags.

Environment Variables:
  INTERNTRACK_DATA_DIR             Base directory for data files
  INTERNTRACK_REMOTE_TYPE          Remote type (drive, s3, local; empty disables)
  INTERNTRACK_DRIVE_CLIENT_ID      Google OAuth client id
  INTERNTRACK_DRIVE_CLIENT_SECRET  Google OAuth client secret
  INTERNTRACK_S3_BUCKET            S3 bucket for the backup object`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("interntrack version %s (commit: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	rootCmd.PersistentFlags().StringVar(&remoteType, "remote", "", "Remote type: drive, s3, local")
	rootCmd.PersistentFlags().BoolVar(&compress, "compress", false, "Upload snappy-compressed backups")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if changed(cmd, "remote") {
		cfg.Remote.Type = remoteType
	}
	if changed(cmd, "compress") {
		cfg.Remote.Compress = compress
	}
	return cfg, nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// withApp builds the application for a one-shot command and closes it
// afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// printJSON writes v to stdout, indented.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
