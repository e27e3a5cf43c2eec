package main

import (
	"context"
	"log"

	"github.com/interntrack/interntrack/internal/app"
	"github.com/spf13/cobra"
)

var httpAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync HTTP service",
	Long: `Serve the /api/sync and /api/backup endpoints until SIGINT or SIGTERM.

In-flight requests are allowed to finish before the database is closed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if httpAddr != "" {
			cfg.HTTP.Addr = httpAddr
		}

		a, err := app.New(context.Background(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		log.Printf("interntrack %s starting", version)
		log.Printf("  Data Dir: %s", cfg.DataDir)
		log.Printf("  Remote:   %s", displayRemote(cfg.Remote.Type))
		log.Printf("  HTTP:     %s", cfg.HTTP.Addr)

		return a.Serve(context.Background())
	},
}

func displayRemote(t string) string {
	if t == "" {
		return "disabled"
	}
	return t
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}
