package main

import (
	"context"
	"fmt"

	"github.com/interntrack/interntrack/internal/app"
	"github.com/spf13/cobra"
)

var importMerge bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show remote connection and last backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printJSON(cmd, a.Orchestrator().Status(ctx))
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload a snapshot of the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator().RunExport(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge the remote backup into the local database, then upload",
	Long: `Pull the remote backup (if any) and merge it into the local database,
then upload a fresh snapshot.

A remote row replaces the local row with the same id, or with the same
assignment pair. Rows that exist only locally are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator().RunSync(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show per-table row counts of the remote backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, err := a.Orchestrator().Preview(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the remote backup into the local database",
	Long: `Import the remote backup in one transaction.

With --merge=false every local table is cleared and replaced by the backup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator().Import(ctx, importMerge)
			if res != nil {
				if perr := printJSON(cmd, res); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the stored remote session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Orchestrator().Disconnect(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected")
			return nil
		})
	},
}

func init() {
	importCmd.Flags().BoolVar(&importMerge, "merge", true, "Merge into local data instead of replacing it")

	rootCmd.AddCommand(statusCmd, exportCmd, syncCmd, previewCmd, importCmd, disconnectCmd)
}
