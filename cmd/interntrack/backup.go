package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/interntrack/interntrack/internal/app"
	"github.com/interntrack/interntrack/internal/snapshot"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

var (
	dumpOut      string
	restoreIn    string
	restoreMerge bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write a snapshot of the local database to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			doc, err := a.Orchestrator().ExportLocal(ctx)
			if err != nil {
				return err
			}
			body, err := snapshot.Codec{Compress: compress}.Encode(doc)
			if err != nil {
				return err
			}

			out := dumpOut
			if out == "" {
				out = fmt.Sprintf("intern-tracker-backup-%s.json", doc.ExportedAt.Format("2006-01-02"))
			}
			if err := atomic.WriteFile(out, bytes.NewReader(body)); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", out, len(body))
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Import a snapshot file into the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(restoreIn)
		if err != nil {
			return err
		}
		doc, err := snapshot.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", restoreIn, err)
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Orchestrator().RestoreLocal(ctx, doc, restoreMerge)
			if res != nil {
				if perr := printJSON(cmd, res); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpOut, "out", "o", "", "Output file (default intern-tracker-backup-<date>.json)")

	restoreCmd.Flags().StringVarP(&restoreIn, "in", "i", "", "Snapshot file to restore")
	restoreCmd.Flags().BoolVar(&restoreMerge, "merge", true, "Merge into local data instead of replacing it")
	restoreCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(dumpCmd, restoreCmd)
}
