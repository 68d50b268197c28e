package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/evlink/internal/config"
	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/ingest"
	"github.com/kalambet/evlink/internal/nccd"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Submit files for extraction as they appear in a directory",
	Long: `Watch a directory tree and submit each new or changed file that matches
the pattern to the running server. The pattern is matched against the path
relative to <dir> and defaults to extract.watch_pattern.

Example:
  evlink watch ./evidence --type evidence --pattern '**/*.pdf'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeStr, _ := cmd.Flags().GetString("type")
		pattern, _ := cmd.Flags().GetString("pattern")
		settle, _ := cmd.Flags().GetDuration("settle")

		docType, err := parseDocumentType(typeStr)
		if err != nil {
			return err
		}
		if pattern == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pattern = cfg.Extract.WatchPattern
		}
		if fi, err := os.Stat(args[0]); err != nil || !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		w, err := ingest.NewWatcher(args[0], pattern, docType, apiSubmitter{client: client}, settle)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		printStep("Watching %s for %s (%s)", args[0], pattern, docType)
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().String("type", "evidence", `document type: "Learning Plan" (or "plan") or "Evidence"`)
	watchCmd.Flags().String("pattern", "", "doublestar pattern relative to the directory")
	watchCmd.Flags().Duration("settle", 500*time.Millisecond, "quiet period before a changed file is submitted")
}

// apiSubmitter posts watched files to the extract endpoint.
type apiSubmitter struct {
	client *apiClient
}

func (s apiSubmitter) Submit(ctx context.Context, req extract.Request) error {
	resp, err := s.client.post(ctx, "/api/extract", toAPIRequest(req))
	if err != nil {
		return err
	}
	var out nccd.Extraction
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}
	printSuccess("%s: %d adjustments, %d evidence items", out.FileNames, len(out.Adjustments), len(out.Evidence))
	return nil
}
