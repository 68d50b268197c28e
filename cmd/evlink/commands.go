package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/evlink/internal/api"
	"github.com/kalambet/evlink/internal/config"
	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/ingest"
	"github.com/kalambet/evlink/internal/nccd"
)

// parseDocumentType accepts the canonical names plus the short forms "plan"
// and "evidence".
func parseDocumentType(s string) (nccd.DocumentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plan", "learning plan", "learning-plan":
		return nccd.DocLearningPlan, nil
	case "evidence":
		return nccd.DocEvidence, nil
	default:
		return "", fmt.Errorf("unknown document type %q (want \"Learning Plan\" or \"Evidence\")", s)
	}
}

func toAPIRequest(req extract.Request) api.ExtractRequest {
	return api.ExtractRequest{
		Text:         req.Text,
		DocumentType: string(req.DocumentType),
		Files:        req.Files,
	}
}

// --- extract ---

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract adjustments or evidence from text or local files",
	Long: `Extract adjustments (from a learning plan) or evidence items.

PDF files are parsed for text; .txt, .md, .csv and .json files are read as
text; other files are sent as manifest entries only.

Examples:
  evlink extract --type plan --text "Provide a reader for assessments"
  evlink extract --type evidence --file obs-week1.pdf --file sample.jpg
  evlink extract --type evidence --glob 'evidence/**/*.pdf'
  evlink extract --type evidence --glob 'evidence/*.pdf' --batch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		typeStr, _ := cmd.Flags().GetString("type")
		text, _ := cmd.Flags().GetString("text")
		files, _ := cmd.Flags().GetStringSlice("file")
		globs, _ := cmd.Flags().GetStringSlice("glob")
		format, _ := cmd.Flags().GetString("format")
		batch, _ := cmd.Flags().GetBool("batch")

		docType, err := parseDocumentType(typeStr)
		if err != nil {
			return err
		}
		if batch {
			return runBatchExtract(cmd, docType, files, globs, format)
		}

		req, err := buildExtractRequest(docType, text, files, globs)
		if err != nil {
			return err
		}
		if len(req.Files) > 0 {
			printStep("Submitting %d files", len(req.Files))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/extract", toAPIRequest(req))
		if err != nil {
			return err
		}
		var out nccd.Extraction
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printSuccess("Extracted %d adjustments, %d evidence items", len(out.Adjustments), len(out.Evidence))
		return writeFormatted(cmd.OutOrStdout(), format, out)
	},
}

// buildExtractRequest reads every named and globbed file and combines them
// with the inline text.
func buildExtractRequest(docType nccd.DocumentType, text string, files, globs []string) (extract.Request, error) {
	paths := append([]string(nil), files...)
	if len(globs) > 0 {
		matched, err := ingest.ExpandGlobs(globs)
		if err != nil {
			return extract.Request{}, err
		}
		if len(matched) == 0 {
			return extract.Request{}, fmt.Errorf("no files match %s", strings.Join(globs, ", "))
		}
		paths = append(paths, matched...)
	}

	docs := make([]ingest.Document, 0, len(paths))
	for _, p := range paths {
		doc, err := ingest.ReadDocument(p)
		if err != nil {
			return extract.Request{}, err
		}
		docs = append(docs, doc)
	}

	req := ingest.BuildRequest(docType, docs)
	if text = strings.TrimSpace(text); text != "" {
		if req.Text != "" {
			req.Text = text + "\n\n" + req.Text
		} else {
			req.Text = text
		}
	}
	if err := extract.Validate(req); err != nil {
		return extract.Request{}, err
	}
	return req, nil
}

// runBatchExtract submits every file as its own document in one batch call.
func runBatchExtract(cmd *cobra.Command, docType nccd.DocumentType, files, globs []string, format string) error {
	paths := append([]string(nil), files...)
	if len(globs) > 0 {
		matched, err := ingest.ExpandGlobs(globs)
		if err != nil {
			return err
		}
		paths = append(paths, matched...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("--batch needs at least one --file or matching --glob")
	}

	batch := api.BatchExtractRequest{Requests: make([]api.ExtractRequest, 0, len(paths))}
	for _, p := range paths {
		doc, err := ingest.ReadDocument(p)
		if err != nil {
			return err
		}
		batch.Requests = append(batch.Requests, toAPIRequest(ingest.BuildRequest(docType, []ingest.Document{doc})))
	}
	printStep("Submitting %d documents", len(batch.Requests))

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(cmd.Context(), "/api/extract/batch", batch)
	if err != nil {
		return err
	}
	var out api.BatchExtractResponse
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}

	printSuccess("%s", out.Message)
	return writeFormatted(cmd.OutOrStdout(), format, out.Extractions)
}

func init() {
	extractCmd.Flags().String("type", "", `document type: "Learning Plan" (or "plan") or "Evidence"`)
	extractCmd.Flags().String("text", "", "document text")
	extractCmd.Flags().StringSlice("file", nil, "local file to submit (repeatable)")
	extractCmd.Flags().StringSlice("glob", nil, "doublestar pattern of files to submit (repeatable)")
	extractCmd.Flags().String("format", "json", "output format: json or yaml")
	extractCmd.Flags().Bool("batch", false, "submit each file as a separate document")
	extractCmd.MarkFlagRequired("type")
}

// --- link ---

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Propose links between every stored adjustment and evidence item",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		snap, err := fetchData(cmd.Context(), client)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/link", api.LinkRequest{
			Adjustments: snap.Adjustments,
			Evidence:    snap.Evidence,
		})
		if err != nil {
			return err
		}
		var out api.LinkResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printSuccess("%s", out.Message)
		w := cmd.OutOrStdout()
		for _, l := range out.Links {
			fmt.Fprintf(w, "  %s  %s <-> %s  %3d%%  %s\n",
				colorize(colorCyan, l.LinkID), l.AdjustmentID, l.EvidenceID, l.Confidence, qualityLabel(l.EvidenceQuality))
		}
		return nil
	},
}

var linkShowCmd = &cobra.Command{
	Use:   "show <adjustment-id> <evidence-id>",
	Short: "Show the stored link for a pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/links/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]))
		if err != nil {
			return err
		}
		var link nccd.EvidenceLink
		if err := decodeJSON(resp, &link); err != nil {
			return err
		}
		return writeFormatted(cmd.OutOrStdout(), format, link)
	},
}

func init() {
	linkShowCmd.Flags().String("format", "json", "output format: json or yaml")
	linkCmd.AddCommand(linkShowCmd)
}

func qualityLabel(q nccd.Quality) string {
	switch q {
	case nccd.QualityStrong:
		return colorize(colorGreen, string(q))
	case nccd.QualityModerate:
		return colorize(colorYellow, string(q))
	default:
		return colorize(colorRed, string(q))
	}
}

func fetchData(ctx context.Context, client *apiClient) (nccd.Snapshot, error) {
	resp, err := client.get(ctx, "/api/data")
	if err != nil {
		return nccd.Snapshot{}, err
	}
	var snap nccd.Snapshot
	if err := decodeJSON(resp, &snap); err != nil {
		return nccd.Snapshot{}, err
	}
	return snap, nil
}

// --- review ---

var reviewCmd = &cobra.Command{
	Use:   "review <adjustment-id> <evidence-id> <accepted|rejected>",
	Short: "Accept or reject a proposed link",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/review", api.ReviewRequest{
			AdjustmentID: args[0],
			EvidenceID:   args[1],
			Status:       args[2],
			Notes:        notes,
		})
		if err != nil {
			return err
		}
		var out api.ReviewResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if !out.Updated {
			printWarning("No link found for %s / %s", args[0], args[1])
			return nil
		}
		printSuccess("%s", out.Message)
		return nil
	},
}

func init() {
	reviewCmd.Flags().String("notes", "", "reviewer notes stored with the decision")
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Generate the compliance report",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/summary", nil)
		if err != nil {
			return err
		}
		var report nccd.Summary
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}
		return writeFormatted(cmd.OutOrStdout(), format, report)
	},
}

func init() {
	summaryCmd.Flags().String("format", "json", "output format: json or yaml")
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Print every stored adjustment, evidence item and link",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		snap, err := fetchData(cmd.Context(), client)
		if err != nil {
			return err
		}
		return writeFormatted(cmd.OutOrStdout(), format, snap)
	},
}

func init() {
	dataCmd.Flags().String("format", "json", "output format: json or yaml")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts and review progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/stats")
		if err != nil {
			return err
		}
		var st nccd.Stats
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		printStatus(w, "Adjustments", "%d", st.TotalAdjustments)
		printStatus(w, "Evidence", "%d", st.TotalEvidence)
		printStatus(w, "Links", "%d (%d pending, %d accepted, %d rejected)",
			st.TotalLinks, st.PendingReviews, st.AcceptedLinks, st.RejectedLinks)
		printStatus(w, "Reviewed", "%d%%", st.CompletionRate)
		printStatus(w, "Avg confidence", "%d%%", st.AverageConfidence)
		printStatus(w, "Last update", "%s", st.LastUpdate.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("this deletes every adjustment, evidence item and link; pass --confirm to proceed")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/reset", nil)
		if err != nil {
			return err
		}
		var out struct {
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("%s", out.Message)
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("confirm", false, "confirm deletion")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(w, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
