package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/evlink/internal/api"
	"github.com/kalambet/evlink/internal/clock"
	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/linking"
	"github.com/kalambet/evlink/internal/nccd"
	"github.com/kalambet/evlink/internal/pipeline"
	"github.com/kalambet/evlink/internal/storage"
)

var ctx = context.Background()

// newTestServer runs the real API handler over an in-memory store with no
// latency and a scorer that links every pair.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.Open()
	if err != nil {
		t.Fatalf("storage.Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := pipeline.NewService(store, pipeline.Options{
		Clock:     clock.Fixed(time.Date(2025, 8, 4, 10, 0, 0, 0, time.UTC)),
		Sleeper:   clock.NoDelay{},
		Scorer:    linking.NewRandomScorer(1, 1),
		StudentID: "STUDENT-001",
	})
	srv := httptest.NewServer(api.NewHandler(svc))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(srv *httptest.Server) *apiClient {
	return &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
}

// run executes the root command against srv and returns stdout.
func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--no-color", "--server", srv.URL}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

// resetFlags restores every flag to its default, since cobra keeps parsed
// values between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestDecodeJSON_ErrorBody(t *testing.T) {
	srv := newTestServer(t)
	client := testClient(srv)

	resp, err := client.post(ctx, "/api/review", map[string]string{"adjustmentId": "adj-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out api.ReviewResponse
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "server returned 400") {
		t.Errorf("error = %q, want status code", err.Error())
	}
}

func TestDecodeJSON_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := testClient(srv).get(ctx, "/api/data")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), "gateway down") {
		t.Errorf("error = %v, want body text", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	client := &apiClient{baseURL: "http://127.0.0.1:1", httpClient: http.DefaultClient}
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
	if !strings.Contains(err.Error(), "server not reachable") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestParseDocumentType(t *testing.T) {
	tests := []struct {
		in   string
		want nccd.DocumentType
	}{
		{"plan", nccd.DocLearningPlan},
		{"Learning Plan", nccd.DocLearningPlan},
		{"learning-plan", nccd.DocLearningPlan},
		{"Evidence", nccd.DocEvidence},
		{" evidence ", nccd.DocEvidence},
	}
	for _, tt := range tests {
		got, err := parseDocumentType(tt.in)
		if err != nil {
			t.Fatalf("parseDocumentType(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseDocumentType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := parseDocumentType("report card"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestBuildExtractRequest_FilesAndText(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("Observed using the visual timetable."), 0o644); err != nil {
		t.Fatal(err)
	}
	photo := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(photo, []byte{0xff, 0xd8, 0xff}, 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := buildExtractRequest(nccd.DocEvidence, "Week 3 summary", []string{notes}, []string{filepath.Join(dir, "*.jpg")})
	if err != nil {
		t.Fatalf("buildExtractRequest() error: %v", err)
	}
	if len(req.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(req.Files))
	}
	if req.Files[0].Name != "notes.txt" || req.Files[1].Name != "photo.jpg" {
		t.Errorf("file names = %q, %q", req.Files[0].Name, req.Files[1].Name)
	}
	if !strings.HasPrefix(req.Text, "Week 3 summary\n\n") {
		t.Errorf("text = %q, want inline text first", req.Text)
	}
	if !strings.Contains(req.Text, "visual timetable") {
		t.Errorf("text = %q, want file contents", req.Text)
	}
}

func TestBuildExtractRequest_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := buildExtractRequest(nccd.DocEvidence, "", nil, []string{filepath.Join(dir, "*.pdf")}); err == nil {
		t.Error("expected error for glob with no matches")
	}
	if _, err := buildExtractRequest(nccd.DocEvidence, "", []string{filepath.Join(dir, "missing.txt")}, nil); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := buildExtractRequest(nccd.DocEvidence, "  ", nil, nil); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestCommands_FullFlow(t *testing.T) {
	srv := newTestServer(t)

	out, err := run(t, srv, "extract", "--type", "plan", "--text", "Extra time in assessments", "--format", "json")
	if err != nil {
		t.Fatalf("extract plan: %v", err)
	}
	var ext nccd.Extraction
	if err := json.Unmarshal([]byte(out), &ext); err != nil {
		t.Fatalf("extract output %q: %v", out, err)
	}
	if len(ext.Adjustments) != 1 {
		t.Fatalf("adjustments = %d, want 1", len(ext.Adjustments))
	}

	if _, err := run(t, srv, "extract", "--type", "evidence", "--text", "Completed the task with a reader", "--format", "json"); err != nil {
		t.Fatalf("extract evidence: %v", err)
	}

	out, err = run(t, srv, "link")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if !strings.Contains(out, ext.Adjustments[0].AdjustmentID) {
		t.Errorf("link output %q does not mention the adjustment", out)
	}

	snap := fetchSnapshot(t, srv)
	if len(snap.Links) != 1 {
		t.Fatalf("links = %d, want 1", len(snap.Links))
	}
	l := snap.Links[0]

	if _, err := run(t, srv, "review", l.AdjustmentID, l.EvidenceID, "accepted", "--notes", "checked"); err != nil {
		t.Fatalf("review: %v", err)
	}

	out, err = run(t, srv, "link", "show", l.AdjustmentID, l.EvidenceID)
	if err != nil {
		t.Fatalf("link show: %v", err)
	}
	var shown nccd.EvidenceLink
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("link show output %q: %v", out, err)
	}
	if shown.LinkID != l.LinkID || shown.Notes != "checked" {
		t.Errorf("link show = %+v", shown)
	}

	if _, err := run(t, srv, "link", "show", "adj-missing", "ev-missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("link show missing: error = %v, want 404", err)
	}
	snap = fetchSnapshot(t, srv)
	if snap.Links[0].Status != nccd.StatusAccepted || snap.Links[0].Notes != "checked" {
		t.Errorf("link after review = %+v", snap.Links[0])
	}

	out, err = run(t, srv, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Reviewed: 100%") {
		t.Errorf("stats output %q missing completion", out)
	}

	out, err = run(t, srv, "summary", "--format", "yaml")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.HasPrefix(out, "studentId: STUDENT-001\n") {
		t.Errorf("summary yaml should start with studentId, got %q", out)
	}

	if _, err := run(t, srv, "reset", "--confirm"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	snap = fetchSnapshot(t, srv)
	if len(snap.Adjustments)+len(snap.Evidence)+len(snap.Links) != 0 {
		t.Errorf("store not empty after reset: %+v", snap)
	}
}

func TestExtract_Batch(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("observation "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := run(t, srv, "extract", "--type", "evidence", "--batch", "--format", "json",
		"--glob", filepath.Join(dir, "*.{txt,md}"))
	if err != nil {
		t.Fatalf("extract --batch: %v", err)
	}
	var exts []nccd.Extraction
	if err := json.Unmarshal([]byte(out), &exts); err != nil {
		t.Fatalf("batch output %q: %v", out, err)
	}
	if len(exts) != 3 {
		t.Fatalf("extractions = %d, want 3", len(exts))
	}
	if got := fetchSnapshot(t, srv); len(got.Evidence) != 3 {
		t.Errorf("evidence = %d, want 3", len(got.Evidence))
	}
}

func TestReset_RequiresConfirm(t *testing.T) {
	srv := newTestServer(t)
	client := testClient(srv)
	resp, err := client.post(ctx, "/api/extract", api.ExtractRequest{Text: "plan", DocumentType: "Learning Plan"})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	_, err = run(t, srv, "reset")
	if err == nil || !strings.Contains(err.Error(), "--confirm") {
		t.Fatalf("error = %v, want confirmation prompt", err)
	}
	if snap := fetchSnapshot(t, srv); len(snap.Adjustments) != 1 {
		t.Errorf("adjustments = %d, reset should not have run", len(snap.Adjustments))
	}
}

func TestLink_EmptyStoreReportsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	_, err := run(t, srv, "link")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("error = %v, want 400 from server", err)
	}
}

func TestReview_InvalidStatus(t *testing.T) {
	srv := newTestServer(t)
	_, err := run(t, srv, "review", "adj-1", "ev-1", "approved")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("error = %v, want 400 from server", err)
	}
}

func TestExtract_UnknownType(t *testing.T) {
	srv := newTestServer(t)
	_, err := run(t, srv, "extract", "--type", "report", "--text", "x")
	if err == nil || !strings.Contains(err.Error(), "unknown document type") {
		t.Fatalf("error = %v", err)
	}
}

func TestAPISubmitter(t *testing.T) {
	srv := newTestServer(t)
	sub := apiSubmitter{client: testClient(srv)}

	err := sub.Submit(ctx, extract.Request{
		DocumentType: nccd.DocEvidence,
		Files:        []nccd.FileInfo{{Name: "obs.pdf", Type: "application/pdf", Size: 10}},
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if snap := fetchSnapshot(t, srv); len(snap.Evidence) != 1 {
		t.Errorf("evidence = %d, want 1", len(snap.Evidence))
	}

	if err := sub.Submit(ctx, extract.Request{DocumentType: "Report"}); err == nil {
		t.Error("expected error for invalid request")
	}
}

func TestWriteFormatted_YAMLKeepsAPIKeys(t *testing.T) {
	var buf bytes.Buffer
	st := nccd.Stats{TotalAdjustments: 2, CompletionRate: 50}
	if err := writeFormatted(&buf, "yaml", st); err != nil {
		t.Fatalf("writeFormatted() error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "totalAdjustments: 2" {
		t.Errorf("first line = %q, want totalAdjustments", lines[0])
	}
	if strings.Contains(buf.String(), "{") {
		t.Errorf("yaml output should be block style: %q", buf.String())
	}
}

func TestWriteFormatted_UnknownFormat(t *testing.T) {
	if err := writeFormatted(&bytes.Buffer{}, "xml", struct{}{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestColorize_NoColor(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorRed, "x"); got != "x" {
		t.Errorf("colorize with noColor = %q", got)
	}
	noColor = false
	if got := colorize(colorRed, "x"); got != colorRed+"x"+colorReset {
		t.Errorf("colorize = %q", got)
	}
}

func fetchSnapshot(t *testing.T, srv *httptest.Server) nccd.Snapshot {
	t.Helper()
	snap, err := fetchData(ctx, testClient(srv))
	if err != nil {
		t.Fatalf("fetchData() error: %v", err)
	}
	return snap
}
