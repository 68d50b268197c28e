// Package pipeline wires the record store and the processing stages into a
// single service used by the HTTP, MCP and CLI surfaces.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/evlink/internal/clock"
	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/linking"
	"github.com/kalambet/evlink/internal/nccd"
	"github.com/kalambet/evlink/internal/storage"
	"github.com/kalambet/evlink/internal/summary"
)

// Options configures the stages. Zero latencies disable the simulated delay.
type Options struct {
	Clock   clock.Clock
	Sleeper clock.Sleeper
	Scorer  linking.Scorer

	ExtractLatency extract.Latency
	LinkLatency    time.Duration
	SummaryLatency time.Duration

	// ExtractConcurrency bounds ExtractAll. Zero means 4.
	ExtractConcurrency int

	StudentID string
}

// Service runs extraction, linking, review and summary against one store.
type Service struct {
	store       *storage.Store
	clock       clock.Clock
	concurrency int
	extractor   *extract.Extractor
	linker      *linking.Linker
	summarizer  *summary.Summarizer
}

// NewService creates a Service over store. A nil scorer uses a time-seeded
// RandomScorer with the default probability.
func NewService(store *storage.Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Scorer == nil {
		opts.Scorer = linking.NewRandomScorer(uint64(time.Now().UnixNano()), linking.DefaultProbability)
	}
	if opts.ExtractConcurrency <= 0 {
		opts.ExtractConcurrency = 4
	}
	return &Service{
		store:       store,
		clock:       opts.Clock,
		concurrency: opts.ExtractConcurrency,
		extractor:   extract.NewExtractor(store, opts.Clock, opts.Sleeper, opts.ExtractLatency),
		linker:      linking.NewLinker(store, opts.Scorer, opts.Clock, opts.Sleeper, opts.LinkLatency),
		summarizer:  summary.NewSummarizer(store, opts.Clock, opts.Sleeper, opts.SummaryLatency, opts.StudentID),
	}
}

// Data returns the current store contents.
func (s *Service) Data(ctx context.Context) (nccd.Snapshot, error) {
	return s.store.Snapshot(ctx)
}

// Extract runs one extraction request.
func (s *Service) Extract(ctx context.Context, req extract.Request) (nccd.Extraction, error) {
	return s.extractor.Extract(ctx, req)
}

// ExtractAll runs several extraction requests with a bounded number in
// flight. Results are returned in request order. Every request is validated
// before any work starts, so one bad request stores nothing.
func (s *Service) ExtractAll(ctx context.Context, reqs []extract.Request) ([]nccd.Extraction, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("at least one request is required: %w", nccd.ErrInvalidInput)
	}
	for i, req := range reqs {
		if err := extract.Validate(req); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	out := make([]nccd.Extraction, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.extractor.Extract(gctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Link scores the supplied adjustments against the supplied evidence.
func (s *Service) Link(ctx context.Context, adjustments []nccd.Adjustment, evidence []nccd.Evidence) ([]nccd.EvidenceLink, error) {
	return s.linker.Link(ctx, adjustments, evidence)
}

// LinkStored scores every stored adjustment against every stored evidence item.
func (s *Service) LinkStored(ctx context.Context) ([]nccd.EvidenceLink, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	return s.linker.Link(ctx, snap.Adjustments, snap.Evidence)
}

// Summary derives the compliance report.
func (s *Service) Summary(ctx context.Context) (nccd.Summary, error) {
	return s.summarizer.Summarize(ctx)
}

// Stats computes the dashboard counters.
func (s *Service) Stats(ctx context.Context) (nccd.Stats, error) {
	return s.summarizer.Stats(ctx)
}

// Reset clears the store.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting store: %w", err)
	}
	slog.Info("store reset")
	return nil
}
