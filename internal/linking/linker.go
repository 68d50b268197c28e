// Package linking proposes evidence links between adjustments and evidence
// items.
package linking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/evlink/internal/clock"
	"github.com/kalambet/evlink/internal/nccd"
)

// Links below this confidence carry advisory missing elements.
const advisoryThreshold = 80

var missingElements = []string{
	"Additional quantitative data needed",
	"Longer observation period required",
}

// LinkAppender is the subset of the record store the linker writes to.
type LinkAppender interface {
	AppendLinks(ctx context.Context, links []nccd.EvidenceLink) error
}

// Linker scores the full cross product of adjustments and evidence and
// stores the pairs the scorer accepts.
type Linker struct {
	store   LinkAppender
	scorer  Scorer
	clock   clock.Clock
	sleeper clock.Sleeper
	latency time.Duration
	logger  *slog.Logger
}

// NewLinker creates a Linker. A nil sleeper disables latency; a nil clock
// uses wall time.
func NewLinker(store LinkAppender, scorer Scorer, c clock.Clock, sleeper clock.Sleeper, latency time.Duration) *Linker {
	if c == nil {
		c = clock.Real()
	}
	if sleeper == nil {
		sleeper = clock.NoDelay{}
	}
	return &Linker{
		store:   store,
		scorer:  scorer,
		clock:   c,
		sleeper: sleeper,
		latency: latency,
		logger:  slog.Default(),
	}
}

// Link evaluates every (adjustment, evidence) pair, appends the materialized
// links to the store in one batch and returns them. Both inputs must be
// non-empty.
func (l *Linker) Link(ctx context.Context, adjustments []nccd.Adjustment, evidence []nccd.Evidence) ([]nccd.EvidenceLink, error) {
	if len(adjustments) == 0 || len(evidence) == 0 {
		return nil, fmt.Errorf("adjustments and evidence are required: %w", nccd.ErrInsufficientData)
	}

	if err := l.sleeper.Sleep(ctx, l.latency); err != nil {
		return nil, fmt.Errorf("linking interrupted: %w", err)
	}

	now := l.clock.Now()
	links := []nccd.EvidenceLink{}
	for _, adj := range adjustments {
		for _, ev := range evidence {
			m := l.scorer.Score(adj, ev)
			if !m.Linked {
				continue
			}
			links = append(links, newLink(adj, ev, m, now))
		}
	}

	if err := l.store.AppendLinks(ctx, links); err != nil {
		return nil, fmt.Errorf("storing links: %w", err)
	}

	l.logger.Debug("links generated",
		"adjustments", len(adjustments),
		"evidence", len(evidence),
		"links", len(links),
	)
	return links, nil
}

func newLink(adj nccd.Adjustment, ev nccd.Evidence, m Match, now time.Time) nccd.EvidenceLink {
	confidence := nccd.ClampConfidence(m.Confidence)
	missing := []string{}
	if confidence < advisoryThreshold {
		missing = append(missing, missingElements...)
	}
	connections := m.Connections
	if connections == nil {
		connections = []string{}
	}
	return nccd.EvidenceLink{
		LinkID:          "link-" + uuid.New().String(),
		AdjustmentID:    adj.AdjustmentID,
		EvidenceID:      ev.EvidenceID,
		IsMatch:         true,
		Confidence:      confidence,
		Connections:     connections,
		EvidenceQuality: nccd.QualityFor(confidence),
		MissingElements: missing,
		NCCDRelevance:   fmt.Sprintf("Supports %s level funding justification", adj.NCCDLevelIndicator),
		Status:          nccd.StatusPending,
		CreatedAt:       now,
	}
}
