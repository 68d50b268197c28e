package summary

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kalambet/evlink/internal/nccd"
)

// Stats reads the store and computes the dashboard counters. It has no
// simulated latency.
func (s *Summarizer) Stats(ctx context.Context) (nccd.Stats, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nccd.Stats{}, fmt.Errorf("reading store: %w", err)
	}
	return ComputeStats(snap, s.store.LastUpdate(), s.clock.Now()), nil
}

// ComputeStats derives counters from a snapshot. A zero lastUpdate reports
// now instead.
func ComputeStats(snap nccd.Snapshot, lastUpdate, now time.Time) nccd.Stats {
	st := nccd.Stats{
		TotalAdjustments: len(snap.Adjustments),
		TotalEvidence:    len(snap.Evidence),
		TotalLinks:       len(snap.Links),
		LastUpdate:       lastUpdate,
	}
	if st.LastUpdate.IsZero() {
		st.LastUpdate = now
	}

	sum := 0
	for _, l := range snap.Links {
		sum += l.Confidence
		switch l.Status {
		case nccd.StatusAccepted:
			st.AcceptedLinks++
		case nccd.StatusRejected:
			st.RejectedLinks++
		default:
			st.PendingReviews++
		}
	}
	if st.TotalLinks > 0 {
		reviewed := st.AcceptedLinks + st.RejectedLinks
		st.CompletionRate = int(math.Round(100 * float64(reviewed) / float64(st.TotalLinks)))
		st.AverageConfidence = int(math.Round(float64(sum) / float64(st.TotalLinks)))
	}
	return st
}
