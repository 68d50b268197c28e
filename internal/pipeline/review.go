package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/evlink/internal/nccd"
	"github.com/kalambet/evlink/internal/storage"
)

// ReviewRequest is a reviewer decision for one (adjustment, evidence) pair.
type ReviewRequest struct {
	AdjustmentID string
	EvidenceID   string
	Status       string
	Notes        string
}

// ReviewResult reports the outcome of a review. Updated is false when no
// link matched the pair; that is not an error.
type ReviewResult struct {
	Status  nccd.Status
	Updated bool
}

// Review validates the decision and applies it to the first matching link.
func (s *Service) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	if strings.TrimSpace(req.AdjustmentID) == "" || strings.TrimSpace(req.EvidenceID) == "" || req.Status == "" {
		return ReviewResult{}, fmt.Errorf("adjustmentId, evidenceId and status are required: %w", nccd.ErrInvalidInput)
	}
	status, ok := nccd.ParseReviewStatus(req.Status)
	if !ok {
		return ReviewResult{}, fmt.Errorf("invalid status %q, want accepted or rejected: %w", req.Status, nccd.ErrInvalidInput)
	}

	updated, err := s.store.UpdateLinkStatus(ctx, req.AdjustmentID, req.EvidenceID, storage.LinkReview{
		Status:     status,
		Notes:      req.Notes,
		ReviewedAt: s.clock.Now(),
	})
	if err != nil {
		return ReviewResult{}, fmt.Errorf("applying review: %w", err)
	}
	if !updated {
		slog.Warn("review matched no link",
			"adjustment_id", req.AdjustmentID,
			"evidence_id", req.EvidenceID,
		)
	}
	return ReviewResult{Status: status, Updated: updated}, nil
}

// GetLink returns the first link for the pair, or an error wrapping
// storage.ErrNotFound.
func (s *Service) GetLink(ctx context.Context, adjustmentID, evidenceID string) (nccd.EvidenceLink, error) {
	link, err := s.store.GetLink(ctx, adjustmentID, evidenceID)
	if err != nil {
		return nccd.EvidenceLink{}, fmt.Errorf("link %s/%s: %w", adjustmentID, evidenceID, err)
	}
	return link, nil
}
