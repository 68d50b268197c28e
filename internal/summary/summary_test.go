package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/evlink/internal/clock"
	"github.com/kalambet/evlink/internal/nccd"
)

type fakeReader struct {
	snap       nccd.Snapshot
	lastUpdate time.Time
	err        error
}

func (f *fakeReader) Snapshot(context.Context) (nccd.Snapshot, error) {
	return f.snap, f.err
}

func (f *fakeReader) LastUpdate() time.Time { return f.lastUpdate }

var fixedNow = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

func link(adj, ev string, confidence int, status nccd.Status) nccd.EvidenceLink {
	return nccd.EvidenceLink{
		LinkID:          "link-" + adj + "-" + ev,
		AdjustmentID:    adj,
		EvidenceID:      ev,
		IsMatch:         true,
		Confidence:      confidence,
		EvidenceQuality: nccd.QualityFor(confidence),
		Status:          status,
	}
}

func TestBuild_HighestLevelAndRoundedMean(t *testing.T) {
	snap := nccd.Snapshot{
		Adjustments: []nccd.Adjustment{
			{AdjustmentID: "a1", NCCDLevelIndicator: nccd.LevelSubstantial},
			{AdjustmentID: "a2", NCCDLevelIndicator: nccd.LevelSupplementary},
		},
		Evidence: []nccd.Evidence{
			{EvidenceID: "e1", Category: "Assessment"},
		},
		Links: []nccd.EvidenceLink{
			link("a1", "e1", 90, nccd.StatusAccepted),
			link("a2", "e1", 80, nccd.StatusAccepted),
		},
	}

	report := Build(snap, "STUDENT-001")
	assert.Equal(t, 85, report.OverallConfidence)
	assert.Equal(t, nccd.LevelSubstantial, report.NCCDCompliance.Level)
	assert.Equal(t, "STUDENT-001", report.StudentID)
	assert.Equal(t, snap.Adjustments, report.Adjustments)
	assert.Equal(t, snap.Links, report.LinkedEvidence)

	// Only one accepted link is Strong.
	assert.Equal(t, []string{missingStrongEvidence}, report.MissingEvidence)
	assert.Equal(t, baselineSteps, report.SuggestedNextSteps)
	assert.Contains(t, report.NCCDCompliance.Justification, "qualifies for Substantial level support")
	assert.Contains(t, report.NCCDCompliance.Justification, "with 85% confidence")
	assert.Len(t, report.NCCDCompliance.Recommendations, 5)
}

func TestBuild_LevelCascade(t *testing.T) {
	tests := []struct {
		name   string
		levels []nccd.Level
		want   nccd.Level
	}{
		{"empty defaults to QDTP", nil, nccd.LevelQDTP},
		{"only QDTP", []nccd.Level{nccd.LevelQDTP}, nccd.LevelQDTP},
		{"supplementary", []nccd.Level{nccd.LevelQDTP, nccd.LevelSupplementary}, nccd.LevelSupplementary},
		{"extensive wins regardless of order", []nccd.Level{nccd.LevelExtensive, nccd.LevelSupplementary, nccd.LevelSubstantial}, nccd.LevelExtensive},
		{"unknown level ignored", []nccd.Level{"Moderate"}, nccd.LevelQDTP},
		{"unknown level does not mask a known one", []nccd.Level{"Moderate", nccd.LevelSubstantial, ""}, nccd.LevelSubstantial},
		{"substantial beats supplementary listed later", []nccd.Level{nccd.LevelSubstantial, nccd.LevelSupplementary, nccd.LevelQDTP}, nccd.LevelSubstantial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var snap nccd.Snapshot
			for _, l := range tt.levels {
				snap.Adjustments = append(snap.Adjustments, nccd.Adjustment{NCCDLevelIndicator: l})
			}
			assert.Equal(t, tt.want, Build(snap, "").NCCDCompliance.Level)
		})
	}
}

func TestBuild_IgnoresUnacceptedLinks(t *testing.T) {
	snap := nccd.Snapshot{
		Adjustments: []nccd.Adjustment{{AdjustmentID: "a1", NCCDLevelIndicator: nccd.LevelSupplementary}},
		Links: []nccd.EvidenceLink{
			link("a1", "e1", 60, nccd.StatusPending),
			link("a1", "e2", 100, nccd.StatusRejected),
			link("a1", "e3", 75, nccd.StatusAccepted),
		},
	}
	assert.Equal(t, 75, Build(snap, "").OverallConfidence)
}

func TestBuild_EmptyStoreIsDegenerateNotError(t *testing.T) {
	report := Build(nccd.Snapshot{}, "STUDENT-001")

	assert.Equal(t, 0, report.OverallConfidence)
	assert.Equal(t, nccd.LevelQDTP, report.NCCDCompliance.Level)
	// 0 < 0 is false, so the adjustment check does not fire.
	assert.Equal(t, []string{missingStrongEvidence, missingAssessment}, report.MissingEvidence)
	assert.Equal(t, urgentStep, report.SuggestedNextSteps[0])
	assert.Len(t, report.SuggestedNextSteps, 5)
}

func TestBuild_MissingEvidenceOrder(t *testing.T) {
	snap := nccd.Snapshot{
		Adjustments: []nccd.Adjustment{{AdjustmentID: "a1"}, {AdjustmentID: "a2"}},
		Evidence:    []nccd.Evidence{{EvidenceID: "e1", Category: "Observation"}},
		Links:       []nccd.EvidenceLink{link("a1", "e1", 90, nccd.StatusAccepted)},
	}
	report := Build(snap, "")
	assert.Equal(t, []string{missingAdjustmentEvidence, missingStrongEvidence, missingAssessment}, report.MissingEvidence)
}

func TestNextSteps_Truncation(t *testing.T) {
	three := []string{"a", "b", "c"}

	tests := []struct {
		name    string
		overall int
		missing []string
		want    []string
	}{
		{
			name:    "baseline only",
			overall: 90,
			missing: nil,
			want:    baselineSteps,
		},
		{
			name:    "appended step fits",
			overall: 90,
			missing: three,
			want:    append(append([]string{}, baselineSteps...), addressMissing),
		},
		{
			name:    "urgent step fills the list",
			overall: 69,
			missing: nil,
			want:    append([]string{urgentStep}, baselineSteps...),
		},
		{
			name:    "appended step dropped after urgent",
			overall: 50,
			missing: three,
			want:    append([]string{urgentStep}, baselineSteps...),
		},
		{
			name:    "threshold is exclusive",
			overall: 70,
			missing: []string{"a", "b"},
			want:    baselineSteps,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextSteps(tt.overall, tt.missing)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), maxNextSteps)
		})
	}
}

func TestBuild_RecommendationsAreCopied(t *testing.T) {
	report := Build(nccd.Snapshot{}, "")
	report.NCCDCompliance.Recommendations[0] = "mutated"
	assert.NotEqual(t, "mutated", complianceRecommendations[0])
}

func TestSummarize_AppliesLatencyAfterRead(t *testing.T) {
	rec := &clock.Recorder{}
	s := NewSummarizer(&fakeReader{}, clock.Fixed(fixedNow), rec, 1500*time.Millisecond, "STUDENT-001")

	report, err := s.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "STUDENT-001", report.StudentID)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, rec.Slept)
}

func TestSummarize_StoreError(t *testing.T) {
	s := NewSummarizer(&fakeReader{err: errors.New("closed")}, nil, nil, 0, "")
	_, err := s.Summarize(context.Background())
	require.Error(t, err)
}

func TestSummarize_Cancelled(t *testing.T) {
	s := NewSummarizer(&fakeReader{}, nil, nil, 0, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Summarize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
