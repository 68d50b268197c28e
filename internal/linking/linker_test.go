package linking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/evlink/internal/clock"
	"github.com/kalambet/evlink/internal/nccd"
)

type fakeLinkStore struct {
	batches [][]nccd.EvidenceLink
	err     error
}

func (f *fakeLinkStore) AppendLinks(_ context.Context, links []nccd.EvidenceLink) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, links)
	return nil
}

func adjustments(n int) []nccd.Adjustment {
	out := make([]nccd.Adjustment, n)
	for i := range out {
		out[i] = nccd.Adjustment{
			AdjustmentID:       fmt.Sprintf("adj-%d", i),
			Category:           "Instruction",
			NCCDLevelIndicator: nccd.LevelSubstantial,
		}
	}
	return out
}

func evidenceItems(n int) []nccd.Evidence {
	out := make([]nccd.Evidence, n)
	for i := range out {
		out[i] = nccd.Evidence{EvidenceID: fmt.Sprintf("ev-%d", i), Category: "Work Sample"}
	}
	return out
}

func fixedScorer(confidence int) Scorer {
	return ScorerFunc(func(adj nccd.Adjustment, ev nccd.Evidence) Match {
		return Match{Linked: true, Confidence: confidence, Connections: []string{"x", "y"}}
	})
}

func TestLink_InsufficientData(t *testing.T) {
	store := &fakeLinkStore{}
	rec := &clock.Recorder{}
	l := NewLinker(store, fixedScorer(90), nil, rec, 2*time.Second)

	for _, tc := range []struct {
		adj []nccd.Adjustment
		ev  []nccd.Evidence
	}{
		{nil, evidenceItems(1)},
		{adjustments(1), nil},
		{nil, nil},
	} {
		_, err := l.Link(context.Background(), tc.adj, tc.ev)
		require.Error(t, err)
		assert.True(t, errors.Is(err, nccd.ErrInsufficientData))
	}
	assert.Empty(t, store.batches)
	assert.Empty(t, rec.Slept)
}

func TestLink_DerivedFieldsFollowConfidence(t *testing.T) {
	tests := []struct {
		confidence  int
		wantQuality nccd.Quality
		wantMissing bool
	}{
		{100, nccd.QualityStrong, false},
		{85, nccd.QualityStrong, false},
		{84, nccd.QualityModerate, false},
		{80, nccd.QualityModerate, false},
		{79, nccd.QualityModerate, true},
		{70, nccd.QualityModerate, true},
		{69, nccd.QualityWeak, true},
		{60, nccd.QualityWeak, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.confidence), func(t *testing.T) {
			l := NewLinker(&fakeLinkStore{}, fixedScorer(tt.confidence), nil, nil, 0)
			links, err := l.Link(context.Background(), adjustments(1), evidenceItems(1))
			require.NoError(t, err)
			require.Len(t, links, 1)

			link := links[0]
			assert.Equal(t, tt.wantQuality, link.EvidenceQuality)
			assert.Equal(t, tt.wantMissing, len(link.MissingElements) > 0)
			assert.Equal(t, nccd.StatusPending, link.Status)
			assert.Equal(t, "Supports Substantial level funding justification", link.NCCDRelevance)
		})
	}
}

func TestLink_ClampsScorerConfidence(t *testing.T) {
	l := NewLinker(&fakeLinkStore{}, fixedScorer(150), nil, nil, 0)
	links, err := l.Link(context.Background(), adjustments(1), evidenceItems(1))
	require.NoError(t, err)
	assert.Equal(t, 100, links[0].Confidence)
}

func TestLink_RandomScorerProperties(t *testing.T) {
	store := &fakeLinkStore{}
	l := NewLinker(store, NewRandomScorer(42, DefaultProbability), nil, nil, 0)

	adjs, evs := adjustments(12), evidenceItems(15)
	links, err := l.Link(context.Background(), adjs, evs)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(links), len(adjs)*len(evs))
	require.Len(t, store.batches, 1)
	assert.Equal(t, links, store.batches[0])

	adjIDs := map[string]bool{}
	for _, a := range adjs {
		adjIDs[a.AdjustmentID] = true
	}
	evIDs := map[string]bool{}
	for _, e := range evs {
		evIDs[e.EvidenceID] = true
	}
	seenLinkIDs := map[string]bool{}
	for _, link := range links {
		assert.True(t, adjIDs[link.AdjustmentID], "unknown adjustment %s", link.AdjustmentID)
		assert.True(t, evIDs[link.EvidenceID], "unknown evidence %s", link.EvidenceID)
		assert.False(t, seenLinkIDs[link.LinkID], "duplicate link id %s", link.LinkID)
		seenLinkIDs[link.LinkID] = true

		assert.GreaterOrEqual(t, link.Confidence, 60)
		assert.LessOrEqual(t, link.Confidence, 100)
		assert.Equal(t, nccd.QualityFor(link.Confidence), link.EvidenceQuality)
		assert.Equal(t, link.Confidence < 80, len(link.MissingElements) > 0)
		assert.GreaterOrEqual(t, len(link.Connections), 2)
		assert.LessOrEqual(t, len(link.Connections), 4)
		assert.Equal(t, "Both relate to instruction adjustments", link.Connections[0])
		assert.Equal(t, "Evidence demonstrates work sample effectiveness", link.Connections[1])
	}

	// 180 pairs at p=0.7: the expected count is 126, allow a wide margin.
	assert.Greater(t, len(links), 90)
	assert.Less(t, len(links), 160)
}

func TestRandomScorer_SeedIsReproducible(t *testing.T) {
	adj := adjustments(1)[0]
	ev := evidenceItems(1)[0]

	a := NewRandomScorer(7, DefaultProbability)
	b := NewRandomScorer(7, DefaultProbability)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Score(adj, ev), b.Score(adj, ev))
	}
}

func TestRandomScorer_ProbabilityFallback(t *testing.T) {
	s := NewRandomScorer(1, 0)
	assert.Equal(t, DefaultProbability, s.probability)
	s = NewRandomScorer(1, 1.5)
	assert.Equal(t, DefaultProbability, s.probability)
}

func TestRandomScorer_AlwaysLinksAtProbabilityOne(t *testing.T) {
	l := NewLinker(&fakeLinkStore{}, NewRandomScorer(3, 1), nil, nil, 0)
	links, err := l.Link(context.Background(), adjustments(4), evidenceItems(5))
	require.NoError(t, err)
	assert.Len(t, links, 20)
}

func TestLink_AppliesLatency(t *testing.T) {
	rec := &clock.Recorder{}
	l := NewLinker(&fakeLinkStore{}, fixedScorer(90), nil, rec, 2*time.Second)
	_, err := l.Link(context.Background(), adjustments(1), evidenceItems(1))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.Slept)
}

func TestLink_StoreErrorReturnsNoLinks(t *testing.T) {
	l := NewLinker(&fakeLinkStore{err: errors.New("boom")}, fixedScorer(90), nil, nil, 0)
	links, err := l.Link(context.Background(), adjustments(2), evidenceItems(2))
	require.Error(t, err)
	assert.Nil(t, links)
}
