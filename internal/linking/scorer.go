package linking

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/kalambet/evlink/internal/nccd"
)

// Match is a scorer's verdict on one (adjustment, evidence) pair.
type Match struct {
	Linked      bool
	Confidence  int
	Connections []string
}

// Scorer decides whether a pair should be linked and how confidently. It is
// the single replaceable step of the linking stage; banding, advisories and
// storage are handled by the Linker regardless of implementation.
type Scorer interface {
	Score(adj nccd.Adjustment, ev nccd.Evidence) Match
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(adj nccd.Adjustment, ev nccd.Evidence) Match

func (f ScorerFunc) Score(adj nccd.Adjustment, ev nccd.Evidence) Match { return f(adj, ev) }

// DefaultProbability is the chance that RandomScorer links a pair.
const DefaultProbability = 0.7

// RandomScorer is the placeholder heuristic: each pair is linked with a fixed
// probability, confidence is uniform in [60,100], and 2 to 4 templated
// connection phrases are kept. Safe for concurrent use.
type RandomScorer struct {
	mu          sync.Mutex
	rng         *rand.Rand
	probability float64
}

// NewRandomScorer returns a RandomScorer whose draws are fully determined by
// seed. Probabilities outside (0,1] fall back to DefaultProbability.
func NewRandomScorer(seed uint64, probability float64) *RandomScorer {
	if probability <= 0 || probability > 1 {
		probability = DefaultProbability
	}
	return &RandomScorer{
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		probability: probability,
	}
}

func (s *RandomScorer) Score(adj nccd.Adjustment, ev nccd.Evidence) Match {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() >= s.probability {
		return Match{}
	}
	confidence := s.rng.IntN(41) + 60
	keep := s.rng.IntN(3) + 2
	return Match{
		Linked:      true,
		Confidence:  confidence,
		Connections: connectionPhrases(adj, ev)[:keep],
	}
}

func connectionPhrases(adj nccd.Adjustment, ev nccd.Evidence) []string {
	return []string{
		fmt.Sprintf("Both relate to %s adjustments", strings.ToLower(adj.Category)),
		fmt.Sprintf("Evidence demonstrates %s effectiveness", strings.ToLower(ev.Category)),
		"Consistent NCCD level indicators",
		"Similar implementation approaches",
	}
}
