package performance

import (
	"math"
	"sync"

	"github.com/lgs-platform/backend/internal/models"
)

type itemResponse struct {
	ability float64
	correct bool
}

type itemState struct {
	attempts  int
	correct   int
	wrongKeys map[string]int
	responses []itemResponse
}

// itemStats accumulates per-item response data. Discrimination index and
// quality use fixed operational thresholds; they are reviewed values,
// not derived ones.
type itemStats struct {
	mu              sync.Mutex
	items           map[string]*itemState
	reviewThreshold float64
}

const minAttemptsForFlag = 10

func newItemStats(reviewThreshold float64) *itemStats {
	return &itemStats{
		items:           map[string]*itemState{},
		reviewThreshold: reviewThreshold,
	}
}

// record stores one response, with the requester's ability before the
// answer so discrimination splits are not biased by the answer itself.
func (s *itemStats) record(event models.PerformanceRecord, abilityBefore float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.items[event.ItemID]
	if state == nil {
		state = &itemState{wrongKeys: map[string]int{}}
		s.items[event.ItemID] = state
	}

	state.attempts++
	if event.Correct {
		state.correct++
	} else if event.SelectedKey != "" {
		state.wrongKeys[event.SelectedKey]++
	}
	state.responses = append(state.responses, itemResponse{ability: abilityBefore, correct: event.Correct})
}

func (s *itemStats) snapshot(itemID string) (models.ItemPerformance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.items[itemID]
	if !ok {
		return models.ItemPerformance{}, false
	}
	return s.compute(itemID, state), true
}

func (s *itemStats) flagged() []models.ItemPerformance {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ItemPerformance
	for id, state := range s.items {
		if perf := s.compute(id, state); perf.FlaggedForReview {
			out = append(out, perf)
		}
	}
	return out
}

// compute derives the empirical metrics. Caller holds the lock.
func (s *itemStats) compute(itemID string, state *itemState) models.ItemPerformance {
	correctRate := float64(state.correct) / float64(state.attempts)
	discrimination := discriminationIndex(state.responses)

	// Composite quality: discrimination carries the most weight, then how
	// close the observed difficulty sits to a useful middle, then sample
	// volume.
	discriminationScore := clamp01((discrimination + 1) / 2)
	difficultyScore := clamp01(1 - math.Abs(correctRate-0.6)/0.6)
	volumeScore := math.Min(1, float64(state.attempts)/20)
	quality := 0.40*discriminationScore + 0.35*difficultyScore + 0.25*volumeScore

	wrongKeys := make(map[string]int, len(state.wrongKeys))
	for k, v := range state.wrongKeys {
		wrongKeys[k] = v
	}

	return models.ItemPerformance{
		ItemID:               itemID,
		TotalAttempts:        state.attempts,
		CorrectAttempts:      state.correct,
		CorrectRate:          correctRate,
		EmpiricalDifficulty:  1 - correctRate,
		DiscriminationIndex:  discrimination,
		QualityScore:         quality,
		FlaggedForReview:     state.attempts >= minAttemptsForFlag && (quality < s.reviewThreshold || discrimination <= -0.2),
		WrongKeyDistribution: wrongKeys,
	}
}

// discriminationIndex splits responders at the median ability and
// compares correct rates: a good item is answered correctly more often
// by stronger responders. Range [-1, 1].
func discriminationIndex(responses []itemResponse) float64 {
	if len(responses) < 4 {
		return 0
	}

	abilities := make([]float64, len(responses))
	for i, r := range responses {
		abilities[i] = r.ability
	}
	median := medianOf(abilities)

	var upperCorrect, upperTotal, lowerCorrect, lowerTotal float64
	for _, r := range responses {
		if r.ability >= median {
			upperTotal++
			if r.correct {
				upperCorrect++
			}
		} else {
			lowerTotal++
			if r.correct {
				lowerCorrect++
			}
		}
	}
	if upperTotal == 0 || lowerTotal == 0 {
		return 0
	}
	return upperCorrect/upperTotal - lowerCorrect/lowerTotal
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
