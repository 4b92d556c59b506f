// Package performance ingests answer events and derives per-requester
// rolling profiles plus per-item empirical quality metrics. The event
// log is the source of truth; everything here can be rebuilt from it.
package performance

import (
	"sync"
	"time"

	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/models"
)

type subjectState struct {
	outcomes  []float64
	ability   float64
	trend     models.Trend
	preferred models.Difficulty
}

type profileState struct {
	mu       sync.Mutex
	subjects map[string]*subjectState
	total    int
	updated  time.Time
}

// Tracker holds all derived performance state. The outer lock guards
// only the maps; per-requester updates serialize on the profile lock so
// independent requesters never contend.
type Tracker struct {
	mu       sync.RWMutex
	profiles map[string]*profileState

	seenMu sync.Mutex
	seen   map[string]struct{}

	items *itemStats

	cfg config.AdaptiveConfig
}

func NewTracker(cfg config.AdaptiveConfig, reviewThreshold float64) *Tracker {
	return &Tracker{
		profiles: map[string]*profileState{},
		seen:     map[string]struct{}{},
		items:    newItemStats(reviewThreshold),
		cfg:      cfg,
	}
}

// Record applies one answer event. Replays of an event id are dropped,
// so ingestion is idempotent under at-least-once delivery; events
// without an id are accepted as-is. Returns whether the event was
// applied.
func (t *Tracker) Record(event models.PerformanceRecord) bool {
	if event.EventID != "" {
		t.seenMu.Lock()
		if _, dup := t.seen[event.EventID]; dup {
			t.seenMu.Unlock()
			return false
		}
		t.seen[event.EventID] = struct{}{}
		t.seenMu.Unlock()
	}

	profile := t.profileState(event.RequesterID)

	profile.mu.Lock()
	subject := profile.subjects[event.Subject]
	if subject == nil {
		subject = &subjectState{
			trend:     models.TrendNew,
			preferred: models.DifficultyMedium,
		}
		profile.subjects[event.Subject] = subject
	}

	abilityBefore := subject.ability

	outcome := 0.0
	if event.Correct {
		outcome = 1.0
	}
	subject.outcomes = append(subject.outcomes, outcome)
	if len(subject.outcomes) > t.cfg.WindowSize {
		subject.outcomes = subject.outcomes[len(subject.outcomes)-t.cfg.WindowSize:]
	}

	subject.ability = t.decayedAbility(subject.outcomes)
	subject.trend = t.classifyTrend(subject.outcomes)

	profile.total++
	profile.updated = event.Timestamp
	profile.mu.Unlock()

	if event.ItemID != "" {
		t.items.record(event, abilityBefore)
	}
	return true
}

func (t *Tracker) profileState(requester string) *profileState {
	t.mu.RLock()
	p, ok := t.profiles[requester]
	t.mu.RUnlock()
	if ok {
		return p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok = t.profiles[requester]; ok {
		return p
	}
	p = &profileState{subjects: map[string]*subjectState{}}
	t.profiles[requester] = p
	return p
}

// decayedAbility weights the window exponentially, most recent highest.
func (t *Tracker) decayedAbility(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	weightSum, total := 0.0, 0.0
	weight := 1.0
	for i := len(outcomes) - 1; i >= 0; i-- {
		total += outcomes[i] * weight
		weightSum += weight
		weight *= t.cfg.DecayFactor
	}
	return total / weightSum
}

// classifyTrend compares the window halves with a band around zero so
// borderline noise reads as stable instead of flapping.
func (t *Tracker) classifyTrend(outcomes []float64) models.Trend {
	if len(outcomes) < 4 {
		return models.TrendNew
	}
	half := len(outcomes) / 2
	older := mean(outcomes[:half])
	recent := mean(outcomes[len(outcomes)-half:])

	switch {
	case recent > older+t.cfg.TrendBand:
		return models.TrendImproving
	case recent < older-t.cfg.TrendBand:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// ProfileFor returns a snapshot for a requester. A requester with no
// history gets an empty profile, not an error.
func (t *Tracker) ProfileFor(requester string) models.StudentProfile {
	out := models.StudentProfile{
		RequesterID: requester,
		Subjects:    map[string]models.SubjectProfile{},
	}

	t.mu.RLock()
	profile, ok := t.profiles[requester]
	t.mu.RUnlock()
	if !ok {
		return out
	}

	profile.mu.Lock()
	defer profile.mu.Unlock()
	for name, s := range profile.subjects {
		out.Subjects[name] = models.SubjectProfile{
			RecentOutcomes:      append([]float64(nil), s.outcomes...),
			EstimatedAbility:    s.ability,
			Trend:               s.trend,
			PreferredDifficulty: s.preferred,
		}
	}
	out.TotalAnswered = profile.total
	out.LastUpdated = profile.updated
	return out
}

// ItemStats returns empirical metrics for one served item.
func (t *Tracker) ItemStats(itemID string) (models.ItemPerformance, bool) {
	return t.items.snapshot(itemID)
}

// FlaggedItems lists items whose empirical quality fell below the
// review threshold or whose discrimination inverted (weaker responders
// outscoring stronger ones).
func (t *Tracker) FlaggedItems() []models.ItemPerformance {
	return t.items.flagged()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
