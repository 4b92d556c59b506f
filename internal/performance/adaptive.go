package performance

import "github.com/lgs-platform/backend/internal/models"

// RecommendedDifficulty maps recent performance in a subject to the tier
// the next generation request should use, and persists the move as the
// requester's new preferred tier. A bang-bang controller with hysteresis:
// the stability window and the asymmetric promote/demote thresholds
// straddle a neutral zone, so borderline performance never oscillates.
func (t *Tracker) RecommendedDifficulty(requester, subject string) models.Difficulty {
	profile := t.profileState(requester)

	profile.mu.Lock()
	defer profile.mu.Unlock()

	s, ok := profile.subjects[subject]
	if !ok {
		return models.DifficultyMedium
	}
	current, recommended := t.recommend(s)
	if recommended != current {
		s.preferred = recommended
	}
	return recommended
}

// ShouldAdjust reports whether the controller would move the tier,
// without applying the move.
func (t *Tracker) ShouldAdjust(requester, subject string) (bool, models.Difficulty, models.Difficulty) {
	profile := t.profileState(requester)

	profile.mu.Lock()
	defer profile.mu.Unlock()

	s, ok := profile.subjects[subject]
	if !ok {
		return false, models.DifficultyMedium, models.DifficultyMedium
	}
	current, recommended := t.recommend(s)
	return recommended != current, current, recommended
}

// recommend requires a full stability window of events before departing
// from the current tier. Caller holds the profile lock.
func (t *Tracker) recommend(s *subjectState) (current, recommended models.Difficulty) {
	current = s.preferred
	if len(s.outcomes) < t.cfg.StabilityWindow {
		return current, current
	}

	recent := mean(s.outcomes[len(s.outcomes)-t.cfg.StabilityWindow:])
	switch {
	case recent >= t.cfg.PromoteThreshold:
		return current, current.Promote()
	case recent <= t.cfg.DemoteThreshold:
		return current, current.Demote()
	default:
		return current, current
	}
}
