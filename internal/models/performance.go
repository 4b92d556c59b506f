package models

import "time"

// Trend classifies a requester's short-term direction in one subject.
type Trend string

const (
	TrendNew       Trend = "new"
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// PerformanceRecord is one answer event. The event log is append-only and
// is the source of truth; everything derived from it can be rebuilt.
// EventID deduplicates at-least-once delivery from the CRUD layer.
type PerformanceRecord struct {
	EventID     string    `json:"event_id"`
	RequesterID string    `json:"requester_id"`
	Subject     string    `json:"subject"`
	Topic       string    `json:"topic,omitempty"`
	Objective   string    `json:"objective,omitempty"`
	ItemID      string    `json:"item_id,omitempty"`
	SelectedKey string    `json:"selected_key,omitempty"`
	Correct     bool      `json:"correct"`
	Timestamp   time.Time `json:"timestamp"`
}

// SubjectProfile is the derived per-subject view inside a StudentProfile.
type SubjectProfile struct {
	RecentOutcomes      []float64  `json:"recent_outcomes"`
	EstimatedAbility    float64    `json:"estimated_ability"`
	Trend               Trend      `json:"trend"`
	PreferredDifficulty Difficulty `json:"preferred_difficulty"`
}

// StudentProfile is derived state, recomputed incrementally per record.
type StudentProfile struct {
	RequesterID   string                    `json:"requester_id"`
	Subjects      map[string]SubjectProfile `json:"subjects"`
	TotalAnswered int                       `json:"total_answered"`
	LastUpdated   time.Time                 `json:"last_updated"`
}

// ItemPerformance holds empirical quality metrics for one served item.
type ItemPerformance struct {
	ItemID               string         `json:"item_id"`
	TotalAttempts        int            `json:"total_attempts"`
	CorrectAttempts      int            `json:"correct_attempts"`
	CorrectRate          float64        `json:"correct_rate"`
	EmpiricalDifficulty  float64        `json:"empirical_difficulty"`
	DiscriminationIndex  float64        `json:"discrimination_index"`
	QualityScore         float64        `json:"quality_score"`
	FlaggedForReview     bool           `json:"flagged_for_review"`
	WrongKeyDistribution map[string]int `json:"wrong_key_distribution,omitempty"`
}
