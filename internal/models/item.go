package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
}

// Promote returns the next harder tier, capped at hard.
func (d Difficulty) Promote() Difficulty {
	switch d {
	case DifficultyEasy:
		return DifficultyMedium
	case DifficultyMedium:
		return DifficultyHard
	default:
		return DifficultyHard
	}
}

// Demote returns the next easier tier, floored at easy.
func (d Difficulty) Demote() Difficulty {
	switch d {
	case DifficultyHard:
		return DifficultyMedium
	case DifficultyMedium:
		return DifficultyEasy
	default:
		return DifficultyEasy
	}
}

type ItemType string

const (
	ItemMultipleChoice ItemType = "multiple_choice"
	ItemTrueFalse      ItemType = "true_false"
	ItemFillBlank      ItemType = "fill_blank"
)

// Provenance records which tier a returned item came from.
type Provenance string

const (
	ProvenanceCache     Provenance = "cache"
	ProvenancePool      Provenance = "pool"
	ProvenanceGenerated Provenance = "generated"
)

// CategoryKey identifies a class of generation requests. It is the
// partition key for the point cache and the pre-generation pools.
type CategoryKey struct {
	Subject    string     `json:"subject"`
	Topic      string     `json:"topic"`
	Objective  string     `json:"objective"`
	Difficulty Difficulty `json:"difficulty"`
}

// Hash returns the deterministic cache key for this category.
func (k CategoryKey) Hash() string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%s:%s", k.Subject, k.Topic, k.Objective, k.Difficulty)))
	return hex.EncodeToString(sum[:])
}

// GenerationRequest is immutable once issued.
type GenerationRequest struct {
	CategoryKey
	ItemType    ItemType `json:"item_type"`
	RequesterID string   `json:"requester_id,omitempty"`
}

// Option is one labeled answer choice.
type Option struct {
	Key       string `json:"key"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// GeneratedItem is a complete exam item as returned to callers. Once
// returned it is a value; the core does not track it further.
type GeneratedItem struct {
	Stem        string     `json:"stem"`
	Options     []Option   `json:"options"`
	Explanation string     `json:"explanation"`
	Difficulty  Difficulty `json:"difficulty"`
	Subject     string     `json:"subject,omitempty"`
	Topic       string     `json:"topic,omitempty"`
	Objective   string     `json:"objective,omitempty"`
	Provenance  Provenance `json:"provenance"`
	Confidence  float64    `json:"confidence"`
	Conformance float64    `json:"conformance"`
	// NeedsReview marks degraded-success items for offline quality review.
	NeedsReview bool      `json:"needs_review,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CorrectKey returns the key of the option marked correct, or "" if the
// item is malformed.
func (it *GeneratedItem) CorrectKey() string {
	for _, opt := range it.Options {
		if opt.IsCorrect {
			return opt.Key
		}
	}
	return ""
}
