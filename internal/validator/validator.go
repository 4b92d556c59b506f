// Package validator runs the four independent quality checks on a
// candidate item: structural completeness, ambiguity heuristics,
// near-duplicate detection against the reference corpus, and a
// difficulty-alignment heuristic.
package validator

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/corpus"
	"github.com/lgs-platform/backend/internal/models"
)

// hedging/uncertainty markers scanned for in stems; each hit adds a
// fixed penalty to the ambiguity score.
var ambiguityMarkers = []string{
	"sometimes", "usually", "probably", "often",
	"perhaps", "possibly", "likely", "generally", "may be",
}

var tokenRe = regexp.MustCompile(`\b\w+\b`)

// Validator is safe for concurrent use; its state is read-only after New.
type Validator struct {
	cfg         config.ValidatorConfig
	corpusStems []map[string]struct{}
}

// New tokenizes the corpus stems once so per-call duplicate checks only
// pay for set intersection.
func New(items []corpus.Item, cfg config.ValidatorConfig) *Validator {
	stems := make([]map[string]struct{}, 0, len(items))
	for _, it := range items {
		stems = append(stems, tokenSet(it.Stem))
	}
	return &Validator{cfg: cfg, corpusStems: stems}
}

// Validate runs all four checks regardless of individual outcomes and
// merges findings into a single result. The checks are order-independent.
func (v *Validator) Validate(item *models.GeneratedItem) *models.ValidationResult {
	result := &models.ValidationResult{
		Metrics: map[string]float64{},
	}

	v.checkStructure(item, result)
	ambiguity := v.checkAmbiguity(item, result)
	similarity := v.checkDuplicate(item, result)
	v.checkDifficulty(item, result)

	result.Similarity = similarity
	result.Metrics["ambiguity_score"] = ambiguity
	result.Metrics["max_similarity"] = similarity

	result.Confidence = clamp(
		1-0.2*float64(len(result.Errors))-0.1*ambiguity-0.3*math.Max(0, similarity-0.2),
		0, 1,
	)
	result.IsValid = len(result.Errors) == 0
	return result
}

func (v *Validator) checkStructure(item *models.GeneratedItem, result *models.ValidationResult) {
	if strings.TrimSpace(item.Stem) == "" {
		addError(result, models.CheckStructural, "stem is empty")
	}
	if strings.TrimSpace(item.Explanation) == "" {
		addError(result, models.CheckStructural, "explanation is empty")
	}
	if len(item.Options) != 4 {
		addError(result, models.CheckStructural, fmt.Sprintf("expected 4 options, got %d", len(item.Options)))
		return
	}

	correct := 0
	seenKeys := map[string]bool{}
	for _, opt := range item.Options {
		if opt.IsCorrect {
			correct++
		}
		if strings.TrimSpace(opt.Text) == "" {
			addError(result, models.CheckStructural, fmt.Sprintf("option %s is empty", opt.Key))
		}
		if seenKeys[opt.Key] {
			addError(result, models.CheckStructural, fmt.Sprintf("duplicate option key %s", opt.Key))
		}
		seenKeys[opt.Key] = true
	}
	if correct != 1 {
		addError(result, models.CheckStructural, fmt.Sprintf("expected exactly 1 correct option, got %d", correct))
	}
}

func (v *Validator) checkAmbiguity(item *models.GeneratedItem, result *models.ValidationResult) float64 {
	score := 0.0

	lower := strings.ToLower(item.Stem)
	for _, marker := range ambiguityMarkers {
		if strings.Contains(lower, marker) {
			score += 0.2
		}
	}

	maxOverlap := 0.0
	for i := 0; i < len(item.Options); i++ {
		for j := i + 1; j < len(item.Options); j++ {
			overlap := jaccard(tokenSet(item.Options[i].Text), tokenSet(item.Options[j].Text))
			if overlap > maxOverlap {
				maxOverlap = overlap
			}
			if overlap > v.cfg.OptionOverlapThreshold {
				score += 0.3
				addError(result, models.CheckAmbiguity, fmt.Sprintf(
					"options %s and %s are too similar (overlap %.2f)",
					item.Options[i].Key, item.Options[j].Key, overlap))
			}
		}
	}
	result.Metrics["option_overlap_max"] = maxOverlap

	return score
}

func (v *Validator) checkDuplicate(item *models.GeneratedItem, result *models.ValidationResult) float64 {
	candidate := tokenSet(item.Stem)

	maxSim := 0.0
	for _, stem := range v.corpusStems {
		if sim := jaccard(candidate, stem); sim > maxSim {
			maxSim = sim
		}
	}
	if maxSim > v.cfg.SimilarityThreshold {
		addError(result, models.CheckDuplicate, fmt.Sprintf(
			"near-duplicate of existing item (similarity %.2f)", maxSim))
	}
	return maxSim
}

func (v *Validator) checkDifficulty(item *models.GeneratedItem, result *models.ValidationResult) {
	complexity := impliedComplexity(item.Stem)
	result.Metrics["implied_complexity"] = complexity

	switch item.Difficulty {
	case models.DifficultyEasy:
		if complexity > 0.7 {
			addError(result, models.CheckDifficulty, fmt.Sprintf(
				"declared easy but implied complexity %.1f", complexity))
		}
	case models.DifficultyHard:
		if complexity < 0.4 {
			addError(result, models.CheckDifficulty, fmt.Sprintf(
				"declared hard but implied complexity %.1f", complexity))
		}
	}
}

// impliedComplexity buckets stem word count into a coarse 0.3/0.6/0.9
// complexity estimate.
func impliedComplexity(stem string) float64 {
	wc := len(strings.Fields(stem))
	switch {
	case wc < 15:
		return 0.3
	case wc < 30:
		return 0.6
	default:
		return 0.9
	}
}

func addError(result *models.ValidationResult, kind models.CheckKind, msg string) {
	result.Errors = append(result.Errors, models.CheckError{Kind: kind, Message: msg})
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccard is intersection over union of two token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
