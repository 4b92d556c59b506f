package validator

import (
	"math"
	"strings"
	"testing"

	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/corpus"
	"github.com/lgs-platform/backend/internal/models"
)

func testValidator(stems ...string) *Validator {
	var items []corpus.Item
	for _, s := range stems {
		items = append(items, corpus.Item{Stem: s, Subject: "math"})
	}
	return New(items, config.Default().Validator)
}

func validItem() *models.GeneratedItem {
	return &models.GeneratedItem{
		Stem: "A worker paints a fence at a constant rate over several days of effort",
		Options: []models.Option{
			{Key: "A", Text: "twelve hours", IsCorrect: true},
			{Key: "B", Text: "ten meters"},
			{Key: "C", Text: "five buckets"},
			{Key: "D", Text: "eight planks"},
		},
		Explanation: "Divide the total area by the daily rate.",
		Difficulty:  models.DifficultyMedium,
	}
}

func TestValidateAcceptsWellFormedItem(t *testing.T) {
	v := testValidator("An unrelated geometry stem about circles and tangent lines")

	result := v.Validate(validItem())

	if !result.IsValid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
	if result.Confidence < 0.9 {
		t.Errorf("Confidence = %v, want >= 0.9 for a clean item", result.Confidence)
	}
}

func TestValidateStructuralErrors(t *testing.T) {
	v := testValidator("Unrelated corpus stem here for reference")

	tests := []struct {
		name   string
		mutate func(*models.GeneratedItem)
	}{
		{"empty stem", func(it *models.GeneratedItem) { it.Stem = "" }},
		{"empty explanation", func(it *models.GeneratedItem) { it.Explanation = " " }},
		{"three options", func(it *models.GeneratedItem) { it.Options = it.Options[:3] }},
		{"no correct option", func(it *models.GeneratedItem) { it.Options[0].IsCorrect = false }},
		{"two correct options", func(it *models.GeneratedItem) { it.Options[1].IsCorrect = true }},
		{"duplicate keys", func(it *models.GeneratedItem) { it.Options[1].Key = "A" }},
		{"blank option text", func(it *models.GeneratedItem) { it.Options[2].Text = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			item := validItem()
			tc.mutate(item)

			result := v.Validate(item)
			if result.IsValid {
				t.Fatal("expected invalid")
			}
			if !result.HasKind(models.CheckStructural) {
				t.Errorf("expected a structural error, got %v", result.Errors)
			}
			if !result.HasHardError() {
				t.Error("structural errors must be hard")
			}
		})
	}
}

func TestValidateDuplicateAgainstCorpus(t *testing.T) {
	stem := "Which of the following fractions is larger than one half but smaller than one"
	v := testValidator(stem)

	item := validItem()
	item.Stem = stem

	result := v.Validate(item)

	if result.Similarity < 0.99 {
		t.Errorf("Similarity = %v, want ~1.0 for an exact copy", result.Similarity)
	}
	if result.IsValid {
		t.Fatal("expected duplicate to be invalid")
	}
	if !result.HasKind(models.CheckDuplicate) {
		t.Errorf("expected duplicate error, got %v", result.Errors)
	}
	if !result.HasHardError() {
		t.Error("duplicate errors must be hard")
	}
}

func TestValidateAmbiguityMarkers(t *testing.T) {
	v := testValidator("Unrelated corpus stem about angles")

	item := validItem()
	item.Stem = "Water usually boils and probably evaporates under several common conditions"

	result := v.Validate(item)

	if got := result.Metrics["ambiguity_score"]; math.Abs(got-0.4) > 1e-9 {
		t.Errorf("ambiguity_score = %v, want 0.4 for two markers", got)
	}
	clean := v.Validate(validItem())
	if result.Confidence >= clean.Confidence {
		t.Errorf("hedged stem confidence %v not below clean %v", result.Confidence, clean.Confidence)
	}
}

func TestValidateOverlappingOptions(t *testing.T) {
	v := testValidator("Unrelated corpus stem about velocity")

	item := validItem()
	item.Options[1].Text = "hours twelve"

	result := v.Validate(item)

	if !result.HasKind(models.CheckAmbiguity) {
		t.Fatalf("expected overlap to flag ambiguity, got %v", result.Errors)
	}
	if result.HasHardError() {
		t.Error("option overlap is a soft finding")
	}
}

func TestValidateDifficultyAlignment(t *testing.T) {
	v := testValidator("Unrelated corpus stem about chemistry experiments")

	long := strings.TrimSpace(strings.Repeat("word ", 40))

	tests := []struct {
		name       string
		stem       string
		difficulty models.Difficulty
		wantError  bool
	}{
		{"easy short", "What is two plus two", models.DifficultyEasy, false},
		{"easy but long", long, models.DifficultyEasy, true},
		{"hard but short", "What is two plus two", models.DifficultyHard, true},
		{"hard long", long, models.DifficultyHard, false},
		{"medium anything", "What is two plus two", models.DifficultyMedium, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			item := validItem()
			item.Stem = tc.stem
			item.Difficulty = tc.difficulty

			result := v.Validate(item)
			if got := result.HasKind(models.CheckDifficulty); got != tc.wantError {
				t.Errorf("difficulty error = %v, want %v (errors %v)", got, tc.wantError, result.Errors)
			}
		})
	}
}

func TestConfidenceFormula(t *testing.T) {
	v := testValidator("Unrelated corpus stem about botany")

	item := validItem()
	item.Explanation = ""
	// one error, no ambiguity, similarity near zero
	result := v.Validate(item)

	want := 1 - 0.2*1
	if math.Abs(result.Confidence-want) > 0.05 {
		t.Errorf("Confidence = %v, want about %v", result.Confidence, want)
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"the red fox", "the red fox", 1.0},
		{"alpha beta", "gamma delta", 0.0},
		{"a b c d", "c d e f", 1.0 / 3.0},
		{"", "anything", 0.0},
	}
	for _, tc := range tests {
		if got := jaccard(tokenSet(tc.a), tokenSet(tc.b)); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("jaccard(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
