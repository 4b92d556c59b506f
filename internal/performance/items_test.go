package performance

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lgs-platform/backend/internal/models"
)

func answerItem(tr *Tracker, requester, itemID, selected string, correct bool) {
	tr.Record(models.PerformanceRecord{
		EventID:     uuid.NewString(),
		RequesterID: requester,
		Subject:     "math",
		ItemID:      itemID,
		SelectedKey: selected,
		Correct:     correct,
		Timestamp:   time.Now(),
	})
}

func TestItemStatsCorrectRateAndWrongKeys(t *testing.T) {
	tr := newTestTracker()

	answerItem(tr, "s1", "item-1", "A", true)
	answerItem(tr, "s2", "item-1", "B", false)
	answerItem(tr, "s3", "item-1", "B", false)
	answerItem(tr, "s4", "item-1", "C", false)

	perf, ok := tr.ItemStats("item-1")
	if !ok {
		t.Fatal("item-1 has no stats")
	}
	if perf.TotalAttempts != 4 || perf.CorrectAttempts != 1 {
		t.Errorf("attempts = %d/%d, want 4/1", perf.TotalAttempts, perf.CorrectAttempts)
	}
	if perf.CorrectRate != 0.25 {
		t.Errorf("CorrectRate = %v, want 0.25", perf.CorrectRate)
	}
	if perf.EmpiricalDifficulty != 0.75 {
		t.Errorf("EmpiricalDifficulty = %v, want 0.75", perf.EmpiricalDifficulty)
	}
	if perf.WrongKeyDistribution["B"] != 2 || perf.WrongKeyDistribution["C"] != 1 {
		t.Errorf("wrong keys = %v, want B:2 C:1", perf.WrongKeyDistribution)
	}
}

func TestItemStatsUnknownItem(t *testing.T) {
	tr := newTestTracker()
	if _, ok := tr.ItemStats("missing"); ok {
		t.Error("expected no stats for unknown item")
	}
}

func TestDiscriminationSeparatesStrongAndWeakResponders(t *testing.T) {
	tr := newTestTracker()

	// Build ability history first: strong responders answer other items
	// correctly, weak ones incorrectly.
	for i := 0; i < 3; i++ {
		strong := fmt.Sprintf("strong-%d", i)
		weak := fmt.Sprintf("weak-%d", i)
		recordOutcomes(t, tr, strong, "math", 1, 1, 1)
		recordOutcomes(t, tr, weak, "math", 0, 0, 0)

		answerItem(tr, strong, "item-d", "A", true)
		answerItem(tr, weak, "item-d", "B", false)
	}

	perf, ok := tr.ItemStats("item-d")
	if !ok {
		t.Fatal("item-d has no stats")
	}
	if perf.DiscriminationIndex <= 0.5 {
		t.Errorf("DiscriminationIndex = %v, want strongly positive", perf.DiscriminationIndex)
	}
}

func TestLowQualityItemFlaggedAfterEnoughAttempts(t *testing.T) {
	tr := newTestTracker()

	// Strong responders miss while weak responders hit: negative
	// discrimination, and a correct rate far from the useful middle.
	for i := 0; i < 6; i++ {
		strong := fmt.Sprintf("strong-%d", i)
		weak := fmt.Sprintf("weak-%d", i)
		recordOutcomes(t, tr, strong, "math", 1, 1, 1)
		recordOutcomes(t, tr, weak, "math", 0, 0, 0)

		answerItem(tr, strong, "item-bad", "D", false)
		answerItem(tr, weak, "item-bad", "A", true)
	}

	perf, ok := tr.ItemStats("item-bad")
	if !ok {
		t.Fatal("item-bad has no stats")
	}
	if perf.DiscriminationIndex >= 0 {
		t.Errorf("DiscriminationIndex = %v, want negative", perf.DiscriminationIndex)
	}
	if !perf.FlaggedForReview {
		t.Errorf("item not flagged: quality %v over %d attempts", perf.QualityScore, perf.TotalAttempts)
	}

	flagged := tr.FlaggedItems()
	if len(flagged) != 1 || flagged[0].ItemID != "item-bad" {
		t.Errorf("FlaggedItems = %v, want just item-bad", flagged)
	}
}

func TestHealthyItemNotFlagged(t *testing.T) {
	tr := newTestTracker()

	for i := 0; i < 6; i++ {
		strong := fmt.Sprintf("strong-%d", i)
		weak := fmt.Sprintf("weak-%d", i)
		recordOutcomes(t, tr, strong, "math", 1, 1, 1)
		recordOutcomes(t, tr, weak, "math", 0, 0, 0)

		answerItem(tr, strong, "item-good", "A", true)
		answerItem(tr, weak, "item-good", "B", i%2 == 0)
	}

	perf, _ := tr.ItemStats("item-good")
	if perf.FlaggedForReview {
		t.Errorf("healthy item flagged: quality %v", perf.QualityScore)
	}
}
