package generator

import (
	"fmt"
	"strings"

	"github.com/lgs-platform/backend/internal/fingerprint"
	"github.com/lgs-platform/backend/internal/models"
)

// StyleHints carries the fingerprint-derived conditioning for a prompt:
// what authentic items in this category look like.
type StyleHints struct {
	TargetStemWords   int
	CommonPhrases     []string
	InterrogativeRate float64
	MultiSentenceRate float64
}

// HintsFor derives prompt conditioning from the corpus fingerprint,
// preferring the per-subject stem length when one exists.
func HintsFor(fp *fingerprint.Fingerprint, subject string) StyleHints {
	hints := StyleHints{TargetStemWords: 25}

	if fp == nil {
		return hints
	}
	if fp.Length.Defined {
		hints.TargetStemWords = int(fp.Length.Mean)
	}
	if pattern, ok := fp.Subjects[subject]; ok && pattern.AvgStemWords > 0 {
		hints.TargetStemWords = int(pattern.AvgStemWords)
	}
	for _, phrase := range fp.CommonPhrases {
		hints.CommonPhrases = append(hints.CommonPhrases, phrase.Phrase)
		if len(hints.CommonPhrases) == 3 {
			break
		}
	}
	hints.InterrogativeRate = fp.Structural["interrogative_start"]
	hints.MultiSentenceRate = fp.Structural["multi_sentence"]
	return hints
}

func ItemSystemPrompt() string {
	return `You are an expert author of multiple-choice exam items. You write items matching the register and structure of authentic national-exam questions.

Respond with a single JSON object and nothing else — no markdown fences, no commentary. The object must have exactly these fields:
{
  "stem": "the full question text",
  "options": [
    {"key": "A", "text": "...", "is_correct": true},
    {"key": "B", "text": "...", "is_correct": false},
    {"key": "C", "text": "...", "is_correct": false},
    {"key": "D", "text": "...", "is_correct": false}
  ],
  "explanation": "why the correct option is correct"
}

Exactly 4 options with keys A through D. Exactly one option has is_correct true. Distractors must be plausible but unambiguously wrong.`
}

// BuildItemPrompt renders the user prompt for a fresh generation,
// conditioned on the category and the corpus style hints.
func BuildItemPrompt(req models.GenerationRequest, hints StyleHints) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write one %s multiple-choice question.\n\n", req.Difficulty)
	fmt.Fprintf(&b, "Subject: %s\n", req.Subject)
	if req.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	}
	if req.Objective != "" {
		fmt.Fprintf(&b, "Learning objective: %s\n", req.Objective)
	}

	b.WriteString("\nStyle requirements, matched from authentic exam items:\n")
	fmt.Fprintf(&b, "- Aim for a stem of about %d words\n", hints.TargetStemWords)
	if len(hints.CommonPhrases) > 0 {
		fmt.Fprintf(&b, "- Authentic items frequently use framings such as: %s\n",
			strings.Join(hints.CommonPhrases, "; "))
	}
	if hints.InterrogativeRate > 0.5 {
		b.WriteString("- Open the stem with an interrogative word\n")
	}
	if hints.MultiSentenceRate > 0.5 {
		b.WriteString("- Use a multi-sentence stem: context first, then the question\n")
	}

	b.WriteString("\n")
	b.WriteString(difficultyGuidance(req.Difficulty))
	return b.String()
}

// BuildMutationPrompt asks for a complexity shift toward the requested
// tier while reusing the same stem context.
func BuildMutationPrompt(item *models.GeneratedItem, target models.Difficulty, hints StyleHints) string {
	direction := "Increase"
	if target == models.DifficultyEasy {
		direction = "Decrease"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The following question does not match its intended %s difficulty.\n\n", target)
	fmt.Fprintf(&b, "Current stem:\n%s\n\n", item.Stem)
	fmt.Fprintf(&b, "%s the complexity so it reads as a %s item, keeping the same scenario and subject matter. ", direction, target)
	fmt.Fprintf(&b, "Aim for a stem of about %d words. ", hints.TargetStemWords)
	b.WriteString("Rewrite the full question: stem, 4 options with exactly one correct, and explanation, in the same JSON format as before.\n\n")
	b.WriteString(difficultyGuidance(target))
	return b.String()
}

func difficultyGuidance(d models.Difficulty) string {
	switch d {
	case models.DifficultyEasy:
		return "Difficulty guidance: single-step recall or direct application. Short stem, no layered conditions."
	case models.DifficultyHard:
		return "Difficulty guidance: multi-step reasoning combining at least two concepts. Longer stem with embedded data or conditions the solver must untangle."
	default:
		return "Difficulty guidance: one clear reasoning step beyond recall. Moderate stem length."
	}
}
