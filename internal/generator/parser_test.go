package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const wellFormedItem = `{
  "stem": "A train travels at a constant speed between two stations",
  "options": [
    {"key": "A", "text": "sixty kilometers per hour", "is_correct": true},
    {"key": "B", "text": "forty kilometers per hour", "is_correct": false},
    {"key": "C", "text": "ninety kilometers per hour", "is_correct": false},
    {"key": "D", "text": "thirty kilometers per hour", "is_correct": false}
  ],
  "explanation": "Distance over time gives sixty."
}`

func TestParseItemWellFormed(t *testing.T) {
	item, err := ParseItem(wellFormedItem)
	if err != nil {
		t.Fatalf("ParseItem: %v", err)
	}
	if len(item.Options) != 4 {
		t.Fatalf("options = %d, want 4", len(item.Options))
	}
	if item.CorrectKey() != "A" {
		t.Errorf("CorrectKey = %q, want A", item.CorrectKey())
	}
	if item.Stem == "" || item.Explanation == "" {
		t.Error("stem or explanation lost in decode")
	}
}

func TestParseItemStripsCodeFences(t *testing.T) {
	fenced := "```json\n" + wellFormedItem + "\n```"
	item, err := ParseItem(fenced)
	if err != nil {
		t.Fatalf("ParseItem fenced: %v", err)
	}
	if item.CorrectKey() != "A" {
		t.Errorf("CorrectKey = %q, want A", item.CorrectKey())
	}
}

func TestParseItemRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "the model rambled instead of emitting JSON"},
		{"empty", ""},
		{"missing explanation", `{"stem":"s","options":[{"key":"A","text":"t","is_correct":true},{"key":"B","text":"t","is_correct":false},{"key":"C","text":"t","is_correct":false},{"key":"D","text":"t","is_correct":false}]}`},
		{"three options", `{"stem":"s","explanation":"e","options":[{"key":"A","text":"t","is_correct":true},{"key":"B","text":"t","is_correct":false},{"key":"C","text":"t","is_correct":false}]}`},
		{"bad option key", strings.Replace(wellFormedItem, `"key": "D"`, `"key": "E"`, 1)},
		{"empty stem", strings.Replace(wellFormedItem, "A train travels at a constant speed between two stations", "", 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseItem(tc.body)
			if err == nil {
				t.Fatal("expected error")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("error type = %T, want *ParseError", err)
			}
		})
	}
}

func TestMockClientProducesParseableUniqueItems(t *testing.T) {
	mock := NewMockClient()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		resp, err := mock.Generate(context.Background(), "system", "user")
		if err != nil {
			t.Fatalf("mock generate: %v", err)
		}
		item, err := ParseItem(resp.Content)
		if err != nil {
			t.Fatalf("mock output unparseable: %v", err)
		}
		if seen[item.Stem] {
			t.Error("mock stems repeat; duplicate check would reject them")
		}
		seen[item.Stem] = true
	}
}
