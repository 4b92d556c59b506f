// Package corpus loads the static reference corpus of authentic exam
// items. The corpus is read once at startup and never mutated; the
// fingerprint model and the validator's duplicate check both read it.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/lgs-platform/backend/internal/models"
)

// Item is one authentic exam item as stored in the corpus file.
type Item struct {
	Stem        string            `json:"stem"`
	Options     []models.Option   `json:"options"`
	Explanation string            `json:"explanation,omitempty"`
	Subject     string            `json:"subject"`
	Topic       string            `json:"topic,omitempty"`
	Difficulty  models.Difficulty `json:"difficulty_level,omitempty"`
}

// Load reads a JSONL corpus file, one item per line. Malformed lines are
// skipped with a warning; an empty result is an error because the
// fingerprint and duplicate check are meaningless without reference data.
func Load(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var items []Item
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			log.Printf("WARN: corpus line %d unparseable: %v", lineNo, err)
			continue
		}
		if item.Stem == "" {
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("corpus %s contains no usable items", path)
	}

	log.Printf("[corpus] loaded %d authentic items from %s", len(items), path)
	return items, nil
}

// Stems returns every stem in the corpus, in file order.
func Stems(items []Item) []string {
	stems := make([]string, 0, len(items))
	for _, it := range items {
		stems = append(stems, it.Stem)
	}
	return stems
}
