// Package fingerprint computes a statistical profile of the reference
// corpus and scores how closely a candidate item matches it. A
// Fingerprint is built once at startup and never mutated; rebuilding
// means calling Build again on a fresh corpus.
package fingerprint

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/lgs-platform/backend/internal/corpus"
	"github.com/lgs-platform/backend/internal/models"
)

// LengthStats describes the word-count distribution of corpus stems.
type LengthStats struct {
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	Std          float64 `json:"std"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	P25          float64 `json:"p25"`
	P75          float64 `json:"p75"`
	P90          float64 `json:"p90"`
	SentenceMean float64 `json:"sentence_mean"`
	Defined      bool    `json:"defined"`
}

// WordFreq is one entry of a subject's top-vocabulary table.
type WordFreq struct {
	Word string  `json:"word"`
	Freq float64 `json:"freq"`
}

// SubjectPattern holds per-subject linguistic metrics.
type SubjectPattern struct {
	AvgStemWords    float64    `json:"avg_stem_words"`
	UniqueVocabRate float64    `json:"unique_vocab_rate"`
	TopWords        []WordFreq `json:"top_words"`
}

// PhraseFreq is one common stem phrase with its corpus frequency. The
// generator uses these for style-conditioned prompts.
type PhraseFreq struct {
	Phrase string  `json:"phrase"`
	Freq   float64 `json:"freq"`
}

// Fingerprint is the read-mostly statistical snapshot of the corpus.
type Fingerprint struct {
	Length               LengthStats
	Punctuation          map[string]float64
	OptionLengthVariance float64
	VarianceDefined      bool
	Subjects             map[string]SubjectPattern
	Structural           map[string]float64
	CommonPhrases        []PhraseFreq
	CorpusSize           int
}

// Stock phrases that open or frame exam stems; their observed frequency
// feeds the style-conditioning hints.
var stockPhrases = []string{
	"According to the passage",
	"Which of the following",
	"Based on the information above",
	"In this case",
	"Given the information",
	"Which statement",
}

var (
	interrogativeRe = regexp.MustCompile(`(?i)^(what|which|how|who|where|when|why)\b`)
	conditionalRe   = regexp.MustCompile(`(?i)\b(if|unless|provided|assuming|in case)\b`)
	comparisonRe    = regexp.MustCompile(`(?i)\b(more|most|than|similar|compared|least)\b`)
	enumerationRe   = regexp.MustCompile(`\b(I\.|II\.|III\.|first|second|third)\b`)
	wordRe          = regexp.MustCompile(`\b\w+\b`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
)

// Build computes a Fingerprint from the corpus. It is pure and
// deterministic for a given corpus; an empty corpus yields a Fingerprint
// whose metrics are all undefined.
func Build(items []corpus.Item) *Fingerprint {
	fp := &Fingerprint{
		Punctuation: map[string]float64{},
		Subjects:    map[string]SubjectPattern{},
		Structural:  map[string]float64{},
		CorpusSize:  len(items),
	}
	if len(items) == 0 {
		return fp
	}

	stems := corpus.Stems(items)

	fp.Length = analyzeLengths(stems)
	fp.Punctuation = analyzePunctuation(stems)
	fp.OptionLengthVariance, fp.VarianceDefined = analyzeOptionVariance(items)
	fp.Subjects = analyzeSubjects(items)
	fp.Structural = analyzeStructural(stems)
	fp.CommonPhrases = analyzePhrases(stems)

	return fp
}

func analyzeLengths(stems []string) LengthStats {
	var wordCounts, sentenceCounts []float64
	for _, stem := range stems {
		wordCounts = append(wordCounts, float64(len(strings.Fields(stem))))
		sentenceCounts = append(sentenceCounts, float64(countSentences(stem)))
	}
	if len(wordCounts) == 0 {
		return LengthStats{}
	}

	sorted := append([]float64(nil), wordCounts...)
	sort.Float64s(sorted)

	return LengthStats{
		Mean:         mean(wordCounts),
		Median:       percentile(sorted, 50),
		Std:          stddev(wordCounts),
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		P25:          percentile(sorted, 25),
		P75:          percentile(sorted, 75),
		P90:          percentile(sorted, 90),
		SentenceMean: mean(sentenceCounts),
		Defined:      true,
	}
}

func analyzePunctuation(stems []string) map[string]float64 {
	n := float64(len(stems))
	if n == 0 {
		return map[string]float64{}
	}

	counts := map[string]int{}
	for _, stem := range stems {
		counts["question_mark"] += strings.Count(stem, "?")
		counts["exclamation"] += strings.Count(stem, "!")
		counts["comma"] += strings.Count(stem, ",")
		counts["parentheses"] += strings.Count(stem, "(") + strings.Count(stem, ")")
		counts["quotation"] += strings.Count(stem, `"`)
		counts["colon"] += strings.Count(stem, ":")
		counts["semicolon"] += strings.Count(stem, ";")
		counts["dash"] += strings.Count(stem, "-")
	}

	freqs := make(map[string]float64, len(counts))
	for symbol, count := range counts {
		freqs[symbol] = float64(count) / n
	}
	return freqs
}

func analyzeOptionVariance(items []corpus.Item) (float64, bool) {
	var variances []float64
	for _, it := range items {
		if len(it.Options) < 4 {
			continue
		}
		lengths := make([]float64, 0, len(it.Options))
		for _, opt := range it.Options {
			lengths = append(lengths, float64(len(strings.Fields(opt.Text))))
		}
		if v := variance(lengths); v > 0 {
			variances = append(variances, v)
		}
	}
	if len(variances) == 0 {
		return 0, false
	}
	return mean(variances), true
}

func analyzeSubjects(items []corpus.Item) map[string]SubjectPattern {
	bySubject := map[string][]string{}
	for _, it := range items {
		subject := it.Subject
		if subject == "" {
			continue
		}
		bySubject[subject] = append(bySubject[subject], it.Stem)
	}

	patterns := map[string]SubjectPattern{}
	for subject, stems := range bySubject {
		// Too few samples produce noise, not a pattern.
		if len(stems) < 3 {
			continue
		}

		var lengths []float64
		wordCounts := map[string]int{}
		totalWords := 0
		for _, stem := range stems {
			lengths = append(lengths, float64(len(strings.Fields(stem))))
			for _, w := range wordRe.FindAllString(strings.ToLower(stem), -1) {
				wordCounts[w]++
				totalWords++
			}
		}

		pattern := SubjectPattern{AvgStemWords: mean(lengths)}
		if totalWords > 0 {
			pattern.UniqueVocabRate = float64(len(wordCounts)) / float64(totalWords)
			pattern.TopWords = topWords(wordCounts, totalWords, 5)
		}
		patterns[subject] = pattern
	}
	return patterns
}

func analyzeStructural(stems []string) map[string]float64 {
	n := float64(len(stems))
	if n == 0 {
		return map[string]float64{}
	}

	counts := map[string]int{}
	for _, stem := range stems {
		if interrogativeRe.MatchString(stem) {
			counts["interrogative_start"]++
		}
		if conditionalRe.MatchString(stem) {
			counts["conditional"]++
		}
		if comparisonRe.MatchString(stem) {
			counts["comparison"]++
		}
		if enumerationRe.MatchString(stem) {
			counts["enumeration"]++
		}
		if countSentences(stem) > 2 {
			counts["multi_sentence"]++
		}
	}

	rates := make(map[string]float64, len(counts))
	for name, count := range counts {
		rates[name] = float64(count) / n
	}
	return rates
}

func analyzePhrases(stems []string) []PhraseFreq {
	n := float64(len(stems))
	var phrases []PhraseFreq
	for _, phrase := range stockPhrases {
		count := 0
		for _, stem := range stems {
			if strings.Contains(strings.ToLower(stem), strings.ToLower(phrase)) {
				count++
			}
		}
		if count > 0 {
			phrases = append(phrases, PhraseFreq{Phrase: phrase, Freq: float64(count) / n})
		}
	}
	sort.Slice(phrases, func(i, j int) bool { return phrases[i].Freq > phrases[j].Freq })
	return phrases
}

// ── Conformance Scoring ────────────────────────────────────

// Score returns how well an item conforms to the fingerprint, in [0, 1].
// Undefined metrics are skipped; with nothing defined the score is a
// neutral 0.5.
func (fp *Fingerprint) Score(item *models.GeneratedItem) float64 {
	var scores []float64

	wordCount := float64(len(strings.Fields(item.Stem)))

	if fp.Length.Defined {
		scores = append(scores, lengthConformance(wordCount, fp.Length.Mean, fp.Length.Std))
	}

	if len(fp.Punctuation) > 0 {
		scores = append(scores, fp.punctuationConformance(item.Stem))
	}

	if fp.VarianceDefined && len(item.Options) >= 4 {
		lengths := make([]float64, 0, len(item.Options))
		for _, opt := range item.Options {
			lengths = append(lengths, float64(len(strings.Fields(opt.Text))))
		}
		scores = append(scores, varianceConformance(variance(lengths), fp.OptionLengthVariance))
	}

	if pattern, ok := fp.Subjects[item.Subject]; ok && pattern.AvgStemWords > 0 {
		diff := math.Abs(wordCount-pattern.AvgStemWords) / pattern.AvgStemWords
		scores = append(scores, math.Max(0, 1-diff))
	}

	if len(scores) == 0 {
		return 0.5
	}
	return mean(scores)
}

// lengthConformance applies a 3-sigma falloff around the corpus mean.
func lengthConformance(actual, expectedMean, expectedStd float64) float64 {
	if expectedStd <= 0 {
		if actual == expectedMean {
			return 1.0
		}
		return 0.5
	}
	z := math.Abs(actual-expectedMean) / expectedStd
	return math.Max(0, 1-z/3)
}

func (fp *Fingerprint) punctuationConformance(stem string) float64 {
	// Mirrors the symbol set analyzePunctuation collects.
	actual := map[string]float64{
		"question_mark": float64(strings.Count(stem, "?")),
		"exclamation":   float64(strings.Count(stem, "!")),
		"comma":         float64(strings.Count(stem, ",")),
		"parentheses":   float64(strings.Count(stem, "(") + strings.Count(stem, ")")),
		"quotation":     float64(strings.Count(stem, `"`)),
		"colon":         float64(strings.Count(stem, ":")),
		"semicolon":     float64(strings.Count(stem, ";")),
		"dash":          float64(strings.Count(stem, "-")),
	}

	var scores []float64
	for symbol, expected := range fp.Punctuation {
		got, ok := actual[symbol]
		if !ok {
			continue
		}
		switch {
		case expected == 0 && got == 0:
			scores = append(scores, 1.0)
		case expected == 0:
			// Fixed penalty for punctuation the corpus never uses.
			scores = append(scores, 0.5)
		default:
			scores = append(scores, 1-math.Min(1, math.Abs(got-expected)/expected))
		}
	}
	if len(scores) == 0 {
		return 0.5
	}
	return mean(scores)
}

func varianceConformance(actual, expected float64) float64 {
	if expected <= 0 {
		if actual == 0 {
			return 1.0
		}
		return 0.5
	}
	if actual == 0 {
		return 0.5
	}
	return math.Min(actual, expected) / math.Max(actual, expected)
}

// ── Helpers ────────────────────────────────────────────────

func countSentences(s string) int {
	parts := sentenceSplitRe.Split(s, -1)
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
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

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(values)-1)
}

func stddev(values []float64) float64 {
	return math.Sqrt(variance(values))
}

// percentile expects sorted input and interpolates linearly.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func topWords(counts map[string]int, total, n int) []WordFreq {
	type wc struct {
		word  string
		count int
	}
	all := make([]wc, 0, len(counts))
	for w, c := range counts {
		all = append(all, wc{w, c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].word < all[j].word
	})
	if len(all) > n {
		all = all[:n]
	}
	result := make([]WordFreq, 0, len(all))
	for _, e := range all {
		result = append(result, WordFreq{Word: e.word, Freq: float64(e.count) / float64(total)})
	}
	return result
}
