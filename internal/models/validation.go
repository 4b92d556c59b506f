package models

// CheckKind is the closed set of validation checks. Structural and
// duplicate failures are hard: an attempt carrying one is never returned
// to a caller. Ambiguity and difficulty failures are soft: they reduce
// confidence and may trigger a mutation retry.
type CheckKind string

const (
	CheckStructural CheckKind = "structural"
	CheckAmbiguity  CheckKind = "ambiguity"
	CheckDuplicate  CheckKind = "duplicate"
	CheckDifficulty CheckKind = "difficulty"
)

// Hard reports whether a failure of this kind disqualifies the attempt.
func (k CheckKind) Hard() bool {
	switch k {
	case CheckStructural, CheckDuplicate:
		return true
	case CheckAmbiguity, CheckDifficulty:
		return false
	}
	return true
}

// CheckError is one categorized validation finding.
type CheckError struct {
	Kind    CheckKind `json:"kind"`
	Message string    `json:"message"`
}

// ValidationResult is created fresh per validation call and never mutated.
type ValidationResult struct {
	IsValid    bool               `json:"is_valid"`
	Confidence float64            `json:"confidence"`
	Errors     []CheckError       `json:"errors,omitempty"`
	Metrics    map[string]float64 `json:"quality_metrics,omitempty"`
	Similarity float64            `json:"similarity_score"`
}

// HasHardError reports whether any finding disqualifies the attempt.
func (r *ValidationResult) HasHardError() bool {
	for _, e := range r.Errors {
		if e.Kind.Hard() {
			return true
		}
	}
	return false
}

// HasKind reports whether any finding has the given kind.
func (r *ValidationResult) HasKind(kind CheckKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
