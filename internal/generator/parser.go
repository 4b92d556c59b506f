package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lgs-platform/backend/internal/models"
)

// ParseError marks output the external capability produced but the
// pipeline could not decode. It is a generation failure, retried on its
// own budget, never a validation failure.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable generator output: %s", e.Reason)
}

// itemSchema is the single strict contract for generator output. There
// are no fallback decodes: anything the schema rejects is a ParseError.
const itemSchema = `{
  "type": "object",
  "required": ["stem", "options", "explanation"],
  "properties": {
    "stem": {"type": "string", "minLength": 1},
    "explanation": {"type": "string", "minLength": 1},
    "options": {
      "type": "array",
      "minItems": 4,
      "maxItems": 4,
      "items": {
        "type": "object",
        "required": ["key", "text", "is_correct"],
        "properties": {
          "key": {"type": "string", "enum": ["A", "B", "C", "D"]},
          "text": {"type": "string", "minLength": 1},
          "is_correct": {"type": "boolean"}
        }
      }
    }
  }
}`

var compiledItemSchema = gojsonschema.NewStringLoader(itemSchema)

type rawItem struct {
	Stem        string          `json:"stem"`
	Options     []models.Option `json:"options"`
	Explanation string          `json:"explanation"`
}

// ParseItem decodes one generated item from raw model output, validating
// against the schema before unmarshalling.
func ParseItem(responseBody string) (*models.GeneratedItem, error) {
	cleaned := stripCodeFences(responseBody)

	result, err := gojsonschema.Validate(compiledItemSchema, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return nil, &ParseError{Reason: strings.Join(reasons, "; ")}
	}

	var raw rawItem
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	return &models.GeneratedItem{
		Stem:        raw.Stem,
		Options:     raw.Options,
		Explanation: raw.Explanation,
	}, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
