// Package parse turns free-form model output into normalized nutrition
// values. Vendors do not reliably honor the response-format instruction, so
// extraction is a tolerant scan with explicit defaults rather than a strict
// parser.
package parse

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AnalysisPrompt is the fixed instruction sent with every meal photo.
//
// The response contract here is what Nutrition below expects to find inside
// the vendor's free-text payload.
const AnalysisPrompt = `Analyze the meal in this photo and estimate its nutrition content.

Respond with a single JSON object with exactly these keys:
{
  "name": "<short dish name>",
  "description": "<one or two sentences describing the meal>",
  "energy": <kilocalories as a number>,
  "protein": <grams as a number>,
  "fat": <grams as a number>,
  "carbohydrate": <grams as a number>,
  "confidence": <your confidence between 0 and 1>
}

Do not include any other text.`

// UnknownSentinel replaces a missing name or description.
const UnknownSentinel = "Unknown"

const defaultConfidence = 0.5

var fenceRegex = regexp.MustCompile("```(?:json|JSON)?\\s*\\n?([\\s\\S]*?)\\n?```")

// Nutrition is the decoded, defaulted payload of one model response.
type Nutrition struct {
	Name         string
	Description  string
	Energy       decimal.Decimal
	Protein      decimal.Decimal
	Fat          decimal.Decimal
	Carbohydrate decimal.Decimal
	Confidence   float64
}

// ErrNoJSONObject reports that no JSON object could be located in the text.
var ErrNoJSONObject = errors.New("no JSON object found in response text")

// ExtractObject locates the JSON object embedded in free-form model text.
//
// Markdown code fences win when present; otherwise the substring between the
// first '{' and the last '}' is taken. Vendors routinely prepend and append
// prose around the object they were asked for.
func ExtractObject(text string) (string, error) {
	if matches := fenceRegex.FindStringSubmatch(text); len(matches) > 1 {
		fenced := strings.TrimSpace(matches[1])
		if strings.Contains(fenced, "{") {
			text = fenced
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSONObject
	}

	return text[start : end+1], nil
}

type rawNutrition struct {
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Energy       flexNumber  `json:"energy"`
	Protein      flexNumber  `json:"protein"`
	Fat          flexNumber  `json:"fat"`
	Carbohydrate flexNumber  `json:"carbohydrate"`
	Confidence   *flexNumber `json:"confidence"`
}

// ParseNutrition extracts and decodes the nutrition object from model text.
//
// Missing or uncoercible numeric fields default to zero, a missing
// confidence defaults to 0.5, and missing name/description default to the
// unknown sentinel. Only a syntactically invalid object is an error.
func ParseNutrition(text string) (Nutrition, error) {
	object, err := ExtractObject(text)
	if err != nil {
		return Nutrition{}, err
	}

	var raw rawNutrition
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		return Nutrition{}, err
	}

	result := Nutrition{
		Name:         strings.TrimSpace(raw.Name),
		Description:  strings.TrimSpace(raw.Description),
		Energy:       raw.Energy.value,
		Protein:      raw.Protein.value,
		Fat:          raw.Fat.value,
		Carbohydrate: raw.Carbohydrate.value,
		Confidence:   defaultConfidence,
	}

	if result.Name == "" {
		result.Name = UnknownSentinel
	}
	if result.Description == "" {
		result.Description = UnknownSentinel
	}
	if raw.Confidence != nil {
		result.Confidence = clampConfidence(raw.Confidence.value)
	}

	return result, nil
}

func clampConfidence(value decimal.Decimal) float64 {
	f, _ := value.Float64()
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// flexNumber coerces a JSON number or numeric string into a decimal.
//
// Anything uncoercible decodes as zero instead of failing the whole object.
type flexNumber struct {
	value decimal.Decimal
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "" || text == "null" {
		return nil
	}

	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}

	parsed, err := decimal.NewFromString(text)
	if err != nil || parsed.IsNegative() {
		return nil
	}

	n.value = parsed
	return nil
}
