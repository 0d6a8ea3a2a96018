// Package result normalizes parsed vendor payloads into the engine's
// AnalysisResult shape.
package result

import (
	"time"

	"github.com/google/uuid"

	"mealsnap/pkg/provider/parse"
	providertypes "mealsnap/pkg/provider/types"
)

// FromText extracts nutrition from free-form model output and stamps it with
// provider identity, a fresh request id, and a creation time.
//
// A payload with no syntactically valid JSON object is an unknown-kind
// error, which the attempt loop treats as transient.
func FromText(provider providertypes.Provider, text string) (providertypes.AnalysisResult, error) {
	nutrition, err := parse.ParseNutrition(text)
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, provider, "parse response: %v", err)
	}

	return providertypes.AnalysisResult{
		RequestID:    uuid.NewString(),
		Name:         nutrition.Name,
		Description:  nutrition.Description,
		Energy:       nutrition.Energy,
		Protein:      nutrition.Protein,
		Fat:          nutrition.Fat,
		Carbohydrate: nutrition.Carbohydrate,
		Confidence:   nutrition.Confidence,
		Provider:     provider,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
