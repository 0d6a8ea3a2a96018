package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies one supported analysis vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// All lists every supported provider in display order.
func All() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// Valid reports whether p names a supported provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

// Request timeouts enforced by every provider client.
const (
	AnalyzeTimeout = 45 * time.Second
	TestTimeout    = 15 * time.Second
)

// Descriptor is static, compile-time metadata for one provider.
type Descriptor struct {
	ID             Provider
	DisplayName    string
	Model          string
	CostPerRequest decimal.Decimal
	MaxImageBytes  int
	Capabilities   []string
}

var descriptors = map[Provider]Descriptor{
	ProviderOpenAI: {
		ID:             ProviderOpenAI,
		DisplayName:    "OpenAI",
		Model:          "gpt-4o",
		CostPerRequest: decimal.RequireFromString("0.002"),
		MaxImageBytes:  20 << 20,
		Capabilities:   []string{"vision", "json"},
	},
	ProviderAnthropic: {
		ID:             ProviderAnthropic,
		DisplayName:    "Anthropic",
		Model:          "claude-sonnet-4-20250514",
		CostPerRequest: decimal.RequireFromString("0.003"),
		MaxImageBytes:  5 << 20,
		Capabilities:   []string{"vision", "json"},
	},
	ProviderGemini: {
		ID:             ProviderGemini,
		DisplayName:    "Gemini",
		Model:          "gemini-2.0-flash",
		CostPerRequest: decimal.RequireFromString("0.001"),
		MaxImageBytes:  15 << 20,
		Capabilities:   []string{"vision", "json"},
	},
}

// DescriptorFor returns the static descriptor for a provider.
func DescriptorFor(p Provider) (Descriptor, bool) {
	d, ok := descriptors[p]
	return d, ok
}

// AnalysisResult is the normalized output of one successful analysis.
//
// Immutable once constructed; the engine's only success artifact.
type AnalysisResult struct {
	RequestID    string          `json:"request_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Energy       decimal.Decimal `json:"energy"`
	Protein      decimal.Decimal `json:"protein"`
	Fat          decimal.Decimal `json:"fat"`
	Carbohydrate decimal.Decimal `json:"carbohydrate"`
	Confidence   float64         `json:"confidence"`
	Provider     Provider        `json:"provider"`
	CreatedAt    time.Time       `json:"created_at"`
}
