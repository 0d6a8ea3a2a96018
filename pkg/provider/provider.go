package provider

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"mealsnap/pkg/config"
	"mealsnap/pkg/credentials"
	"mealsnap/pkg/provider/anthropic"
	"mealsnap/pkg/provider/gemini"
	provideropenai "mealsnap/pkg/provider/openai"
	providertypes "mealsnap/pkg/provider/types"
)

// Client is the per-vendor analysis contract.
//
// The implementer set is closed: one client per supported provider,
// registered in the Registry below. Each client owns its vendor's request
// shape, authentication scheme, and response envelope.
type Client interface {
	Descriptor() providertypes.Descriptor
	IsConfigured() bool
	Analyze(ctx context.Context, image []byte) (providertypes.AnalysisResult, error)
	TestConnection(ctx context.Context) (bool, error)
	EstimateCost(imageSize int) decimal.Decimal
}

// Registry looks up vendor clients by provider identity.
type Registry map[providertypes.Provider]Client

// NewRegistry constructs one client per supported provider.
func NewRegistry(cfg *config.Config, creds credentials.Store) Registry {
	slog.Default().With("component", "provider.registry").Debug("Building provider clients",
		"providers", len(providertypes.All()),
	)

	return Registry{
		providertypes.ProviderOpenAI:    provideropenai.New(cfg.Providers.OpenAI, creds),
		providertypes.ProviderAnthropic: anthropic.New(cfg.Providers.Anthropic, creds),
		providertypes.ProviderGemini:    gemini.New(cfg.Providers.Gemini, creds),
	}
}

// Lookup returns the client for a provider identity.
func (r Registry) Lookup(provider providertypes.Provider) (Client, bool) {
	client, ok := r[provider]
	return client, ok
}
