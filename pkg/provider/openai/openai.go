package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/shopspring/decimal"

	"mealsnap/pkg/config"
	"mealsnap/pkg/credentials"
	"mealsnap/pkg/imageprep"
	"mealsnap/pkg/provider/parse"
	"mealsnap/pkg/provider/result"
	providertypes "mealsnap/pkg/provider/types"
)

// Client analyzes meal photos through the OpenAI chat completions API.
type Client struct {
	cfg   config.ProviderConfig
	creds credentials.Store
	desc  providertypes.Descriptor
}

func New(cfg config.ProviderConfig, creds credentials.Store) *Client {
	desc, _ := providertypes.DescriptorFor(providertypes.ProviderOpenAI)
	return &Client{cfg: cfg, creds: creds, desc: desc}
}

func (c *Client) Descriptor() providertypes.Descriptor {
	return c.desc
}

func (c *Client) IsConfigured() bool {
	return c.creds.HasKey(providertypes.ProviderOpenAI)
}

func (c *Client) EstimateCost(imageSize int) decimal.Decimal {
	return c.desc.CostPerRequest
}

func (c *Client) Analyze(ctx context.Context, image []byte) (providertypes.AnalysisResult, error) {
	log := providerLogger().With("operation", "analyze")
	startedAt := time.Now()

	apiKey, ok := c.creds.Load(providertypes.ProviderOpenAI)
	if !ok {
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindNotConfigured, c.desc.ID, "no API key stored")
	}

	prepared, err := imageprep.Prepare(image)
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "prepare image: %v", err)
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(prepared)

	ctx, cancel := context.WithTimeout(ctx, providertypes.AnalyzeTimeout)
	defer cancel()

	log.Debug("provider request started", "model", c.desc.Model, "image_bytes", len(prepared))

	client := c.sdk(apiKey)
	response, err := client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Model: osdk.ChatModel(c.desc.Model),
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.UserMessage([]osdk.ChatCompletionContentPartUnionParam{
				osdk.TextContentPart(parse.AnalysisPrompt),
				osdk.ImageContentPart(osdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.AnalysisResult{}, classifyError(c.desc.ID, err)
	}

	if len(response.Choices) == 0 {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no choices")
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindUnknown, c.desc.ID, "response contained no choices")
	}

	content := response.Choices[0].Message.Content
	analysis, err := result.FromText(c.desc.ID, content)
	if err != nil {
		log.Debug("provider response unparseable", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.AnalysisResult{}, err
	}
	log.Debug("provider request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"request_id", analysis.RequestID,
	)

	return analysis, nil
}

func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	log := providerLogger().With("operation", "test_connection")

	apiKey, ok := c.creds.Load(providertypes.ProviderOpenAI)
	if !ok {
		return false, providertypes.NewError(
			providertypes.KindNotConfigured, c.desc.ID, "no API key stored")
	}

	ctx, cancel := context.WithTimeout(ctx, providertypes.TestTimeout)
	defer cancel()

	client := c.sdk(apiKey)
	if _, err := client.Models.List(ctx); err != nil {
		var apiErr *osdk.Error
		if errors.As(err, &apiErr) {
			log.Debug("connectivity test rejected", "status", apiErr.StatusCode)
			return false, nil
		}
		log.Debug("connectivity test failed", "error", err)
		return false, providertypes.Errorf(
			providertypes.KindNetworkError, c.desc.ID, "connectivity test: %v", err)
	}

	return true, nil
}

func (c *Client) sdk(apiKey string) osdk.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(c.cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return osdk.NewClient(opts...)
}

func classifyError(provider providertypes.Provider, err error) error {
	var apiErr *osdk.Error
	if errors.As(err, &apiErr) {
		return providertypes.NewError(
			providertypes.KindFromStatus(apiErr.StatusCode), provider,
			fmt.Sprintf("status %d", apiErr.StatusCode))
	}

	return providertypes.Errorf(providertypes.KindNetworkError, provider, "request failed: %v", err)
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}
