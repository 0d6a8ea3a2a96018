package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mealsnap/pkg/config"
	"mealsnap/pkg/credentials"
	"mealsnap/pkg/imageprep"
	"mealsnap/pkg/provider/parse"
	"mealsnap/pkg/provider/result"
	providertypes "mealsnap/pkg/provider/types"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	maxTokens      = 1024
)

// Client analyzes meal photos through the Anthropic messages API.
//
// Authentication is the x-api-key header; the JSON payload the model was
// asked for arrives inside content[].text.
type Client struct {
	cfg        config.ProviderConfig
	creds      credentials.Store
	desc       providertypes.Descriptor
	httpClient *http.Client
}

func New(cfg config.ProviderConfig, creds credentials.Store) *Client {
	desc, _ := providertypes.DescriptorFor(providertypes.ProviderAnthropic)
	return &Client{
		cfg:        cfg,
		creds:      creds,
		desc:       desc,
		httpClient: &http.Client{},
	}
}

func (c *Client) Descriptor() providertypes.Descriptor {
	return c.desc
}

func (c *Client) IsConfigured() bool {
	return c.creds.HasKey(providertypes.ProviderAnthropic)
}

func (c *Client) EstimateCost(imageSize int) decimal.Decimal {
	return c.desc.CostPerRequest
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) Analyze(ctx context.Context, image []byte) (providertypes.AnalysisResult, error) {
	log := providerLogger().With("operation", "analyze")
	startedAt := time.Now()

	apiKey, ok := c.creds.Load(providertypes.ProviderAnthropic)
	if !ok {
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindNotConfigured, c.desc.ID, "no API key stored")
	}

	prepared, err := imageprep.Prepare(image)
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "prepare image: %v", err)
	}

	payload := messageRequest{
		Model:     c.desc.Model,
		MaxTokens: maxTokens,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: "image/jpeg",
						Data:      base64.StdEncoding.EncodeToString(prepared),
					},
				},
				{Type: "text", Text: parse.AnalysisPrompt},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "marshal request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, providertypes.AnalyzeTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "build request: %v", err)
	}
	request.Header.Set("x-api-key", apiKey)
	request.Header.Set("anthropic-version", apiVersion)
	request.Header.Set("Content-Type", "application/json")

	log.Debug("provider request started", "model", c.desc.Model, "image_bytes", len(prepared))

	response, err := c.httpClient.Do(request)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindNetworkError, c.desc.ID, "request failed: %v", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindNetworkError, c.desc.ID, "read response: %v", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		log.Debug("provider request rejected", "duration_ms", time.Since(startedAt).Milliseconds(), "status", response.StatusCode)
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindFromStatus(response.StatusCode), c.desc.ID,
			fmt.Sprintf("status %d", response.StatusCode))
	}

	var decoded messageResponse
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "parse envelope: %v", err)
	}

	text := ""
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindUnknown, c.desc.ID, "response contained no text block")
	}

	analysis, err := result.FromText(c.desc.ID, text)
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

	apiKey, ok := c.creds.Load(providertypes.ProviderAnthropic)
	if !ok {
		return false, providertypes.NewError(
			providertypes.KindNotConfigured, c.desc.ID, "no API key stored")
	}

	ctx, cancel := context.WithTimeout(ctx, providertypes.TestTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/v1/models", nil)
	if err != nil {
		return false, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "build request: %v", err)
	}
	request.Header.Set("x-api-key", apiKey)
	request.Header.Set("anthropic-version", apiVersion)

	response, err := c.httpClient.Do(request)
	if err != nil {
		log.Debug("connectivity test failed", "error", err)
		return false, providertypes.Errorf(
			providertypes.KindNetworkError, c.desc.ID, "connectivity test: %v", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		log.Debug("connectivity test rejected", "status", response.StatusCode)
		return false, nil
	}

	return true, nil
}

func (c *Client) baseURL() string {
	if baseURL := strings.TrimSpace(c.cfg.BaseURL); baseURL != "" {
		return strings.TrimRight(baseURL, "/")
	}
	return defaultBaseURL
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.anthropic")
}
