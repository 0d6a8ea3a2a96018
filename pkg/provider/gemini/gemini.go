package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
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

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client analyzes meal photos through the Gemini generateContent API.
//
// Authentication is a query-string key; the JSON payload the model was asked
// for arrives inside candidates[].content.parts[].text.
type Client struct {
	cfg        config.ProviderConfig
	creds      credentials.Store
	desc       providertypes.Descriptor
	httpClient *http.Client
}

func New(cfg config.ProviderConfig, creds credentials.Store) *Client {
	desc, _ := providertypes.DescriptorFor(providertypes.ProviderGemini)
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
	return c.creds.HasKey(providertypes.ProviderGemini)
}

func (c *Client) EstimateCost(imageSize int) decimal.Decimal {
	return c.desc.CostPerRequest
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) Analyze(ctx context.Context, image []byte) (providertypes.AnalysisResult, error) {
	log := providerLogger().With("operation", "analyze")
	startedAt := time.Now()

	apiKey, ok := c.creds.Load(providertypes.ProviderGemini)
	if !ok {
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindNotConfigured, c.desc.ID, "no API key stored")
	}

	prepared, err := imageprep.Prepare(image)
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "prepare image: %v", err)
	}

	payload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: parse.AnalysisPrompt},
				{InlineData: &inlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(prepared),
				}},
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

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL(), c.desc.Model, url.QueryEscape(apiKey))

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "build request: %v", err)
	}
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

	var decoded generateResponse
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "parse envelope: %v", err)
	}

	text := ""
	if len(decoded.Candidates) > 0 {
		for _, candidatePart := range decoded.Candidates[0].Content.Parts {
			if strings.TrimSpace(candidatePart.Text) != "" {
				text = candidatePart.Text
				break
			}
		}
	}
	if strings.TrimSpace(text) == "" {
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindUnknown, c.desc.ID, "response contained no candidate text")
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

	apiKey, ok := c.creds.Load(providertypes.ProviderGemini)
	if !ok {
		return false, providertypes.NewError(
			providertypes.KindNotConfigured, c.desc.ID, "no API key stored")
	}

	ctx, cancel := context.WithTimeout(ctx, providertypes.TestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1beta/models?key=%s", c.baseURL(), url.QueryEscape(apiKey))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, providertypes.Errorf(
			providertypes.KindUnknown, c.desc.ID, "build request: %v", err)
	}

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
	return slog.Default().With("component", "provider.gemini")
}
