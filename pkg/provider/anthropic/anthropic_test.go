package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"mealsnap/pkg/config"
	providertypes "mealsnap/pkg/provider/types"
)

type mapCreds struct {
	mu      sync.Mutex
	secrets map[providertypes.Provider]string
}

func credsWithKey(secret string) *mapCreds {
	return &mapCreds{secrets: map[providertypes.Provider]string{
		providertypes.ProviderAnthropic: secret,
	}}
}

func (m *mapCreds) Save(p providertypes.Provider, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[p] = secret
	return nil
}

func (m *mapCreds) Load(p providertypes.Provider) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secret, ok := m.secrets[p]
	return secret, ok
}

func (m *mapCreds) Delete(p providertypes.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, p)
	return nil
}

func (m *mapCreds) HasKey(p providertypes.Provider) bool {
	_, ok := m.Load(p)
	return ok
}

func testImage(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func messagesReply(text string) string {
	reply := map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}
	encoded, _ := json.Marshal(reply)
	return string(encoded)
}

func newTestClient(serverURL string) *Client {
	return New(config.ProviderConfig{BaseURL: serverURL}, credsWithKey("sk-ant-test-0123456789"))
}

func TestAnalyzeNotConfigured(t *testing.T) {
	client := New(config.ProviderConfig{}, &mapCreds{secrets: map[providertypes.Provider]string{}})

	_, err := client.Analyze(context.Background(), testImage(t))
	if got := providertypes.KindOf(err); got != providertypes.KindNotConfigured {
		t.Fatalf("kind = %q, want %q", got, providertypes.KindNotConfigured)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	var captured messageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test-0123456789" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("anthropic-version = %q, want %q", got, apiVersion)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, messagesReply(`{"name": "Ramen", "energy": 550, "confidence": 0.9}`))
	}))
	defer server.Close()

	analysis, err := newTestClient(server.URL).Analyze(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	if analysis.Name != "Ramen" {
		t.Fatalf("name = %q, want Ramen", analysis.Name)
	}
	if analysis.Provider != providertypes.ProviderAnthropic {
		t.Fatalf("provider = %q", analysis.Provider)
	}
	if analysis.RequestID == "" {
		t.Fatal("expected request id")
	}

	if len(captured.Messages) != 1 || len(captured.Messages[0].Content) != 2 {
		t.Fatalf("unexpected request shape: %+v", captured)
	}
	imageBlock := captured.Messages[0].Content[0]
	if imageBlock.Type != "image" || imageBlock.Source == nil || imageBlock.Source.Data == "" {
		t.Fatalf("expected base64 image block, got %+v", imageBlock)
	}
}

func TestAnalyzeStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   providertypes.ErrorKind
	}{
		{http.StatusUnauthorized, providertypes.KindInvalidAPIKey},
		{http.StatusTooManyRequests, providertypes.KindDailyLimitExceeded},
		{http.StatusInternalServerError, providertypes.KindNetworkError},
		{http.StatusServiceUnavailable, providertypes.KindNetworkError},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Analyze(context.Background(), testImage(t))
			if got := providertypes.KindOf(err); got != tc.want {
				t.Fatalf("kind = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAnalyzeEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": []}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), testImage(t))
	if got := providertypes.KindOf(err); got != providertypes.KindUnknown {
		t.Fatalf("kind = %q, want %q", got, providertypes.KindUnknown)
	}
}

func TestAnalyzeTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), testImage(t))
	if got := providertypes.KindOf(err); got != providertypes.KindNetworkError {
		t.Fatalf("kind = %q, want %q", got, providertypes.KindNetworkError)
	}
}

func TestConnectionOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer server.Close()

	ok, err := newTestClient(server.URL).TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection error: %v", err)
	}
	if !ok {
		t.Fatal("expected connectivity success")
	}

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer rejecting.Close()

	ok, err = newTestClient(rejecting.URL).TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection error: %v", err)
	}
	if ok {
		t.Fatal("expected connectivity rejection")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()

	if _, err := newTestClient(down.URL).TestConnection(context.Background()); err == nil {
		t.Fatal("expected transport error for unreachable server")
	}
}
