// Package engine sequences budget checks, retry loops, fallback selection,
// and usage recording across the provider clients. It is the only component
// that mutates orchestration state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mealsnap/pkg/config"
	"mealsnap/pkg/credentials"
	"mealsnap/pkg/provider"
	providertypes "mealsnap/pkg/provider/types"
	"mealsnap/pkg/usage"
)

// State is the engine's observable orchestration snapshot.
type State struct {
	CurrentProvider providertypes.Provider
	IsAnalyzing     bool
	LastResult      *providertypes.AnalysisResult
	LastError       string
}

// Engine is the top-level orchestrator over the provider registry.
//
// Overlapping Analyze calls queue behind analyzeMu, so ledger updates never
// race; IsAnalyzing in the published state stays advisory.
type Engine struct {
	registry provider.Registry
	ledger   *usage.Ledger
	creds    credentials.Store
	log      *slog.Logger

	sleep  func(ctx context.Context, delay time.Duration) error
	jitter func() time.Duration

	analyzeMu sync.Mutex

	stateMu sync.Mutex
	state   State
}

// Option customizes engine construction.
type Option func(*Engine)

// WithSleep overrides the backoff pause, for tests.
func WithSleep(sleep func(ctx context.Context, delay time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithJitter overrides the backoff jitter source, for tests.
func WithJitter(jitter func() time.Duration) Option {
	return func(e *Engine) {
		e.jitter = jitter
	}
}

// New creates an engine over a provider registry, usage ledger, and
// credential store.
func New(registry provider.Registry, ledger *usage.Ledger, creds credentials.Store, log *slog.Logger, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if ledger == nil {
		return nil, errors.New("usage ledger is required")
	}
	if creds == nil {
		return nil, errors.New("credential store is required")
	}
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		registry: registry,
		ledger:   ledger,
		creds:    creds,
		log:      log.With("component", "engine"),
		sleep:    sleepContext,
		jitter:   defaultJitter,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Analyze turns a meal photo into a normalized analysis result.
//
// The sequence per provider leg is budget check, then up to MaxRetries
// attempts with exponential backoff; a fallback leg runs only under the
// eligibility rules below. Usage is recorded once per confirmed success and
// never for failed attempts.
func (e *Engine) Analyze(ctx context.Context, image []byte, profile config.Profile) (providertypes.AnalysisResult, error) {
	e.analyzeMu.Lock()
	defer e.analyzeMu.Unlock()

	primary := profile.SelectedProvider
	preferences := profile.Preferences.WithDefaults()

	e.setAnalyzing(primary)
	defer e.clearAnalyzing()

	startedAt := time.Now()
	e.log.Info("Analysis started", "provider", primary, "image_bytes", len(image))

	analysis, err := e.analyze(ctx, image, primary, preferences)
	if err != nil {
		e.publishError(err)
		e.log.Warn("Analysis failed",
			"provider", primary,
			"kind", string(providertypes.KindOf(err)),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
		return providertypes.AnalysisResult{}, err
	}

	e.publishResult(analysis)
	e.log.Info("Analysis completed",
		"provider", analysis.Provider,
		"request_id", analysis.RequestID,
		"confidence", analysis.Confidence,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	return analysis, nil
}

func (e *Engine) analyze(ctx context.Context, image []byte, primary providertypes.Provider, preferences config.Preferences) (providertypes.AnalysisResult, error) {
	client, ok := e.registry.Lookup(primary)
	if !ok {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindProviderNotAvailable, primary, "no client for provider %q", primary)
	}

	allowed, err := e.ledger.CanMakeRequest(primary, preferences.MaxDailyCost)
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, primary, "budget check: %v", err)
	}
	if !allowed {
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindDailyLimitExceeded, primary, "daily budget exhausted")
	}

	analysis, attemptErr := e.attemptLoop(ctx, client, image, preferences)
	if attemptErr == nil {
		if err := e.recordUsage(client, preferences, len(image)); err != nil {
			return providertypes.AnalysisResult{}, err
		}
		return analysis, nil
	}
	if ctx.Err() != nil {
		return providertypes.AnalysisResult{}, attemptErr
	}

	fallback := preferences.FallbackProvider
	if !e.fallbackEligible(primary, preferences, attemptErr) {
		return providertypes.AnalysisResult{}, attemptErr
	}

	fallbackClient, ok := e.registry.Lookup(fallback)
	if !ok {
		return providertypes.AnalysisResult{}, attemptErr
	}

	allowed, err = e.ledger.CanMakeRequest(fallback, preferences.MaxDailyCost)
	if err != nil {
		return providertypes.AnalysisResult{}, providertypes.Errorf(
			providertypes.KindUnknown, fallback, "budget check: %v", err)
	}
	if !allowed {
		return providertypes.AnalysisResult{}, providertypes.NewError(
			providertypes.KindDailyLimitExceeded, fallback,
			"daily budget exhausted for primary and fallback")
	}

	e.log.Info("Falling back", "from", primary, "to", fallback,
		"kind", string(providertypes.KindOf(attemptErr)))
	e.setAnalyzing(fallback)

	analysis, fallbackErr := e.attemptLoop(ctx, fallbackClient, image, preferences)
	if fallbackErr != nil {
		return providertypes.AnalysisResult{}, fallbackErr
	}

	if err := e.recordUsage(fallbackClient, preferences, len(image)); err != nil {
		return providertypes.AnalysisResult{}, err
	}
	return analysis, nil
}

// attemptLoop runs up to MaxRetries calls against one client, backing off
// between retryable failures. Non-retryable kinds stop the loop at once.
// Each attempt runs under the profile's timeout; the vendor clients keep
// their own fixed ceiling on top of it.
func (e *Engine) attemptLoop(ctx context.Context, client provider.Client, image []byte, preferences config.Preferences) (providertypes.AnalysisResult, error) {
	descriptor := client.Descriptor()

	var lastErr error
	for attempt := 1; attempt <= preferences.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, preferences.Timeout())
		analysis, err := client.Analyze(attemptCtx, image)
		cancel()
		if err == nil {
			return analysis, nil
		}

		lastErr = err
		kind := providertypes.KindOf(err)
		e.log.Debug("Attempt failed",
			"provider", descriptor.ID,
			"attempt", attempt,
			"kind", string(kind),
		)

		if !kind.Retryable() || attempt == preferences.MaxRetries {
			break
		}

		delay := backoffDelay(attempt, e.jitter)
		if err := e.sleep(ctx, delay); err != nil {
			return providertypes.AnalysisResult{}, err
		}
	}

	return providertypes.AnalysisResult{}, lastErr
}

// fallbackEligible applies the cross-provider fallback rules: the feature is
// enabled, a distinct fallback is configured, and the terminating error is a
// transient kind.
func (e *Engine) fallbackEligible(primary providertypes.Provider, preferences config.Preferences, err error) bool {
	if !preferences.EnableFallback {
		return false
	}

	fallback := preferences.FallbackProvider
	if !fallback.Valid() || fallback == primary {
		return false
	}

	return !providertypes.KindOf(err).BlocksFallback()
}

func (e *Engine) recordUsage(client provider.Client, preferences config.Preferences, imageSize int) error {
	descriptor := client.Descriptor()
	cost := client.EstimateCost(imageSize)

	if err := e.ledger.RecordUsage(descriptor.ID, cost); err != nil {
		return providertypes.Errorf(
			providertypes.KindUnknown, descriptor.ID, "record usage: %v", err)
	}

	if preferences.LogUsage {
		entry, err := e.ledger.DailyUsage(descriptor.ID)
		if err == nil {
			e.log.Info("Usage recorded",
				"provider", descriptor.ID,
				"cost", cost.String(),
				"daily_requests", entry.RequestCount,
				"daily_cost", entry.TotalCost.String(),
			)
		}
	}

	return nil
}

// TestProvider runs a low-cost connectivity check against one provider.
func (e *Engine) TestProvider(ctx context.Context, p providertypes.Provider) (bool, error) {
	client, ok := e.registry.Lookup(p)
	if !ok {
		return false, providertypes.Errorf(
			providertypes.KindProviderNotAvailable, p, "no client for provider %q", p)
	}

	return client.TestConnection(ctx)
}

// IsProviderConfigured reports whether a provider has a stored credential.
func (e *Engine) IsProviderConfigured(p providertypes.Provider) bool {
	client, ok := e.registry.Lookup(p)
	if !ok {
		return false
	}
	return client.IsConfigured()
}

// ConfigureProvider validates, persists, and connectivity-tests a credential.
//
// The connectivity test runs in the background; a key that fails it stays
// stored, since format-valid keys can be rejected transiently. Callers that
// exit right after configuring should use ConfigureProviderSync instead, or
// the test outcome is lost with the process.
func (e *Engine) ConfigureProvider(ctx context.Context, p providertypes.Provider, secret string) error {
	if err := e.storeCredential(p, secret); err != nil {
		return err
	}

	go func() {
		ok, err := e.TestProvider(context.WithoutCancel(ctx), p)
		switch {
		case err != nil:
			e.log.Warn("Credential connectivity test errored", "provider", p, "error", err)
		case !ok:
			e.log.Warn("Credential connectivity test rejected", "provider", p)
		default:
			e.log.Info("Credential connectivity test passed", "provider", p)
		}
	}()

	return nil
}

// ConfigureProviderSync validates and persists a credential, then runs the
// connectivity test before returning.
//
// A rejected key reports (false, nil) and stays stored; a network-kind error
// means the key was stored but the test could not run. Any other error means
// nothing was stored.
func (e *Engine) ConfigureProviderSync(ctx context.Context, p providertypes.Provider, secret string) (bool, error) {
	if err := e.storeCredential(p, secret); err != nil {
		return false, err
	}
	return e.TestProvider(ctx, p)
}

func (e *Engine) storeCredential(p providertypes.Provider, secret string) error {
	if !p.Valid() {
		return providertypes.Errorf(
			providertypes.KindProviderNotAvailable, p, "unsupported provider %q", p)
	}
	if !credentials.ValidateFormat(secret, p) {
		return providertypes.NewError(
			providertypes.KindInvalidAPIKey, p, "key does not match the provider's expected format")
	}

	if err := e.creds.Save(p, secret); err != nil {
		return fmt.Errorf("store credential for %s: %w", p, err)
	}

	return nil
}

// DailyUsage returns today's ledger entry for a provider.
func (e *Engine) DailyUsage(p providertypes.Provider) (usage.Entry, error) {
	return e.ledger.DailyUsage(p)
}

// CanMakeRequest reports whether one more request on a provider fits under
// the profile's daily cost ceiling.
func (e *Engine) CanMakeRequest(p providertypes.Provider, profile config.Profile) (bool, error) {
	preferences := profile.Preferences.WithDefaults()
	return e.ledger.CanMakeRequest(p, preferences.MaxDailyCost)
}

// Snapshot returns the current observable orchestration state.
func (e *Engine) Snapshot() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setAnalyzing(p providertypes.Provider) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.state.CurrentProvider = p
	e.state.IsAnalyzing = true
}

func (e *Engine) clearAnalyzing() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.state.IsAnalyzing = false
}

func (e *Engine) publishResult(analysis providertypes.AnalysisResult) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.state.LastResult = &analysis
	e.state.LastError = ""
}

func (e *Engine) publishError(err error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.state.LastError = err.Error()
}
