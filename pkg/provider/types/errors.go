package types

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable category for analysis failures.
type ErrorKind string

const (
	KindNotConfigured        ErrorKind = "not_configured"
	KindInvalidAPIKey        ErrorKind = "invalid_api_key"
	KindDailyLimitExceeded   ErrorKind = "daily_limit_exceeded"
	KindProviderNotAvailable ErrorKind = "provider_not_available"
	KindNetworkError         ErrorKind = "network_error"
	KindUnknown              ErrorKind = "unknown"
)

// Retryable reports whether a same-provider retry may succeed.
//
// Only transient kinds qualify; configuration, quota, and availability
// failures require caller action first.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetworkError, KindUnknown:
		return true
	}
	return false
}

// BlocksFallback reports whether the kind must suppress a fallback attempt
// on a different provider.
func (k ErrorKind) BlocksFallback() bool {
	switch k {
	case KindNotConfigured, KindInvalidAPIKey, KindDailyLimitExceeded, KindProviderNotAvailable:
		return true
	}
	return false
}

// Error is a categorized analysis failure carrying the provider it came from.
type Error struct {
	Kind     ErrorKind
	Provider Provider
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NewError creates a categorized analysis error.
func NewError(kind ErrorKind, provider Provider, detail string) error {
	return &Error{Kind: kind, Provider: provider, Detail: detail}
}

// Errorf creates a categorized analysis error with a formatted detail.
func Errorf(kind ErrorKind, provider Provider, format string, args ...any) error {
	return &Error{Kind: kind, Provider: provider, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the stable kind for an error when available.
//
// Errors that were never classified by a provider client count as unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Kind
	}

	return KindUnknown
}

// KindFromStatus maps an HTTP response status to the shared taxonomy.
func KindFromStatus(status int) ErrorKind {
	switch status {
	case 429:
		return KindDailyLimitExceeded
	case 401:
		return KindInvalidAPIKey
	}
	return KindNetworkError
}
