// Package credentials persists provider API keys. The engine only consumes
// the Store interface; FileStore is the default adapter backing it with a
// mode-0600 JSON file.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mealsnap/pkg/provider/types"
)

// Store persists one secret per provider identity.
type Store interface {
	Save(provider types.Provider, secret string) error
	Load(provider types.Provider) (string, bool)
	Delete(provider types.Provider) error
	HasKey(provider types.Provider) bool
}

// ValidateFormat applies vendor-specific key-shape heuristics.
//
// This only rejects obviously wrong keys; a well-shaped key can still fail
// the connectivity test.
func ValidateFormat(secret string, provider types.Provider) bool {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false
	}

	switch provider {
	case types.ProviderOpenAI:
		return strings.HasPrefix(secret, "sk-") && !strings.HasPrefix(secret, "sk-ant-") && len(secret) >= 20
	case types.ProviderAnthropic:
		return strings.HasPrefix(secret, "sk-ant-") && len(secret) >= 20
	case types.ProviderGemini:
		return strings.HasPrefix(secret, "AIza") && len(secret) >= 30
	}

	return false
}

// FileStore keeps secrets in a JSON file keyed by provider identity.
type FileStore struct {
	path string

	mu sync.Mutex
}

// NewFileStore creates a file-backed store at the provided path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("credentials path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}

	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(provider types.Provider, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return errors.New("secret is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.read()
	if err != nil {
		return err
	}

	secrets[provider] = secret
	return s.write(secrets)
}

func (s *FileStore) Load(provider types.Provider) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.read()
	if err != nil {
		return "", false
	}

	secret, ok := secrets[provider]
	if !ok || strings.TrimSpace(secret) == "" {
		return "", false
	}

	return secret, true
}

func (s *FileStore) Delete(provider types.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.read()
	if err != nil {
		return err
	}

	if _, ok := secrets[provider]; !ok {
		return nil
	}

	delete(secrets, provider)
	return s.write(secrets)
}

func (s *FileStore) HasKey(provider types.Provider) bool {
	_, ok := s.Load(provider)
	return ok
}

func (s *FileStore) read() (map[types.Provider]string, error) {
	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[types.Provider]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	secrets := map[types.Provider]string{}
	if len(content) == 0 {
		return secrets, nil
	}
	if err := json.Unmarshal(content, &secrets); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}

	return secrets, nil
}

func (s *FileStore) write(secrets map[types.Provider]string) error {
	content, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if err := os.WriteFile(s.path, content, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}

	return nil
}
