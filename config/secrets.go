package config

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

// APIKeyManager stores third-party API keys encrypted at rest. The
// symmetric key lives next to the secrets file and is generated on first
// use; keys are sealed individually with nacl/secretbox.
type APIKeyManager struct {
	keyPath     string
	secretsPath string
	key         [32]byte
	mu          sync.Mutex
}

// NewAPIKeyManager loads or creates the encryption key under dataDir.
func NewAPIKeyManager(dataDir string) (*APIKeyManager, error) {
	m := &APIKeyManager{
		keyPath:     filepath.Join(dataDir, ".key"),
		secretsPath: filepath.Join(dataDir, ".secrets"),
	}

	raw, err := os.ReadFile(m.keyPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		if _, err := rand.Read(m.key[:]); err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		if err := os.WriteFile(m.keyPath, m.key[:], 0o600); err != nil {
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
		return m, nil
	}

	if len(raw) != 32 {
		return nil, fmt.Errorf("key file %s is corrupt", m.keyPath)
	}
	copy(m.key[:], raw)
	return m, nil
}

// SaveAPIKey encrypts and stores an API key for a named service.
func (m *APIKeyManager) SaveAPIKey(service, apiKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	secrets, err := m.loadSecrets()
	if err != nil {
		return err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(apiKey), &nonce, &m.key)
	secrets[service] = sealed

	return m.saveSecrets(secrets)
}

// GetAPIKey returns the decrypted API key for a service, or "" if none is
// stored.
func (m *APIKeyManager) GetAPIKey(service string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	secrets, err := m.loadSecrets()
	if err != nil {
		return "", err
	}

	sealed, ok := secrets[service]
	if !ok || len(sealed) < 24 {
		return "", nil
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &m.key)
	if !ok {
		return "", fmt.Errorf("failed to decrypt API key for %s", service)
	}
	return string(plain), nil
}

// DeleteAPIKey removes a stored key.
func (m *APIKeyManager) DeleteAPIKey(service string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	secrets, err := m.loadSecrets()
	if err != nil {
		return err
	}
	delete(secrets, service)
	return m.saveSecrets(secrets)
}

func (m *APIKeyManager) loadSecrets() (map[string][]byte, error) {
	raw, err := os.ReadFile(m.secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	secrets := map[string][]byte{}
	if err := json.Unmarshal(raw, &secrets); err != nil {
		return nil, fmt.Errorf("secrets file is corrupt: %w", err)
	}
	return secrets, nil
}

func (m *APIKeyManager) saveSecrets(secrets map[string][]byte) error {
	raw, err := json.Marshal(secrets)
	if err != nil {
		return err
	}
	return os.WriteFile(m.secretsPath, raw, 0o600)
}
