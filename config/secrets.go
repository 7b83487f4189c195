package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	ErrSecretsFileNotFound = errors.New("secrets file not found")
	ErrSecretNotFound      = errors.New("secret not found")
)

// Secret yields the API credential. Implementations are consulted on every
// request so a rotated key is picked up without a restart.
type Secret interface {
	APIKey() (string, error)
}

// EnvSecret reads the credential from an environment variable
type EnvSecret struct {
	Name string
}

func (s EnvSecret) APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(s.Name))
	if key == "" {
		return "", fmt.Errorf("%w: %s is not set in the environment", ErrSecretNotFound, s.Name)
	}
	return key, nil
}

// SecretsFile reads the credential from a flat TOML secrets file, e.g.
//
//	OPENROUTER_API_KEY = "sk-or-..."
type SecretsFile struct {
	Path string
	Key  string
}

func (s SecretsFile) APIKey() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSecretsFileNotFound, s.Path)
		}
		return "", fmt.Errorf("fail to read secrets file %s: %w", s.Path, err)
	}

	var secrets map[string]any
	if err := toml.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("fail to parse secrets file %s: %w", s.Path, err)
	}

	value, ok := secrets[s.Key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s is not in %s", ErrSecretNotFound, s.Key, s.Path)
	}
	return strings.TrimSpace(value), nil
}

// SecretChain returns the first credential found
type SecretChain []Secret

func (c SecretChain) APIKey() (string, error) {
	if len(c) == 0 {
		return "", fmt.Errorf("%w: no secret sources configured", ErrSecretNotFound)
	}
	var errs []error
	for _, source := range c {
		key, err := source.APIKey()
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	return "", errors.Join(errs...)
}
