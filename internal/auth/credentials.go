// Package auth resolves the secrets the pipeline needs at the point of use.
package auth

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/ibeckermayer/camposter/internal/config"
)

// ErrMissing is returned when a required secret is not set.
var ErrMissing = errors.New("missing credential")

// Provider looks up a named secret
type Provider interface {
	Get(name string) (string, error)
}

// EnvProvider reads secrets from the process environment
type EnvProvider struct{}

// NewEnvProvider creates an EnvProvider, first loading envFile if it exists.
// Variables already present in the environment are not overridden.
func NewEnvProvider(envFile string) (*EnvProvider, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		} else {
			log.Printf("[auth] Loaded environment from %s", envFile)
		}
	}
	return &EnvProvider{}, nil
}

// Get returns the value of the environment variable name
func (p *EnvProvider) Get(name string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrMissing, name)
	}
	return value, nil
}

// StaticProvider serves secrets from a fixed map
type StaticProvider map[string]string

// Get returns the value stored under name
func (p StaticProvider) Get(name string) (string, error) {
	value := p[name]
	if value == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrMissing, name)
	}
	return value, nil
}

// InferenceKey returns the API key for the description provider
func InferenceKey(p Provider, cfg config.CredentialsConfig) (string, error) {
	return p.Get(cfg.InferenceKeyEnv)
}

// PostingAccount returns the posting service identifier and secret.
// Both must be present.
func PostingAccount(p Provider, cfg config.CredentialsConfig) (identifier, secret string, err error) {
	identifier, err = p.Get(cfg.IdentifierEnv)
	if err != nil {
		return "", "", err
	}
	secret, err = p.Get(cfg.SecretEnv)
	if err != nil {
		return "", "", err
	}
	return identifier, secret, nil
}
