package describer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ibeckermayer/camposter/internal/auth"
	"github.com/ibeckermayer/camposter/internal/config"
	"github.com/ibeckermayer/camposter/internal/describer/providers"
)

const jpegMimeType = "image/jpeg"

// Provider defines the interface for vision model providers
type Provider interface {
	Describe(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Describer produces captions for local images
type Describer struct {
	inference   config.InferenceConfig
	credentials config.CredentialsConfig
	secrets     auth.Provider
	timeout     time.Duration
}

// New creates a describer. The API key is resolved on each Describe call.
func New(cfg *config.Config, secrets auth.Provider) (*Describer, error) {
	switch cfg.Inference.Provider {
	case config.ProviderOpenAI, config.ProviderAnthropic:
	default:
		return nil, fmt.Errorf("unknown inference provider: %s", cfg.Inference.Provider)
	}

	return &Describer{
		inference:   cfg.Inference,
		credentials: cfg.Credentials,
		secrets:     secrets,
		timeout:     time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
	}, nil
}

// Describe reads the image at imagePath and returns the model's caption
func (d *Describer) Describe(ctx context.Context, imagePath string) (string, error) {
	apiKey, err := auth.InferenceKey(d.secrets, d.credentials)
	if err != nil {
		return "", err
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	return d.provider(apiKey).Describe(ctx, image, jpegMimeType)
}

func (d *Describer) provider(apiKey string) Provider {
	if d.inference.Provider == config.ProviderAnthropic {
		return providers.NewAnthropicProvider(apiKey, d.inference, d.timeout)
	}
	return providers.NewOpenAIProvider(apiKey, d.inference, d.timeout)
}
