package publisher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ibeckermayer/camposter/internal/auth"
	"github.com/ibeckermayer/camposter/internal/config"
	"github.com/ibeckermayer/camposter/internal/publisher/providers"
	"github.com/ibeckermayer/camposter/internal/types"
)

const jpegMimeType = "image/jpeg"

// Poster defines the interface for social posting services
type Poster interface {
	Platform() string
	Post(ctx context.Context, account providers.Account, post types.Post) (*types.PostResult, error)
}

// Publisher turns a local image and caption into a post
type Publisher struct {
	poster      Poster
	post        config.PostConfig
	credentials config.CredentialsConfig
	secrets     auth.Provider
	now         func() time.Time
}

// New creates a publisher with the given poster
func New(poster Poster, cfg *config.Config, secrets auth.Provider) *Publisher {
	return &Publisher{
		poster:      poster,
		post:        cfg.Post,
		credentials: cfg.Credentials,
		secrets:     secrets,
		now:         time.Now,
	}
}

// NewFromConfig creates a publisher based on configuration
func NewFromConfig(cfg *config.Config, secrets auth.Provider) (*Publisher, error) {
	var poster Poster

	switch cfg.Post.Provider {
	case config.ProviderBluesky:
		poster = providers.NewBlueskyPoster(cfg.Post.Host, time.Duration(cfg.HTTP.TimeoutSeconds)*time.Second)
	default:
		return nil, fmt.Errorf("unknown post provider: %s", cfg.Post.Provider)
	}

	return New(poster, cfg, secrets), nil
}

// Platform returns the name of the posting service
func (p *Publisher) Platform() string {
	return p.poster.Platform()
}

// Publish posts text with the image at imagePath embedded
func (p *Publisher) Publish(ctx context.Context, imagePath, text string) (*types.PostResult, error) {
	identifier, secret, err := auth.PostingAccount(p.secrets, p.credentials)
	if err != nil {
		return nil, err
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	account := providers.Account{Identifier: identifier, Secret: secret}
	return p.poster.Post(ctx, account, p.Compose(text, image))
}

// Compose builds the post. The aspect ratio comes from config and is never
// measured from the image.
func (p *Publisher) Compose(text string, image []byte) types.Post {
	return types.Post{
		Text: text,
		Images: []types.Image{{
			Alt:      text,
			MimeType: jpegMimeType,
			Data:     image,
			AspectRatio: types.AspectRatio{
				Width:  p.post.AspectWidth,
				Height: p.post.AspectHeight,
			},
		}},
		Languages: p.post.Languages,
		CreatedAt: p.now(),
	}
}
