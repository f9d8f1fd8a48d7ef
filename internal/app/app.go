package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/camposter/internal/auth"
	"github.com/ibeckermayer/camposter/internal/camera"
	"github.com/ibeckermayer/camposter/internal/config"
	"github.com/ibeckermayer/camposter/internal/describer"
	"github.com/ibeckermayer/camposter/internal/publisher"
	"github.com/ibeckermayer/camposter/internal/types"
)

// Placeholder descriptions posted when an early step fails and the
// pipeline is configured to keep going.
const (
	AcquirePlaceholder  = "Camera snapshot unavailable: the image could not be downloaded."
	DescribePlaceholder = "Camera snapshot posted without a description: the image could not be described."
)

// Fetcher downloads the camera image
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL, destPath string) (*types.Snapshot, error)
}

// Describer captions a local image
type Describer interface {
	Describe(ctx context.Context, imagePath string) (string, error)
}

// Publisher posts a caption and image
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, imagePath, text string) (*types.PostResult, error)
}

// App holds the application state.
type App struct {
	mu         sync.RWMutex
	secrets    auth.Provider // immutable after creation
	configPath string

	// Mutable fields - use getSnapshot() for concurrent access.
	config    *config.Config
	fetcher   Fetcher
	describer Describer
	publisher Publisher
}

// snapshot holds fields that may be replaced by ReloadConfig.
type snapshot struct {
	config    *config.Config
	fetcher   Fetcher
	describer Describer
	publisher Publisher
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:    a.config,
		fetcher:   a.fetcher,
		describer: a.describer,
		publisher: a.publisher,
	}
}

// New creates an App wired to the real camera, inference and posting services.
// configPath is used by ReloadConfig.
func New(cfg *config.Config, configPath string, secrets auth.Provider) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fetcher, desc, pub, err := build(cfg, secrets)
	if err != nil {
		return nil, err
	}
	a := NewWithComponents(cfg, fetcher, desc, pub)
	a.secrets = secrets
	a.configPath = configPath
	return a, nil
}

// NewWithComponents creates an App from explicit collaborators.
func NewWithComponents(cfg *config.Config, fetcher Fetcher, desc Describer, pub Publisher) *App {
	return &App{
		config:    cfg,
		fetcher:   fetcher,
		describer: desc,
		publisher: pub,
	}
}

func build(cfg *config.Config, secrets auth.Provider) (*camera.Fetcher, *describer.Describer, *publisher.Publisher, error) {
	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second

	desc, err := describer.New(cfg, secrets)
	if err != nil {
		return nil, nil, nil, err
	}

	pub, err := publisher.NewFromConfig(cfg, secrets)
	if err != nil {
		return nil, nil, nil, err
	}

	return camera.New(timeout), desc, pub, nil
}

// PostJob performs the full fetch -> describe -> publish flow once.
//
// With halt_on_failure off, a failed fetch or description is logged and
// replaced by a placeholder caption, and publication still runs against
// whatever image is on disk. Publication errors are always returned.
func (a *App) PostJob(ctx context.Context) (*types.RunReport, error) {
	s := a.getSnapshot()
	cfg := s.config

	runID := uuid.NewString()
	logger := log.New(log.Writer(), fmt.Sprintf("[postjob %s] ", runID[:8]), log.Flags()|log.Lmsgprefix)

	report := &types.RunReport{
		RunID:     runID,
		StartedAt: time.Now(),
	}
	defer func() { report.FinishedAt = time.Now() }()

	imagePath := cfg.SnapshotPath()

	// Step 1: Fetch the camera snapshot
	logger.Printf("Fetching snapshot from %s", cfg.Source.URL)
	snap, err := s.fetcher.Fetch(ctx, cfg.Source.URL, imagePath)
	if err != nil {
		logger.Printf("Snapshot fetch failed: %v", err)
		if cfg.Pipeline.HaltOnFailure {
			return report, fmt.Errorf("failed to fetch snapshot: %w", err)
		}
		report.Description = AcquirePlaceholder
		report.Placeholder = true
		report.DegradedAt = types.StepAcquire
	} else {
		report.Snapshot = snap
		logger.Printf("Saved %d bytes to %s", snap.Bytes, snap.Path)
	}

	// Step 2: Describe it
	if !report.Placeholder {
		logger.Println("Requesting description...")
		description, err := s.describer.Describe(ctx, imagePath)
		if err != nil {
			logger.Printf("Description failed: %v", err)
			if cfg.Pipeline.HaltOnFailure {
				return report, fmt.Errorf("failed to describe snapshot: %w", err)
			}
			description = DescribePlaceholder
			report.Placeholder = true
			report.DegradedAt = types.StepDescribe
		}
		report.Description = description
	}

	// Step 3: Enforce the length cap
	report.Description = describer.Truncate(report.Description, cfg.Post.CharCap)
	logger.Printf("Description: %q", report.Description)

	// Step 4: Publish
	if report.Placeholder {
		logger.Printf("Publishing placeholder after %s failure", report.DegradedAt)
	}
	result, err := s.publisher.Publish(ctx, imagePath, report.Description)
	if err != nil {
		logger.Printf("Publish failed: %v", err)
		return report, fmt.Errorf("failed to publish: %w", err)
	}
	report.Result = result

	logger.Printf("Posted %s", result.URI)
	return report, nil
}

// Platform returns the name of the posting service in use.
func (a *App) Platform() string {
	return a.getSnapshot().publisher.Platform()
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// ReloadConfig reloads the configuration from disk.
func (a *App) ReloadConfig() error {
	if a.configPath == "" {
		return fmt.Errorf("no config path to reload from")
	}

	cfg, err := config.LoadFrom(a.configPath)
	if err != nil {
		return err
	}

	fetcher, desc, pub, err := build(cfg, a.secrets)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.config = cfg
	a.fetcher = fetcher
	a.describer = desc
	a.publisher = pub
	a.mu.Unlock()

	log.Println("Configuration reloaded")
	return nil
}
