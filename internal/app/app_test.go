package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ibeckermayer/camposter/internal/auth"
	"github.com/ibeckermayer/camposter/internal/config"
	"github.com/ibeckermayer/camposter/internal/types"
)

var testSecrets = auth.StaticProvider{
	"OPENAI_API_KEY":     "sk-test",
	"BLUESKY_IDENTIFIER": "cam.bsky.social",
	"BLUESKY_PASSWORD":   "app-password",
}

// fakeServices plays the camera, the inference API and the PDS.
type fakeServices struct {
	mu sync.Mutex

	cameraStatus int
	cameraBody   string

	inferenceStatus int
	inferenceBody   string
	inferenceCalls  int

	uploaded []byte
	records  []map[string]any
}

func newFakeServices() *fakeServices {
	return &fakeServices{
		cameraStatus:    http.StatusOK,
		cameraBody:      "X",
		inferenceStatus: http.StatusOK,
		inferenceBody:   `{"choices":[{"message":{"content":"A cat on a bridge."}}]}`,
	}
}

func (f *fakeServices) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/camera.jpg", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.WriteHeader(f.cameraStatus)
		w.Write([]byte(f.cameraBody))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.inferenceCalls++
		w.WriteHeader(f.inferenceStatus)
		w.Write([]byte(f.inferenceBody))
	})
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accessJwt":"access-token","did":"did:plc:testcam"}`))
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.uploadBlob", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.uploaded, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"blob":{"$type":"blob","ref":{"$link":"bafkreibme22gw2h7y2h7tg2fhqotaqjucnbc24deqo72b6mkl2egezxhvy"},"mimeType":"image/jpeg","size":1}}`))
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.records = append(f.records, body)
		w.Write([]byte(`{"uri":"at://did:plc:testcam/app.bsky.feed.post/3kabc","cid":"bafyreicid"}`))
	})
	return mux
}

// postedText returns the text and first image alt of the only created record.
func (f *fakeServices) postedText(t *testing.T) (text, alt string, ratio map[string]any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) != 1 {
		t.Fatalf("expected 1 post, got %d", len(f.records))
	}
	record := f.records[0]["record"].(map[string]any)
	image := record["embed"].(map[string]any)["images"].([]any)[0].(map[string]any)
	return record["text"].(string), image["alt"].(string), image["aspectRatio"].(map[string]any)
}

func setup(t *testing.T) (*fakeServices, *config.Config, func()) {
	t.Helper()
	fake := newFakeServices()
	srv := httptest.NewServer(fake.handler())

	cfg := config.Default()
	cfg.Source.URL = srv.URL + "/camera.jpg"
	cfg.Scratch.Dir = filepath.Join(t.TempDir(), "images")
	cfg.Inference.Endpoint = srv.URL + "/v1/chat/completions"
	cfg.Post.Host = srv.URL
	cfg.HTTP.TimeoutSeconds = 5

	return fake, cfg, srv.Close
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, "", testSecrets)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestPostJobEndToEnd(t *testing.T) {
	fake, cfg, done := setup(t)
	defer done()

	report, err := newApp(t, cfg).PostJob(context.Background())
	if err != nil {
		t.Fatalf("PostJob failed: %v", err)
	}

	text, alt, ratio := fake.postedText(t)
	if text != "A cat on a bridge." || alt != "A cat on a bridge." {
		t.Errorf("posted text %q, alt %q", text, alt)
	}
	if ratio["width"] != float64(1000) || ratio["height"] != float64(500) {
		t.Errorf("aspectRatio = %v", ratio)
	}
	if string(fake.uploaded) != "X" {
		t.Errorf("uploaded %q, expected X", fake.uploaded)
	}

	saved, err := os.ReadFile(cfg.SnapshotPath())
	if err != nil || string(saved) != "X" {
		t.Errorf("snapshot on disk = %q, err %v", saved, err)
	}

	if report.Placeholder || report.DegradedAt != "" {
		t.Errorf("unexpected degradation: %+v", report)
	}
	if report.Result == nil || report.Result.URI != "at://did:plc:testcam/app.bsky.feed.post/3kabc" {
		t.Errorf("unexpected result: %+v", report.Result)
	}
	if report.RunID == "" || report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("bad run bookkeeping: %+v", report)
	}
}

func TestPostJobTruncatesLongDescription(t *testing.T) {
	fake, cfg, done := setup(t)
	defer done()

	long := strings.Repeat("a", 400)
	fake.inferenceBody = `{"choices":[{"message":{"content":"` + long + `"}}]}`

	report, err := newApp(t, cfg).PostJob(context.Background())
	if err != nil {
		t.Fatalf("PostJob failed: %v", err)
	}

	expected := strings.Repeat("a", 300) + "..."
	if report.Description != expected {
		t.Errorf("description has %d chars, expected 303", len(report.Description))
	}
	text, _, _ := fake.postedText(t)
	if text != expected {
		t.Error("posted text was not truncated")
	}
}

func TestPostJobCameraFailurePostsPlaceholder(t *testing.T) {
	fake, cfg, done := setup(t)
	defer done()

	fake.cameraStatus = http.StatusNotFound
	fake.cameraBody = "not found"

	// A stale image from an earlier run is still on disk.
	if err := os.MkdirAll(cfg.Scratch.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.SnapshotPath(), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := newApp(t, cfg).PostJob(context.Background())
	if err != nil {
		t.Fatalf("PostJob failed: %v", err)
	}

	if !report.Placeholder || report.DegradedAt != types.StepAcquire {
		t.Errorf("expected acquisition degradation: %+v", report)
	}
	if fake.inferenceCalls != 0 {
		t.Errorf("inference called %d times after failed fetch", fake.inferenceCalls)
	}

	text, alt, _ := fake.postedText(t)
	if text != AcquirePlaceholder || alt != AcquirePlaceholder {
		t.Errorf("posted text %q, alt %q", text, alt)
	}
	if string(fake.uploaded) != "stale" {
		t.Errorf("uploaded %q, expected the stale image", fake.uploaded)
	}
}

func TestPostJobDescribeFailurePostsPlaceholder(t *testing.T) {
	fake, cfg, done := setup(t)
	defer done()

	fake.inferenceStatus = http.StatusTooManyRequests
	fake.inferenceBody = `{"error":{"message":"rate limited","type":"rate_limit_error"}}`

	report, err := newApp(t, cfg).PostJob(context.Background())
	if err != nil {
		t.Fatalf("PostJob failed: %v", err)
	}

	if report.DegradedAt != types.StepDescribe {
		t.Errorf("DegradedAt = %q", report.DegradedAt)
	}
	text, _, _ := fake.postedText(t)
	if text != DescribePlaceholder {
		t.Errorf("posted text %q", text)
	}
	if string(fake.uploaded) != "X" {
		t.Errorf("uploaded %q, expected fresh image", fake.uploaded)
	}
}

func TestPostJobHaltOnFailure(t *testing.T) {
	tests := []struct {
		name string
		fail func(f *fakeServices)
	}{
		{"camera", func(f *fakeServices) { f.cameraStatus = http.StatusNotFound }},
		{"inference", func(f *fakeServices) {
			f.inferenceStatus = http.StatusTooManyRequests
			f.inferenceBody = `{"error":{"message":"rate limited"}}`
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, cfg, done := setup(t)
			defer done()

			tt.fail(fake)
			cfg.Pipeline.HaltOnFailure = true

			if _, err := newApp(t, cfg).PostJob(context.Background()); err == nil {
				t.Error("expected error in halt mode")
			}
			if len(fake.records) != 0 {
				t.Errorf("posted %d records in halt mode", len(fake.records))
			}
		})
	}
}

func TestPostJobMissingPostingCredentials(t *testing.T) {
	fake, cfg, done := setup(t)
	defer done()

	a, err := New(cfg, "", auth.StaticProvider{"OPENAI_API_KEY": "sk-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = a.PostJob(context.Background())
	if !errors.Is(err, auth.ErrMissing) {
		t.Errorf("expected ErrMissing, got %v", err)
	}
	if len(fake.records) != 0 {
		t.Error("posted without credentials")
	}
}

type stubFetcher struct{ err error }

func (s stubFetcher) Fetch(ctx context.Context, sourceURL, destPath string) (*types.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.Snapshot{Path: destPath, SourceURL: sourceURL}, nil
}

type stubDescriber struct{ text string }

func (s stubDescriber) Describe(ctx context.Context, imagePath string) (string, error) {
	return s.text, nil
}

type stubPublisher struct{ err error }

func (s stubPublisher) Platform() string { return "stub" }

func (s stubPublisher) Publish(ctx context.Context, imagePath, text string) (*types.PostResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.PostResult{URI: "at://stub/post/1"}, nil
}

func TestPostJobReturnsPublishError(t *testing.T) {
	publishErr := errors.New("network unreachable")
	a := NewWithComponents(config.Default(), stubFetcher{}, stubDescriber{"caption"}, stubPublisher{publishErr})

	report, err := a.PostJob(context.Background())
	if !errors.Is(err, publishErr) {
		t.Errorf("expected publish error, got %v", err)
	}
	if report.Description != "caption" || report.Result != nil {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := config.Default()
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	a, err := New(cfg, path, testSecrets)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	updated := config.Default()
	updated.Post.CharCap = 120
	updated.Inference.Provider = config.ProviderAnthropic
	if err := updated.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	if err := a.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig failed: %v", err)
	}
	if a.Config().Post.CharCap != 120 || a.Config().Inference.Provider != config.ProviderAnthropic {
		t.Errorf("config not reloaded: %+v", a.Config())
	}

	updated.Inference.Provider = "unknown"
	if err := updated.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}
	if err := a.ReloadConfig(); err == nil {
		t.Error("expected error for unknown provider")
	}
	if a.Config().Post.CharCap != 120 {
		t.Error("failed reload replaced the config")
	}
}

func TestReloadConfigWithoutPath(t *testing.T) {
	a := NewWithComponents(config.Default(), stubFetcher{}, stubDescriber{}, stubPublisher{})
	if err := a.ReloadConfig(); err == nil {
		t.Error("expected error without a config path")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"negative char cap", func(c *config.Config) { c.Post.CharCap = -1 }},
		{"zero job timeout", func(c *config.Config) { c.Schedule.JobTimeoutMinutes = 0 }},
		{"zero aspect width", func(c *config.Config) { c.Post.AspectWidth = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			if _, err := New(cfg, "", testSecrets); err == nil {
				t.Error("expected New to reject the config")
			}
		})
	}
}

func TestPostJobNegativeCharCapDoesNotPanic(t *testing.T) {
	cfg := config.Default()
	cfg.Post.CharCap = -1
	a := NewWithComponents(cfg, stubFetcher{}, stubDescriber{"A cat on a bridge."}, stubPublisher{})

	report, err := a.PostJob(context.Background())
	if err != nil {
		t.Fatalf("PostJob failed: %v", err)
	}
	if report.Description != "..." {
		t.Errorf("Description = %q", report.Description)
	}
}

func TestPlatform(t *testing.T) {
	_, cfg, done := setup(t)
	defer done()

	if got := newApp(t, cfg).Platform(); got != "bluesky" {
		t.Errorf("Platform() = %q, expected bluesky", got)
	}
}
