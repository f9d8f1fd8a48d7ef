// Package camera downloads snapshots from a camera endpoint.
package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ibeckermayer/camposter/internal/types"
)

// StatusError is returned when the camera responds with an unusable status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camera returned status %d for %s", e.StatusCode, e.URL)
}

// Fetcher downloads camera images
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher. Redirects are handled by Fetch itself, never by the client.
func New(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Fetch downloads sourceURL to destPath, following a single 302 redirect.
// destPath is only touched once a success response has been received.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL, destPath string) (*types.Snapshot, error) {
	resp, err := f.get(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusFound {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return nil, &StatusError{URL: sourceURL, StatusCode: resp.StatusCode}
		}

		next, err := resolveLocation(sourceURL, location)
		if err != nil {
			return nil, err
		}

		// One hop only; a second redirect is treated like any other bad status.
		resp, err = f.get(ctx, next)
		if err != nil {
			return nil, err
		}
		sourceURL = next
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: sourceURL, StatusCode: resp.StatusCode}
	}

	n, err := writeFile(destPath, resp.Body)
	if err != nil {
		return nil, err
	}

	return &types.Snapshot{
		Path:      destPath,
		SourceURL: sourceURL,
		Bytes:     n,
		FetchedAt: time.Now(),
	}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	return resp, nil
}

func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid source url %s: %w", base, err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid redirect location %s: %w", location, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// writeFile streams r to path, removing the partial file on failure
func writeFile(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return n, nil
}
