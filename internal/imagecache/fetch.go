package imagecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/cartelera-live/cartelera/internal/errors"
)

// Fetcher retrieves image bytes from their source URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads over HTTP. Timeout zero means no timeout (a hung
// fetch then hangs the caller; setting one turns a slow source into an
// ordinary FetchFailure).
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.FetchFailure(url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.FetchFailure(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.FetchFailure(url, fmt.Errorf("status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.FetchFailure(url, err)
	}
	return data, nil
}
