// Package fetch downloads source documents with a size ceiling.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"docqa-service/internal/model"
)

var (
	ErrFetch    = errors.New("document fetch failed")
	ErrTooLarge = errors.New("document too large")
)

type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

func New(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

// ValidateURL accepts absolute http(s) URLs only.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid document url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid document url %q: must be an absolute http(s) url", raw)
	}
	return nil
}

func (f *Fetcher) Fetch(ctx context.Context, documentURL string) (model.SourceDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return model.SourceDocument{}, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/pdf, */*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return model.SourceDocument{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.SourceDocument{}, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return model.SourceDocument{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, resp.ContentLength, f.maxBytes)
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return model.SourceDocument{}, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return model.SourceDocument{}, fmt.Errorf("%w: exceeds limit of %d bytes", ErrTooLarge, f.maxBytes)
	}

	return model.SourceDocument{ID: documentURL, Data: data, Size: int64(len(data))}, nil
}
