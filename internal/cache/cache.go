// Package cache remembers extracted document text so repeated requests for the
// same URL skip download and extraction.
package cache

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"docqa-service/internal/model"
)

const (
	DefaultTTL = 24 * time.Hour
	MaxTTL     = 7 * 24 * time.Hour
)

// TextCache maps a document URL to its extracted text, along with the tier
// that produced it and any coverage note.
type TextCache interface {
	Get(ctx context.Context, documentID string) (model.ExtractedText, bool)
	Set(ctx context.Context, documentID string, text model.ExtractedText)
	Delete(ctx context.Context, documentID string)
	Close() error
}

// TTLFor derives how long text extracted from rawURL may be cached. Signed URLs
// live until their embedded expiry (capped at MaxTTL, never negative); anything
// else gets DefaultTTL.
func TTLFor(rawURL string, now time.Time) time.Duration {
	expiry, ok := signedExpiry(rawURL)
	if !ok {
		return DefaultTTL
	}
	ttl := expiry.Sub(now)
	if ttl < 0 {
		return 0
	}
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}

func signedExpiry(rawURL string) (time.Time, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}
	q := u.Query()

	// Azure SAS
	if se := q.Get("se"); se != "" {
		if t, err := time.Parse(time.RFC3339, se); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", se); err == nil {
			return t, true
		}
	}

	// S3 presigned
	if date, expires := q.Get("X-Amz-Date"), q.Get("X-Amz-Expires"); date != "" && expires != "" {
		signedAt, err := time.Parse("20060102T150405Z", date)
		seconds, convErr := strconv.ParseInt(expires, 10, 64)
		if err == nil && convErr == nil {
			return signedAt.Add(time.Duration(seconds) * time.Second), true
		}
	}

	// GCS / CloudFront
	if expires := q.Get("Expires"); expires != "" {
		if unix, err := strconv.ParseInt(expires, 10, 64); err == nil {
			return time.Unix(unix, 0), true
		}
	}
	return time.Time{}, false
}
