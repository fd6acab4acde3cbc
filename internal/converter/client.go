// Package converter talks to the Adobe PDF Services REST API for remote text
// extraction and OCR.
package converter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	ErrPageLimit = errors.New("document exceeds the service page limit")
	ErrJobFailed = errors.New("pdf services job failed")
)

const (
	structuredDataEntry = "structuredData.json"
	maxDownloadBytes    = 200 << 20
)

type Client struct {
	baseURL      string
	httpClient   *http.Client
	creds        *CredentialSource
	pollInterval time.Duration

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(baseURL string, creds *CredentialSource, pollInterval time.Duration) *Client {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		creds:        creds,
		pollInterval: pollInterval,
	}
}

// Available reports whether credentials currently resolve.
func (c *Client) Available() bool {
	_, err := c.creds.Resolve()
	return err == nil
}

// ExtractText runs an extract job and concatenates the Text of every element
// in the resulting structuredData.json.
func (c *Client) ExtractText(ctx context.Context, data []byte) (string, error) {
	assetID, err := c.upload(ctx, data)
	if err != nil {
		return "", err
	}
	status, err := c.runJob(ctx, "/operation/extractpdf", map[string]interface{}{
		"assetID":           assetID,
		"elementsToExtract": []string{"text"},
	})
	if err != nil {
		return "", err
	}
	if status.Resource.DownloadURI == "" {
		return "", fmt.Errorf("%w: extract job returned no resource", ErrJobFailed)
	}

	archive, err := c.download(ctx, status.Resource.DownloadURI)
	if err != nil {
		return "", err
	}
	return textFromArchive(archive)
}

// OCR runs an OCR job and returns the searchable PDF it produces.
func (c *Client) OCR(ctx context.Context, data []byte) ([]byte, error) {
	assetID, err := c.upload(ctx, data)
	if err != nil {
		return nil, err
	}
	status, err := c.runJob(ctx, "/operation/ocr", map[string]interface{}{"assetID": assetID})
	if err != nil {
		return nil, err
	}
	if status.Asset.DownloadURI == "" {
		return nil, fmt.Errorf("%w: ocr job returned no asset", ErrJobFailed)
	}
	return c.download(ctx, status.Asset.DownloadURI)
}

type jobStatus struct {
	Status string `json:"status"`
	Asset  struct {
		DownloadURI string `json:"downloadUri"`
	} `json:"asset"`
	Resource struct {
		DownloadURI string `json:"downloadUri"`
	} `json:"resource"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) upload(ctx context.Context, data []byte) (string, error) {
	var asset struct {
		UploadURI string `json:"uploadUri"`
		AssetID   string `json:"assetID"`
	}
	if _, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/assets", map[string]string{"mediaType": "application/pdf"}, &asset); err != nil {
		return "", fmt.Errorf("create asset failed: %w", err)
	}
	if asset.UploadURI == "" || asset.AssetID == "" {
		return "", fmt.Errorf("create asset returned empty upload target")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, asset.UploadURI, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload asset failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload asset status %d: %s", resp.StatusCode, string(raw))
	}
	return asset.AssetID, nil
}

func (c *Client) runJob(ctx context.Context, path string, body interface{}) (*jobStatus, error) {
	header, err := c.doJSON(ctx, http.MethodPost, c.baseURL+path, body, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("create job failed: %w", err))
	}
	location := header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("create job returned no location")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		var status jobStatus
		if _, err := c.doJSON(ctx, http.MethodGet, location, nil, &status); err != nil {
			return nil, fmt.Errorf("poll job failed: %w", err)
		}
		switch strings.ToLower(status.Status) {
		case "done":
			return &status, nil
		case "failed":
			return nil, classify(fmt.Errorf("%w: %s: %s", ErrJobFailed, status.Error.Code, status.Error.Message))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// classify marks page-limit rejections so the caller can log them distinctly.
func classify(err error) error {
	msg := strings.ToUpper(err.Error())
	if strings.Contains(msg, "PAGE_LIMIT") || strings.Contains(msg, "PAGE LIMIT") {
		return fmt.Errorf("%w: %v", ErrPageLimit, err)
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, method, target string, body, out interface{}) (http.Header, error) {
	creds, err := c.creds.Resolve()
	if err != nil {
		return nil, err
	}
	token, err := c.accessToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", creds.ClientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("parse response failed: %w", err)
		}
	}
	return resp.Header, nil
}

func (c *Client) accessToken(ctx context.Context, creds Credentials) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("token status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse token response failed: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}

	c.token = parsed.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(parsed.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request failed: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download result failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download result status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read result failed: %w", err)
	}
	return raw, nil
}

func textFromArchive(archive []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", fmt.Errorf("open result archive failed: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != structuredDataEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s failed: %w", structuredDataEntry, err)
		}
		defer rc.Close()

		var structured struct {
			Elements []struct {
				Text string `json:"Text"`
			} `json:"elements"`
		}
		if err := json.NewDecoder(rc).Decode(&structured); err != nil {
			return "", fmt.Errorf("parse %s failed: %w", structuredDataEntry, err)
		}

		parts := make([]string, 0, len(structured.Elements))
		for _, el := range structured.Elements {
			if t := strings.TrimSpace(el.Text); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n"), nil
	}
	return "", fmt.Errorf("result archive has no %s", structuredDataEntry)
}
