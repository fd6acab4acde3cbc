package converter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	t          *testing.T
	srv        *httptest.Server
	polls      atomic.Int32
	tokens     atomic.Int32
	uploaded   []byte
	failCode   string
	resultZip  []byte
	ocrPayload []byte
}

func newFakeService(t *testing.T) *fakeService {
	f := &fakeService{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokens.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "id", r.Form.Get("client_id"))
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":86400}`))
	})
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "id", r.Header.Get("X-API-Key"))
		_ = json.NewEncoder(w).Encode(map[string]string{"uploadUri": f.srv.URL + "/upload", "assetID": "asset-1"})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		f.uploaded, _ = io.ReadAll(r.Body)
	})
	createJob := func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asset-1", body["assetID"])
		w.Header().Set("Location", f.srv.URL+"/status")
		w.WriteHeader(http.StatusCreated)
	}
	mux.HandleFunc("/operation/extractpdf", createJob)
	mux.HandleFunc("/operation/ocr", createJob)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if f.polls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":"in progress"}`))
			return
		}
		if f.failCode != "" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "failed",
				"error":  map[string]string{"code": f.failCode, "message": "rejected"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "done",
			"resource": map[string]string{"downloadUri": f.srv.URL + "/download/zip"},
			"asset":    map[string]string{"downloadUri": f.srv.URL + "/download/pdf"},
		})
	})
	mux.HandleFunc("/download/zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(f.resultZip)
	})
	mux.HandleFunc("/download/pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(f.ocrPayload)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func structuredZip(t *testing.T, texts ...string) []byte {
	elements := make([]map[string]string, 0, len(texts))
	for _, text := range texts {
		elements = append(elements, map[string]string{"Text": text})
	}
	payload, err := json.Marshal(map[string]interface{}{"elements": elements})
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(structuredDataEntry)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	f := newFakeService(t)
	f.resultZip = structuredZip(t, "Policy wording", "  ", "Grace period: 30 days")

	c := NewClient(f.srv.URL, NewCredentialSource("id", "secret", ""), time.Millisecond)
	text, err := c.ExtractText(context.Background(), []byte("%PDF-1.4 data"))
	require.NoError(t, err)

	assert.Equal(t, "Policy wording\nGrace period: 30 days", text)
	assert.Equal(t, []byte("%PDF-1.4 data"), f.uploaded)
	assert.GreaterOrEqual(t, f.polls.Load(), int32(2))
}

func TestOCRReturnsAsset(t *testing.T) {
	f := newFakeService(t)
	f.ocrPayload = []byte("%PDF-ocr")

	c := NewClient(f.srv.URL, NewCredentialSource("id", "secret", ""), time.Millisecond)
	out, err := c.OCR(context.Background(), []byte("scan"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-ocr"), out)

	_, err = c.OCR(context.Background(), []byte("scan"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokens.Load(), "token is reused until expiry")
}

func TestPageLimitIsClassified(t *testing.T) {
	f := newFakeService(t)
	f.failCode = "DISQUALIFIED_PAGE_LIMIT"

	c := NewClient(f.srv.URL, NewCredentialSource("id", "secret", ""), time.Millisecond)
	_, err := c.ExtractText(context.Background(), []byte("big"))
	assert.ErrorIs(t, err, ErrPageLimit)
}

func TestJobFailure(t *testing.T) {
	f := newFakeService(t)
	f.failCode = "CORRUPT_DOCUMENT"

	c := NewClient(f.srv.URL, NewCredentialSource("id", "secret", ""), time.Millisecond)
	_, err := c.ExtractText(context.Background(), []byte("bad"))
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.NotErrorIs(t, err, ErrPageLimit)
}

func TestMissingCredentials(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", NewCredentialSource("", "", filepath.Join(t.TempDir(), "none.json")), time.Millisecond)
	assert.False(t, c.Available())
	_, err := c.ExtractText(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func writeCredentials(t *testing.T, path, id string) {
	body := `{"client_credentials":{"client_id":"` + id + `","client_secret":"s"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestCredentialSourcePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	writeCredentials(t, path, "file-id")

	got, err := NewCredentialSource("env-id", "env-secret", path).Resolve()
	require.NoError(t, err)
	assert.Equal(t, "env-id", got.ClientID)

	got, err = NewCredentialSource("", "", path).Resolve()
	require.NoError(t, err)
	assert.Equal(t, "file-id", got.ClientID)
}

func TestCredentialSourceWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	src := NewCredentialSource("", "", path)
	_, err := src.Resolve()
	require.ErrorIs(t, err, ErrNotConfigured)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Watch(ctx))

	writeCredentials(t, path, "rotated")
	require.Eventually(t, func() bool {
		got, err := src.Resolve()
		return err == nil && got.ClientID == "rotated"
	}, 2*time.Second, 10*time.Millisecond)
}
