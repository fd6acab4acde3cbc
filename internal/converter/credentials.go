package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var ErrNotConfigured = errors.New("pdf services credentials not configured")

type Credentials struct {
	ClientID     string
	ClientSecret string
}

func (c Credentials) valid() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// credentialsFile mirrors the JSON file downloaded from the PDF Services console.
type credentialsFile struct {
	ClientCredentials struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"client_credentials"`
}

// CredentialSource resolves credentials from explicit values (typically the
// environment) first and from a credentials file second.
type CredentialSource struct {
	explicit Credentials
	path     string

	mu       sync.RWMutex
	fromFile Credentials
}

func NewCredentialSource(clientID, clientSecret, path string) *CredentialSource {
	s := &CredentialSource{
		explicit: Credentials{ClientID: clientID, ClientSecret: clientSecret},
		path:     path,
	}
	if err := s.reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("converter: load credentials file failed: %v", err)
	}
	return s
}

func (s *CredentialSource) Resolve() (Credentials, error) {
	if s.explicit.valid() {
		return s.explicit, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fromFile.valid() {
		return s.fromFile, nil
	}
	return Credentials{}, ErrNotConfigured
}

func (s *CredentialSource) reload() error {
	if s.path == "" {
		return os.ErrNotExist
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var parsed credentialsFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse credentials file failed: %w", err)
	}

	s.mu.Lock()
	s.fromFile = Credentials{
		ClientID:     parsed.ClientCredentials.ClientID,
		ClientSecret: parsed.ClientCredentials.ClientSecret,
	}
	s.mu.Unlock()
	return nil
}

// Watch reloads the credentials file whenever it changes until ctx is done.
// The parent directory is watched so atomic replace-by-rename is seen too.
func (s *CredentialSource) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create credentials watcher failed: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch credentials dir failed: %w", err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					if err := s.reload(); err != nil {
						log.Printf("converter: reload credentials failed: %v", err)
						continue
					}
					log.Printf("converter: credentials reloaded from %s", s.path)
				} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					s.mu.Lock()
					s.fromFile = Credentials{}
					s.mu.Unlock()
					log.Printf("converter: credentials file %s removed", s.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("converter: credentials watcher error: %v", err)
			}
		}
	}()
	return nil
}
