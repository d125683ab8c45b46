package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CredentialStore supplies the bearer token the channel presents on
// handshake. The store never issues or refreshes tokens; pairing writes
// one, the channel reads it.
type CredentialStore interface {
	Token() (string, error)
}

// FileCredentials is a process-local token store persisted across restarts,
// the kiosk-side analog of the browser's local storage.
type FileCredentials struct {
	path string

	mu sync.Mutex
}

type credentialFile struct {
	Token string `json:"token"`
}

func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

// Token reads the stored bearer token. An absent file yields an empty
// token, not an error; the channel treats that as NoCredential.
func (f *FileCredentials) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	return cf.Token, nil
}

// SetToken persists a new token, creating the parent directory if needed.
func (f *FileCredentials) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.Marshal(credentialFile{Token: token})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Clear removes the stored token.
func (f *FileCredentials) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// StaticCredentials holds a fixed token; used by tests and one-shot tools.
type StaticCredentials string

func (s StaticCredentials) Token() (string, error) { return string(s), nil }
