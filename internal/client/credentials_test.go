package client

import (
	"path/filepath"
	"testing"
)

func TestFileCredentialsRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	fc := NewFileCredentials(path)

	// Absent file is not an error; it just means no credential yet.
	token, err := fc.Token()
	if err != nil {
		t.Fatalf("Token on absent file: %v", err)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty", token)
	}

	if err := fc.SetToken("abc123"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	token, err = fc.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q, want abc123", token)
	}

	if err := fc.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	token, err = fc.Token()
	if err != nil || token != "" {
		t.Errorf("after Clear: token=%q err=%v", token, err)
	}
	// Clearing twice is fine.
	if err := fc.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
