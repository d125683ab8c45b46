package imagecache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskStoreRoundtrip(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	url := "http://img/a.png"
	if _, err := s.Read(url); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read on empty store: %v, want ErrNotExist", err)
	}

	data := []byte{0xff, 0xd8, 0xff, 0xe0}
	if err := s.Write(url, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(url)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read = %x, want %x", got, data)
	}

	if err := s.Delete(url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(url); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read after delete: %v, want ErrNotExist", err)
	}
	// Deleting a missing blob is a no-op.
	if err := s.Delete(url); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestDiskStoreReseedsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewDiskStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Write("http://img/persisted.png", []byte("blob")); err != nil {
		t.Fatal(err)
	}

	// A fresh store over the same directory must serve the old blob, which
	// exercises the filter re-seed on startup.
	s2, err := NewDiskStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	data, err := s2.Read("http://img/persisted.png")
	if err != nil {
		t.Fatalf("Read after restart: %v", err)
	}
	if string(data) != "blob" {
		t.Errorf("data = %q", data)
	}
}

func TestDiskStoreClear(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range []string{"http://a", "http://b"} {
		if err := s.Write(u, []byte(u)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	names, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("%d files survive Clear", len(names))
	}
	if _, err := s.Read("http://a"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read after Clear: %v", err)
	}
}

func TestScratchMaterializer(t *testing.T) {
	dir := t.TempDir()
	mat := scratchMaterializer(dir)

	ref, release, err := mat("http://img/x.png", []byte("pixels"))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if filepath.Dir(ref) != dir {
		t.Errorf("ref %q outside scratch dir", ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil || string(data) != "pixels" {
		t.Errorf("scratch file: %q, %v", data, err)
	}

	release()
	if _, err := os.Stat(ref); !os.IsNotExist(err) {
		t.Errorf("scratch file survives release")
	}
}
