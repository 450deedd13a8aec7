package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rebbit-player/rebbit/internal/config"
)

func TestExtractFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "My Great Song.mp3")
	if err := os.WriteFile(path, []byte("this is not audio"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cfg := &config.Config{}
	cfg.Storage.CoverCacheDir = filepath.Join(dir, "covers")
	reader := NewReader(cfg)

	meta := reader.Extract(path)

	if meta.Title != "My Great Song" {
		t.Errorf("Expected filename-derived title, got %q", meta.Title)
	}
	if meta.Artist != "Unknown Artist" {
		t.Errorf("Expected default artist, got %q", meta.Artist)
	}
	if meta.Album != "Unknown Album" {
		t.Errorf("Expected default album, got %q", meta.Album)
	}
	if meta.Duration != 0 {
		t.Errorf("Expected 0 duration for undecodable file, got %d", meta.Duration)
	}
	if meta.CoverPath != nil {
		t.Error("Expected no cover for untagged file")
	}
}

func TestExtractMissingFile(t *testing.T) {
	cfg := &config.Config{}
	reader := NewReader(cfg)

	meta := reader.Extract("/nowhere/ghost.mp3")

	if meta == nil {
		t.Fatal("Expected defaults for missing file, got nil")
	}
	if meta.Title != "ghost" {
		t.Errorf("Expected filename-derived title, got %q", meta.Title)
	}
}

func TestRenameForTags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "download_128371.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	newPath, err := RenameForTags(path, "Song Title", "The Artist")
	if err != nil {
		t.Fatalf("RenameForTags failed: %v", err)
	}

	expected := filepath.Join(dir, "The Artist - Song Title.mp3")
	if newPath != expected {
		t.Errorf("Expected %s, got %s", expected, newPath)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("Expected renamed file to exist: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected original file to be gone")
	}
}

func TestRenameForTagsAlreadyNamed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "The Artist - Song Title.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	newPath, err := RenameForTags(path, "Song Title", "The Artist")
	if err != nil {
		t.Fatalf("RenameForTags failed: %v", err)
	}
	if newPath != path {
		t.Errorf("Expected path unchanged, got %s", newPath)
	}
}

func TestRenameForTagsTargetExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.mp3")
	taken := filepath.Join(dir, "The Artist - Song Title.mp3")
	os.WriteFile(path, []byte("audio"), 0644)
	os.WriteFile(taken, []byte("other audio"), 0644)

	newPath, err := RenameForTags(path, "Song Title", "The Artist")
	if err == nil {
		t.Fatal("Expected error when target name is taken")
	}
	if newPath != path {
		t.Errorf("Expected original path back on failure, got %s", newPath)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("Expected source file untouched: %v", statErr)
	}
}

func TestRenameForTagsSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.mp3")
	os.WriteFile(path, []byte("audio"), 0644)

	newPath, err := RenameForTags(path, "What: Is/This?", "AC\\DC")
	if err != nil {
		t.Fatalf("RenameForTags failed: %v", err)
	}

	base := filepath.Base(newPath)
	for _, forbidden := range []string{"/", "\\", ":", "?"} {
		if filepath.Base(base) != base || containsAny(base, forbidden) {
			t.Errorf("Expected sanitized name, got %q", base)
		}
	}
}

func containsAny(s, chars string) bool {
	for _, c := range chars {
		for _, r := range s {
			if r == c {
				return true
			}
		}
	}
	return false
}
