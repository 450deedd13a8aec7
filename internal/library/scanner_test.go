package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/internal/storage"
	"github.com/rebbit-player/rebbit/pkg/types"
)

// fakeReader returns fixed metadata keyed off the filename so tests
// don't need real audio files.
type fakeReader struct{}

func (r *fakeReader) Extract(path string) *types.SongMeta {
	base := filepath.Base(path)
	return &types.SongMeta{
		Title:  base[:len(base)-len(filepath.Ext(base))],
		Artist: "Test Artist",
		Album:  "Test Album",
	}
}

func setupScanner(t *testing.T) (*Scanner, *storage.Database, string) {
	t.Helper()

	musicDir := t.TempDir()

	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.Library.MusicDir = musicDir
	cfg.Library.Extensions = []string{".mp3"}

	db, err := storage.NewDatabase(cfg)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewScanner(cfg, db, &fakeReader{}), db, musicDir
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte("not real audio"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

// runScan starts a refresh and blocks until the completion callback.
func runScan(t *testing.T, s *Scanner) int {
	t.Helper()

	done := make(chan int, 1)
	s.OnComplete(func(added int) { done <- added })

	if !s.Refresh(context.Background()) {
		t.Fatal("Expected scan to start")
	}

	select {
	case added := <-done:
		return added
	case <-time.After(5 * time.Second):
		t.Fatal("Scan did not complete in time")
		return 0
	}
}

func TestScanAddsNewFiles(t *testing.T) {
	s, db, musicDir := setupScanner(t)

	writeFile(t, musicDir, "one.mp3")
	writeFile(t, musicDir, "two.mp3")
	writeFile(t, musicDir, "sub/three.mp3")
	writeFile(t, musicDir, "cover.jpg")
	writeFile(t, musicDir, "notes.txt")

	added := runScan(t, s)
	if added != 3 {
		t.Errorf("Expected 3 songs added, got %d", added)
	}

	songs, err := db.ListSongs(context.Background())
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}
	if len(songs) != 3 {
		t.Errorf("Expected 3 songs in catalog, got %d", len(songs))
	}
	for _, song := range songs {
		if song.Artist != "Test Artist" {
			t.Errorf("Expected extracted metadata, got artist %q", song.Artist)
		}
	}
}

func TestRescanSkipsKnownFiles(t *testing.T) {
	s, db, musicDir := setupScanner(t)

	writeFile(t, musicDir, "one.mp3")
	runScan(t, s)

	writeFile(t, musicDir, "two.mp3")
	added := runScan(t, s)

	if added != 1 {
		t.Errorf("Expected only the new file added on rescan, got %d", added)
	}

	songs, _ := db.ListSongs(context.Background())
	if len(songs) != 2 {
		t.Errorf("Expected 2 songs total, got %d", len(songs))
	}
}

func TestScanCompletesWithNothingToDo(t *testing.T) {
	s, _, _ := setupScanner(t)

	// Empty directory still reports completion exactly once.
	added := runScan(t, s)
	if added != 0 {
		t.Errorf("Expected 0 songs added, got %d", added)
	}
	if s.IsRunning() {
		t.Error("Expected scanner to be idle after completion")
	}
}

func TestMissingFilesKeepCatalogRows(t *testing.T) {
	s, db, musicDir := setupScanner(t)

	writeFile(t, musicDir, "gone.mp3")
	runScan(t, s)

	if err := os.Remove(filepath.Join(musicDir, "gone.mp3")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	runScan(t, s)

	songs, _ := db.ListSongs(context.Background())
	if len(songs) != 1 {
		t.Errorf("Expected catalog row to survive file removal, got %d songs", len(songs))
	}
}

func TestRefreshWhileRunning(t *testing.T) {
	s, _, musicDir := setupScanner(t)
	writeFile(t, musicDir, "one.mp3")

	started := make(chan struct{})
	release := make(chan struct{})
	completions := make(chan int, 2)
	s.OnComplete(func(added int) { completions <- added })

	// Hold the scan open from inside the walk by blocking Extract.
	s.reader = &blockingReader{started: started, release: release}

	if !s.Refresh(context.Background()) {
		t.Fatal("Expected first scan to start")
	}
	<-started

	if s.Refresh(context.Background()) {
		t.Error("Expected second refresh to be refused while running")
	}

	close(release)
	select {
	case <-completions:
	case <-time.After(5 * time.Second):
		t.Fatal("Scan did not complete in time")
	}
}

type blockingReader struct {
	started chan struct{}
	release chan struct{}
	once    bool
}

func (r *blockingReader) Extract(path string) *types.SongMeta {
	if !r.once {
		r.once = true
		close(r.started)
		<-r.release
	}
	return &types.SongMeta{Title: "Blocked", Artist: "A", Album: "B"}
}
