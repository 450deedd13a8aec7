package library

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/internal/storage"
	"github.com/rebbit-player/rebbit/pkg/types"
)

// Scanner reconciles the music directory against the catalog: every
// audio file found recursively that the catalog doesn't know yet gets
// its metadata extracted and inserted. Files already in the catalog
// are skipped, and catalog rows whose files disappeared are left
// alone. The scan runs on a worker goroutine and reports completion
// exactly once per run, including runs that touch nothing.
type Scanner struct {
	storage *storage.Database
	reader  types.MetadataReader
	cfg     *config.Config

	mu         sync.Mutex
	running    bool
	onComplete func(added int)

	debug bool
}

func NewScanner(cfg *config.Config, db *storage.Database, reader types.MetadataReader) *Scanner {
	return &Scanner{
		storage: db,
		reader:  reader,
		cfg:     cfg,
		debug:   cfg.Debug,
	}
}

// OnComplete registers the completion callback. It is invoked on the
// scanner's worker goroutine; callers marshal onto their own loop.
func (s *Scanner) OnComplete(callback func(added int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = callback
}

// Refresh starts a scan unless one is already running. Returns
// whether a scan was started.
func (s *Scanner) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	go s.scan(ctx)
	return true
}

func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scanner) scan(ctx context.Context) {
	added := 0

	defer func() {
		s.mu.Lock()
		s.running = false
		callback := s.onComplete
		s.mu.Unlock()

		s.debugLog("Scan finished, %d songs added", added)
		if callback != nil {
			callback(added)
		}
	}()

	root := s.cfg.Library.MusicDir
	s.debugLog("Scanning %s", root)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			s.debugLog("Walk error at %s: %v", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !s.isAudioFile(path) {
			return nil
		}

		exists, err := s.storage.SongExists(ctx, path)
		if err != nil {
			s.debugLog("Exists check failed for %s: %v", path, err)
			return nil
		}
		if exists {
			return nil
		}

		meta := s.reader.Extract(path)
		song := &types.Song{
			Title:     meta.Title,
			Artist:    meta.Artist,
			Album:     meta.Album,
			Filepath:  path,
			CoverPath: meta.CoverPath,
			Duration:  meta.Duration,
		}

		if err := s.storage.AddSong(ctx, song); err != nil {
			s.debugLog("Add song failed for %s: %v", path, err)
			return nil
		}

		added++
		return nil
	})
	if err != nil {
		log.Printf("[SCAN] Scan aborted: %v", err)
	}
}

func (s *Scanner) isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range s.cfg.Library.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (s *Scanner) debugLog(format string, args ...interface{}) {
	if s.debug {
		log.Printf("[SCAN] "+format, args...)
	}
}
