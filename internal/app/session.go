package app

import (
	"context"
	"fmt"
	"log"

	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/internal/events"
	"github.com/rebbit-player/rebbit/internal/fetch"
	"github.com/rebbit-player/rebbit/internal/library"
	"github.com/rebbit-player/rebbit/internal/metadata"
	"github.com/rebbit-player/rebbit/internal/player"
	"github.com/rebbit-player/rebbit/internal/search"
	"github.com/rebbit-player/rebbit/internal/storage"
	"github.com/rebbit-player/rebbit/internal/update"
	"github.com/rebbit-player/rebbit/pkg/types"
)

// Session owns the interactive state of one running app: the catalog,
// the transport, the event bus and the background workers. It is
// constructed explicitly and handed to whichever surface drives it;
// nothing in here is a package-level singleton.
//
// Run consumes a dispatch queue on the calling goroutine. Worker
// callbacks (scan completion, download outcomes) are marshaled onto
// that queue so all observable state changes happen on the owning
// goroutine.
type Session struct {
	cfg     *config.Config
	storage *storage.Database
	bus     *events.Bus
	player  *player.Player
	scanner *library.Scanner
	fetcher *fetch.Manager
	remote  types.Searcher
	local   *search.Engine
	reader  types.MetadataReader
	writer  types.MetadataWriter
	updates *update.Checker

	calls chan func()
	debug bool
}

type Deps struct {
	Storage *storage.Database
	Bus     *events.Bus
	Player  *player.Player
	Scanner *library.Scanner
	Fetcher *fetch.Manager
	Remote  types.Searcher
	Local   *search.Engine
	Reader  types.MetadataReader
	Writer  types.MetadataWriter
	Updates *update.Checker
}

func NewSession(cfg *config.Config, deps Deps) *Session {
	s := &Session{
		cfg:     cfg,
		storage: deps.Storage,
		bus:     deps.Bus,
		player:  deps.Player,
		scanner: deps.Scanner,
		fetcher: deps.Fetcher,
		remote:  deps.Remote,
		local:   deps.Local,
		reader:  deps.Reader,
		writer:  deps.Writer,
		updates: deps.Updates,
		calls:   make(chan func(), 64),
		debug:   cfg.Debug,
	}

	s.scanner.OnComplete(func(added int) {
		s.dispatch(func() {
			s.debugLog("Library scan complete, %d songs added", added)
			s.bus.PublishLibraryChanged()
		})
	})

	s.fetcher.OnFinished(func(taskID, filePath string) {
		s.dispatch(func() {
			s.importDownloaded(filePath)
		})
	})

	s.fetcher.OnError(func(taskID string, err error) {
		s.dispatch(func() {
			log.Printf("[SESSION] Download %s failed: %v", taskID, err)
		})
	})

	return s
}

// Run processes dispatched work until the context is cancelled. It
// blocks; the caller's goroutine becomes the interactive one.
func (s *Session) Run(ctx context.Context) {
	if s.cfg.Update.Enabled {
		s.updates.CheckAsync(ctx, func(latest string) {
			s.dispatch(func() {
				log.Printf("[SESSION] Update available: %s (running %s)", latest, update.Version)
			})
		})
	}

	s.RefreshLibrary(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case call := <-s.calls:
			call()
		}
	}
}

// dispatch queues work for the interactive goroutine. The send blocks
// when the queue is full: workers wait for the loop to catch up rather
// than running the callback on the wrong goroutine.
func (s *Session) dispatch(call func()) {
	s.calls <- call
}

func (s *Session) Player() *player.Player {
	return s.player
}

func (s *Session) Bus() *events.Bus {
	return s.bus
}

// RefreshLibrary starts a background scan of the music directory.
func (s *Session) RefreshLibrary(ctx context.Context) {
	if !s.scanner.Refresh(ctx) {
		s.debugLog("Scan already running, refresh skipped")
	}
}

func (s *Session) Songs(ctx context.Context) ([]*types.Song, error) {
	return s.storage.ListSongs(ctx)
}

func (s *Session) SearchLibrary(ctx context.Context, query string, limit int) ([]*types.Song, error) {
	return s.local.Search(ctx, query, limit)
}

func (s *Session) SearchRemote(ctx context.Context, query string) ([]*types.TrackCandidate, error) {
	return s.remote.Search(ctx, query)
}

// StartDownload queues a platform download; the finished song lands
// in the music directory and is imported into the catalog.
func (s *Session) StartDownload(ctx context.Context, url, title string) string {
	return s.fetcher.StartDownload(ctx, url, title)
}

// importDownloaded runs on the interactive goroutine after a download
// completes. When the worker couldn't report the final path, a full
// rescan picks the file up instead.
func (s *Session) importDownloaded(filePath string) {
	ctx := context.Background()

	if filePath == "" {
		s.RefreshLibrary(ctx)
		return
	}

	meta := s.reader.Extract(filePath)
	song := &types.Song{
		Title:     meta.Title,
		Artist:    meta.Artist,
		Album:     meta.Album,
		Filepath:  filePath,
		CoverPath: meta.CoverPath,
		Duration:  meta.Duration,
	}

	if err := s.storage.AddSong(ctx, song); err != nil {
		log.Printf("[SESSION] Failed to import download %s: %v", filePath, err)
		return
	}

	s.bus.PublishLibraryChanged()
}

func (s *Session) CreatePlaylist(ctx context.Context, name string) (bool, error) {
	created, err := s.storage.CreatePlaylist(ctx, name)
	if err != nil {
		return false, err
	}
	if created {
		s.bus.PublishPlaylistSetChanged()
	}
	return created, nil
}

func (s *Session) RenamePlaylist(ctx context.Context, id int64, newName string) (bool, error) {
	renamed, err := s.storage.RenamePlaylist(ctx, id, newName)
	if err != nil {
		return false, err
	}
	if renamed {
		s.bus.PublishPlaylistSetChanged()
	}
	return renamed, nil
}

func (s *Session) DeletePlaylist(ctx context.Context, id int64) error {
	if err := s.storage.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	s.bus.PublishPlaylistSetChanged()
	return nil
}

func (s *Session) Playlists(ctx context.Context) ([]*types.PlaylistSummary, error) {
	return s.storage.ListPlaylists(ctx)
}

func (s *Session) PlaylistSongs(ctx context.Context, playlistID int64) ([]*types.Song, error) {
	return s.storage.GetPlaylistSongs(ctx, playlistID)
}

func (s *Session) AddToPlaylist(ctx context.Context, playlistID int64, songPath string) error {
	if err := s.storage.AddToPlaylist(ctx, playlistID, songPath); err != nil {
		return err
	}
	s.bus.PublishPlaylistContentChanged(playlistID)
	return nil
}

func (s *Session) RemoveFromPlaylist(ctx context.Context, playlistID int64, songPath string) error {
	if err := s.storage.RemoveFromPlaylist(ctx, playlistID, songPath); err != nil {
		return err
	}
	s.bus.PublishPlaylistContentChanged(playlistID)
	return nil
}

// EditMetadata writes new tags to the song's file and the catalog.
// When renameFile is set, the backing file is renamed to match the
// new tags and the catalog's path key follows it; the rename is a
// separate, explicit step so the tag write alone never moves files.
func (s *Session) EditMetadata(ctx context.Context, songID int64, title, artist, album string, coverPath *string, renameFile bool) error {
	song, err := s.storage.GetSong(ctx, songID)
	if err != nil {
		return err
	}
	if song == nil {
		return fmt.Errorf("song %d not found", songID)
	}

	if err := s.writer.Write(song.Filepath, title, artist, album, coverPath); err != nil {
		return fmt.Errorf("write tags: %w", err)
	}

	newPath := ""
	if renameFile {
		renamed, err := metadata.RenameForTags(song.Filepath, title, artist)
		if err != nil {
			log.Printf("[SESSION] Rename-on-retag failed for %s: %v", song.Filepath, err)
		} else if renamed != song.Filepath {
			newPath = renamed
		}
	}

	if err := s.storage.UpdateSong(ctx, songID, title, artist, album, coverPath, newPath); err != nil {
		return err
	}

	s.bus.PublishLibraryChanged()
	return nil
}

func (s *Session) Close() error {
	if err := s.player.Close(); err != nil {
		log.Printf("[SESSION] Failed to close player: %v", err)
	}
	return s.storage.Close()
}

func (s *Session) debugLog(format string, args ...interface{}) {
	if s.debug {
		log.Printf("[SESSION] "+format, args...)
	}
}
