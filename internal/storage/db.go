package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/pkg/types"
)

// ErrPathConflict is returned when an update tries to repoint a song's
// filepath at a path that already identifies a different song.
var ErrPathConflict = errors.New("filepath already belongs to another song")

type Database struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	debug  bool
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}

func NewDatabase(cfg *config.Config) (*Database, error) {
	dbDir := filepath.Dir(cfg.Storage.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := openDatabase(cfg.Storage.DatabasePath, cfg.Storage.EnableWAL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	storage := &Database{
		db:    db,
		debug: cfg.Debug,
	}

	if err := storage.runMigrations(); err != nil {
		if closeErr := storage.Close(); closeErr != nil {
			log.Printf("Failed to close database after migration error: %v", closeErr)
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return storage, nil
}

func openDatabase(dbPath string, enableWAL bool) (*sql.DB, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Printf("Creating new database at %s", dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=memory",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				log.Printf("Failed to close database after pragma error: %v", closeErr)
			}
			return nil, fmt.Errorf("execute pragma %s: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database after ping error: %v", closeErr)
		}
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func (d *Database) debugLog(operation string, err error, duration time.Duration) {
	if !d.debug || err == nil {
		return
	}

	log.Printf("[DB] %s failed in %v: %v", operation, duration, err)
}

func (d *Database) checkClosed() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return fmt.Errorf("database is closed")
	}
	return nil
}

// SongExists reports whether a song with the given filepath is already
// in the catalog.
func (d *Database) SongExists(ctx context.Context, path string) (bool, error) {
	if err := d.checkClosed(); err != nil {
		return false, err
	}

	var one int
	err := d.db.QueryRowContext(ctx, "SELECT 1 FROM songs WHERE filepath = ?", path).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check song exists: %w", err)
	}

	return true, nil
}

// AddSong inserts a song keyed by filepath. Inserting a path that is
// already in the catalog is a no-op, not an error.
func (d *Database) AddSong(ctx context.Context, song *types.Song) error {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return err
	}

	if song.Filepath == "" {
		return fmt.Errorf("song filepath must not be empty")
	}

	if song.DateAdded.IsZero() {
		song.DateAdded = time.Now()
	}

	query := `
		INSERT OR IGNORE INTO songs (title, artist, album, filepath, cover_path, duration, date_added)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		song.Title, song.Artist, song.Album, song.Filepath,
		song.CoverPath, song.Duration, song.DateAdded,
	)
	if err != nil {
		d.debugLog("AddSong", err, time.Since(start))
		return fmt.Errorf("insert song: %w", err)
	}

	return nil
}

// ListSongs returns the whole catalog ordered by title
// (case-insensitive), with filepath as the tie-break so the order is
// total and stable across calls.
func (d *Database) ListSongs(ctx context.Context) ([]*types.Song, error) {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, title, artist, album, filepath, cover_path, duration, date_added
		FROM songs
		ORDER BY title COLLATE NOCASE ASC, filepath ASC
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		d.debugLog("ListSongs", err, time.Since(start))
		return nil, fmt.Errorf("query songs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Printf("Failed to close rows: %v", closeErr)
		}
	}()

	var songs []*types.Song
	for rows.Next() {
		song, err := d.scanSong(rows)
		if err != nil {
			d.debugLog("ListSongs", err, time.Since(start))
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		d.debugLog("ListSongs", err, time.Since(start))
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return songs, nil
}

// GetSong returns the song with the given id, or nil when absent.
func (d *Database) GetSong(ctx context.Context, id int64) (*types.Song, error) {
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, title, artist, album, filepath, cover_path, duration, date_added
		FROM songs
		WHERE id = ?
	`

	row := d.db.QueryRowContext(ctx, query, id)
	song, err := d.scanSong(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan song: %w", err)
	}

	return song, nil
}

// GetSongByPath returns the song identified by filepath, or nil when
// absent.
func (d *Database) GetSongByPath(ctx context.Context, path string) (*types.Song, error) {
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, title, artist, album, filepath, cover_path, duration, date_added
		FROM songs
		WHERE filepath = ?
	`

	row := d.db.QueryRowContext(ctx, query, path)
	song, err := d.scanSong(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan song: %w", err)
	}

	return song, nil
}

// UpdateSong rewrites a song's metadata fields. When newPath is
// non-empty the filepath key is repointed as well; the update fails
// with ErrPathConflict if newPath already identifies a different
// song. Updating an unknown id is a no-op.
func (d *Database) UpdateSong(ctx context.Context, id int64, title, artist, album string, coverPath *string, newPath string) error {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			log.Printf("Failed to rollback transaction: %v", rollbackErr)
		}
	}()

	if newPath != "" {
		var ownerID int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM songs WHERE filepath = ?", newPath).Scan(&ownerID)
		if err != nil && err != sql.ErrNoRows {
			d.debugLog("UpdateSong", err, time.Since(start))
			return fmt.Errorf("check filepath owner: %w", err)
		}
		if err == nil && ownerID != id {
			return ErrPathConflict
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE songs SET title = ?, artist = ?, album = ?, cover_path = ?, filepath = ?
			WHERE id = ?
		`, title, artist, album, coverPath, newPath, id)
		if err != nil {
			d.debugLog("UpdateSong", err, time.Since(start))
			return fmt.Errorf("update song: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE songs SET title = ?, artist = ?, album = ?, cover_path = ?
			WHERE id = ?
		`, title, artist, album, coverPath, id)
		if err != nil {
			d.debugLog("UpdateSong", err, time.Since(start))
			return fmt.Errorf("update song: %w", err)
		}
	}

	return tx.Commit()
}

// CreatePlaylist adds a playlist with the given name. Returns false
// when the name is already taken; uniqueness is exact-match.
func (d *Database) CreatePlaylist(ctx context.Context, name string) (bool, error) {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return false, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			log.Printf("Failed to rollback transaction: %v", rollbackErr)
		}
	}()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM playlists WHERE name = ?", name).Scan(&one)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		d.debugLog("CreatePlaylist", err, time.Since(start))
		return false, fmt.Errorf("check playlist name: %w", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO playlists (name, created_at) VALUES (?, ?)", name, time.Now())
	if err != nil {
		d.debugLog("CreatePlaylist", err, time.Since(start))
		return false, fmt.Errorf("insert playlist: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	return true, nil
}

// ListPlaylists returns every playlist with a live membership count.
func (d *Database) ListPlaylists(ctx context.Context) ([]*types.PlaylistSummary, error) {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	query := `
		SELECT p.id, p.name, COUNT(ps.song_id) AS song_count, p.created_at
		FROM playlists p
		LEFT JOIN playlist_songs ps ON p.id = ps.playlist_id
		GROUP BY p.id, p.name, p.created_at
		ORDER BY p.id
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		d.debugLog("ListPlaylists", err, time.Since(start))
		return nil, fmt.Errorf("query playlists: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Printf("Failed to close rows: %v", closeErr)
		}
	}()

	var playlists []*types.PlaylistSummary
	for rows.Next() {
		var p types.PlaylistSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.SongCount, &p.CreatedAt); err != nil {
			d.debugLog("ListPlaylists", err, time.Since(start))
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		playlists = append(playlists, &p)
	}

	if err := rows.Err(); err != nil {
		d.debugLog("ListPlaylists", err, time.Since(start))
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return playlists, nil
}

// GetPlaylist returns the playlist with the given id, or nil when
// absent.
func (d *Database) GetPlaylist(ctx context.Context, id int64) (*types.Playlist, error) {
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	var p types.Playlist
	row := d.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM playlists WHERE id = ?", id)
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan playlist: %w", err)
	}

	return &p, nil
}

// RenamePlaylist changes a playlist's name under the same uniqueness
// rule as CreatePlaylist. Returns false when the new name is taken by
// another playlist.
func (d *Database) RenamePlaylist(ctx context.Context, id int64, newName string) (bool, error) {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return false, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			log.Printf("Failed to rollback transaction: %v", rollbackErr)
		}
	}()

	var ownerID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM playlists WHERE name = ?", newName).Scan(&ownerID)
	if err == nil && ownerID != id {
		return false, nil
	}
	if err != nil && err != sql.ErrNoRows {
		d.debugLog("RenamePlaylist", err, time.Since(start))
		return false, fmt.Errorf("check playlist name: %w", err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE playlists SET name = ? WHERE id = ?", newName, id)
	if err != nil {
		d.debugLog("RenamePlaylist", err, time.Since(start))
		return false, fmt.Errorf("update playlist: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	return true, nil
}

// DeletePlaylist removes a playlist; membership rows go with it via
// the cascade foreign key. Deleting an unknown id is a no-op.
func (d *Database) DeletePlaylist(ctx context.Context, id int64) error {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return err
	}

	_, err := d.db.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		d.debugLog("DeletePlaylist", err, time.Since(start))
		return fmt.Errorf("delete playlist: %w", err)
	}

	return nil
}

// AddToPlaylist adds the song identified by path to a playlist. It is
// a no-op when the song or the playlist is unknown, and when the song
// is already a member.
func (d *Database) AddToPlaylist(ctx context.Context, playlistID int64, songPath string) error {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			log.Printf("Failed to rollback transaction: %v", rollbackErr)
		}
	}()

	var songID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM songs WHERE filepath = ?", songPath).Scan(&songID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		d.debugLog("AddToPlaylist", err, time.Since(start))
		return fmt.Errorf("resolve song: %w", err)
	}

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM playlists WHERE id = ?", playlistID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		d.debugLog("AddToPlaylist", err, time.Since(start))
		return fmt.Errorf("resolve playlist: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO playlist_songs (playlist_id, song_id) VALUES (?, ?)",
		playlistID, songID,
	)
	if err != nil {
		d.debugLog("AddToPlaylist", err, time.Since(start))
		return fmt.Errorf("insert membership: %w", err)
	}

	return tx.Commit()
}

// RemoveFromPlaylist removes the song identified by path from a
// playlist. It is a no-op when the song is unknown or not a member.
func (d *Database) RemoveFromPlaylist(ctx context.Context, playlistID int64, songPath string) error {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			log.Printf("Failed to rollback transaction: %v", rollbackErr)
		}
	}()

	var songID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM songs WHERE filepath = ?", songPath).Scan(&songID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		d.debugLog("RemoveFromPlaylist", err, time.Since(start))
		return fmt.Errorf("resolve song: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM playlist_songs WHERE playlist_id = ? AND song_id = ?",
		playlistID, songID,
	)
	if err != nil {
		d.debugLog("RemoveFromPlaylist", err, time.Since(start))
		return fmt.Errorf("delete membership: %w", err)
	}

	return tx.Commit()
}

// GetPlaylistSongs returns a playlist's songs in insertion order
// (membership rowid). An unknown playlist yields an empty result.
func (d *Database) GetPlaylistSongs(ctx context.Context, playlistID int64) ([]*types.Song, error) {
	start := time.Now()

	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	query := `
		SELECT s.id, s.title, s.artist, s.album, s.filepath, s.cover_path, s.duration, s.date_added
		FROM playlist_songs ps
		JOIN songs s ON ps.song_id = s.id
		WHERE ps.playlist_id = ?
		ORDER BY ps.rowid
	`

	rows, err := d.db.QueryContext(ctx, query, playlistID)
	if err != nil {
		d.debugLog("GetPlaylistSongs", err, time.Since(start))
		return nil, fmt.Errorf("query playlist songs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Printf("Failed to close rows: %v", closeErr)
		}
	}()

	var songs []*types.Song
	for rows.Next() {
		song, err := d.scanSong(rows)
		if err != nil {
			d.debugLog("GetPlaylistSongs", err, time.Since(start))
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		d.debugLog("GetPlaylistSongs", err, time.Since(start))
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return songs, nil
}

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	d.closed = true

	if d.db != nil {
		if _, err := d.db.Exec("PRAGMA optimize"); err != nil {
			log.Printf("Warning: Failed to optimize database: %v", err)
		}
		return d.db.Close()
	}

	return nil
}

func (d *Database) scanSong(scanner interface {
	Scan(dest ...interface{}) error
}) (*types.Song, error) {
	var song types.Song

	err := scanner.Scan(
		&song.ID, &song.Title, &song.Artist, &song.Album,
		&song.Filepath, &song.CoverPath, &song.Duration, &song.DateAdded,
	)
	if err != nil {
		return nil, err
	}

	return &song, nil
}
