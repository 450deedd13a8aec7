package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/pkg/types"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.Storage.EnableWAL = false

	db, err := NewDatabase(cfg)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	return db
}

func addTestSong(t *testing.T, db *Database, title, artist, path string) *types.Song {
	t.Helper()

	song := &types.Song{
		Title:    title,
		Artist:   artist,
		Album:    "Test Album",
		Filepath: path,
		Duration: 180,
	}

	if err := db.AddSong(context.Background(), song); err != nil {
		t.Fatalf("Failed to add song %s: %v", path, err)
	}

	return song
}

func TestAddSongIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "First", "Artist", "/music/a.mp3")
	// Same path again with different tags must not create a second row
	// or overwrite the first.
	addTestSong(t, db, "Different Title", "Other Artist", "/music/a.mp3")

	songs, err := db.ListSongs(ctx)
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}

	if len(songs) != 1 {
		t.Fatalf("Expected 1 song after duplicate insert, got %d", len(songs))
	}
	if songs[0].Title != "First" {
		t.Errorf("Expected original title to survive, got %q", songs[0].Title)
	}
}

func TestAddSongRejectsEmptyPath(t *testing.T) {
	db := setupTestDB(t)

	err := db.AddSong(context.Background(), &types.Song{Title: "No Path"})
	if err == nil {
		t.Fatal("Expected error for song without filepath")
	}
}

func TestSongExists(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "Song", "Artist", "/music/known.mp3")

	exists, err := db.SongExists(ctx, "/music/known.mp3")
	if err != nil {
		t.Fatalf("SongExists failed: %v", err)
	}
	if !exists {
		t.Error("Expected known path to exist")
	}

	exists, err = db.SongExists(ctx, "/music/unknown.mp3")
	if err != nil {
		t.Fatalf("SongExists failed: %v", err)
	}
	if exists {
		t.Error("Expected unknown path to not exist")
	}
}

func TestListSongsOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "banana", "A", "/music/1.mp3")
	addTestSong(t, db, "Apple", "A", "/music/2.mp3")
	addTestSong(t, db, "cherry", "A", "/music/3.mp3")
	// Case-insensitive title tie, broken by filepath.
	addTestSong(t, db, "apple", "A", "/music/0.mp3")

	songs, err := db.ListSongs(ctx)
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}

	expected := []string{"/music/0.mp3", "/music/2.mp3", "/music/1.mp3", "/music/3.mp3"}
	if len(songs) != len(expected) {
		t.Fatalf("Expected %d songs, got %d", len(expected), len(songs))
	}
	for i, path := range expected {
		if songs[i].Filepath != path {
			t.Errorf("Position %d: expected %s, got %s", i, path, songs[i].Filepath)
		}
	}
}

func TestGetSongAbsent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	song, err := db.GetSong(ctx, 999)
	if err != nil {
		t.Fatalf("GetSong failed: %v", err)
	}
	if song != nil {
		t.Error("Expected nil for unknown song id")
	}

	song, err = db.GetSongByPath(ctx, "/nowhere.mp3")
	if err != nil {
		t.Fatalf("GetSongByPath failed: %v", err)
	}
	if song != nil {
		t.Error("Expected nil for unknown filepath")
	}
}

func TestUpdateSong(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "Old Title", "Old Artist", "/music/edit.mp3")
	song, err := db.GetSongByPath(ctx, "/music/edit.mp3")
	if err != nil || song == nil {
		t.Fatalf("Failed to look up inserted song: %v", err)
	}

	if err := db.UpdateSong(ctx, song.ID, "New Title", "New Artist", "New Album", nil, ""); err != nil {
		t.Fatalf("UpdateSong failed: %v", err)
	}

	updated, err := db.GetSong(ctx, song.ID)
	if err != nil {
		t.Fatalf("GetSong failed: %v", err)
	}
	if updated.Title != "New Title" || updated.Artist != "New Artist" || updated.Album != "New Album" {
		t.Errorf("Metadata not updated: %+v", updated)
	}
	if updated.Filepath != "/music/edit.mp3" {
		t.Errorf("Filepath changed without newPath: %s", updated.Filepath)
	}
}

func TestUpdateSongRepointsPath(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "Song", "Artist", "/music/before.mp3")
	song, _ := db.GetSongByPath(ctx, "/music/before.mp3")

	if err := db.UpdateSong(ctx, song.ID, "Song", "Artist", "Album", nil, "/music/after.mp3"); err != nil {
		t.Fatalf("UpdateSong with newPath failed: %v", err)
	}

	moved, err := db.GetSongByPath(ctx, "/music/after.mp3")
	if err != nil {
		t.Fatalf("GetSongByPath failed: %v", err)
	}
	if moved == nil || moved.ID != song.ID {
		t.Error("Expected song to be reachable at the new path")
	}
}

func TestUpdateSongPathConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "One", "Artist", "/music/one.mp3")
	addTestSong(t, db, "Two", "Artist", "/music/two.mp3")
	one, _ := db.GetSongByPath(ctx, "/music/one.mp3")

	err := db.UpdateSong(ctx, one.ID, "One", "Artist", "Album", nil, "/music/two.mp3")
	if !errors.Is(err, ErrPathConflict) {
		t.Fatalf("Expected ErrPathConflict, got %v", err)
	}

	// The conflicting update must not have touched either row.
	unchanged, _ := db.GetSongByPath(ctx, "/music/one.mp3")
	if unchanged == nil || unchanged.ID != one.ID {
		t.Error("Expected original song to keep its path after conflict")
	}
}

func TestCreatePlaylistUniqueness(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created, err := db.CreatePlaylist(ctx, "Favorites")
	if err != nil {
		t.Fatalf("CreatePlaylist failed: %v", err)
	}
	if !created {
		t.Fatal("Expected first create to succeed")
	}

	created, err = db.CreatePlaylist(ctx, "Favorites")
	if err != nil {
		t.Fatalf("CreatePlaylist failed: %v", err)
	}
	if created {
		t.Error("Expected duplicate name to be rejected")
	}

	playlists, err := db.ListPlaylists(ctx)
	if err != nil {
		t.Fatalf("ListPlaylists failed: %v", err)
	}
	if len(playlists) != 1 {
		t.Errorf("Expected 1 playlist, got %d", len(playlists))
	}
}

func TestRenamePlaylist(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.CreatePlaylist(ctx, "Old Name")
	db.CreatePlaylist(ctx, "Taken")

	playlists, _ := db.ListPlaylists(ctx)
	var target int64
	for _, p := range playlists {
		if p.Name == "Old Name" {
			target = p.ID
		}
	}

	renamed, err := db.RenamePlaylist(ctx, target, "Taken")
	if err != nil {
		t.Fatalf("RenamePlaylist failed: %v", err)
	}
	if renamed {
		t.Error("Expected rename to a taken name to be rejected")
	}

	renamed, err = db.RenamePlaylist(ctx, target, "New Name")
	if err != nil {
		t.Fatalf("RenamePlaylist failed: %v", err)
	}
	if !renamed {
		t.Error("Expected rename to a free name to succeed")
	}

	// Renaming to the playlist's own current name succeeds.
	renamed, err = db.RenamePlaylist(ctx, target, "New Name")
	if err != nil {
		t.Fatalf("RenamePlaylist failed: %v", err)
	}
	if !renamed {
		t.Error("Expected self-rename to succeed")
	}
}

func TestPlaylistMembership(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "Zebra", "Artist", "/music/z.mp3")
	addTestSong(t, db, "Alpha", "Artist", "/music/a.mp3")
	db.CreatePlaylist(ctx, "Mix")
	playlists, _ := db.ListPlaylists(ctx)
	pid := playlists[0].ID

	// Insertion order, not title order.
	if err := db.AddToPlaylist(ctx, pid, "/music/z.mp3"); err != nil {
		t.Fatalf("AddToPlaylist failed: %v", err)
	}
	if err := db.AddToPlaylist(ctx, pid, "/music/a.mp3"); err != nil {
		t.Fatalf("AddToPlaylist failed: %v", err)
	}
	// Duplicate membership is a no-op.
	if err := db.AddToPlaylist(ctx, pid, "/music/z.mp3"); err != nil {
		t.Fatalf("Duplicate AddToPlaylist failed: %v", err)
	}

	songs, err := db.GetPlaylistSongs(ctx, pid)
	if err != nil {
		t.Fatalf("GetPlaylistSongs failed: %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("Expected 2 songs, got %d", len(songs))
	}
	if songs[0].Filepath != "/music/z.mp3" || songs[1].Filepath != "/music/a.mp3" {
		t.Errorf("Expected insertion order, got %s then %s", songs[0].Filepath, songs[1].Filepath)
	}

	summaries, _ := db.ListPlaylists(ctx)
	if summaries[0].SongCount != 2 {
		t.Errorf("Expected song count 2, got %d", summaries[0].SongCount)
	}

	if err := db.RemoveFromPlaylist(ctx, pid, "/music/z.mp3"); err != nil {
		t.Fatalf("RemoveFromPlaylist failed: %v", err)
	}
	songs, _ = db.GetPlaylistSongs(ctx, pid)
	if len(songs) != 1 || songs[0].Filepath != "/music/a.mp3" {
		t.Errorf("Expected only /music/a.mp3 to remain, got %d songs", len(songs))
	}
}

func TestMembershipUnknownTargetsNoOp(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "Song", "Artist", "/music/s.mp3")
	db.CreatePlaylist(ctx, "Mix")
	playlists, _ := db.ListPlaylists(ctx)
	pid := playlists[0].ID

	if err := db.AddToPlaylist(ctx, pid, "/music/missing.mp3"); err != nil {
		t.Errorf("Expected no-op for unknown song, got %v", err)
	}
	if err := db.AddToPlaylist(ctx, pid+100, "/music/s.mp3"); err != nil {
		t.Errorf("Expected no-op for unknown playlist, got %v", err)
	}
	if err := db.RemoveFromPlaylist(ctx, pid, "/music/missing.mp3"); err != nil {
		t.Errorf("Expected no-op removal for unknown song, got %v", err)
	}

	songs, _ := db.GetPlaylistSongs(ctx, pid)
	if len(songs) != 0 {
		t.Errorf("Expected empty playlist, got %d songs", len(songs))
	}
}

func TestDeletePlaylistCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	addTestSong(t, db, "Song", "Artist", "/music/s.mp3")
	db.CreatePlaylist(ctx, "Doomed")
	playlists, _ := db.ListPlaylists(ctx)
	pid := playlists[0].ID
	db.AddToPlaylist(ctx, pid, "/music/s.mp3")

	if err := db.DeletePlaylist(ctx, pid); err != nil {
		t.Fatalf("DeletePlaylist failed: %v", err)
	}

	remaining, _ := db.ListPlaylists(ctx)
	if len(remaining) != 0 {
		t.Errorf("Expected no playlists, got %d", len(remaining))
	}

	// The song itself survives playlist deletion.
	songs, _ := db.ListSongs(ctx)
	if len(songs) != 1 {
		t.Errorf("Expected song to survive playlist deletion, got %d songs", len(songs))
	}

	var count int
	if err := db.GetDB().QueryRow("SELECT COUNT(*) FROM playlist_songs").Scan(&count); err != nil {
		t.Fatalf("Failed to count membership rows: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected membership rows to cascade, found %d", count)
	}
}

func TestClosedDatabaseRejectsOperations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := db.ListSongs(ctx); err == nil {
		t.Error("Expected error after close")
	}
	if err := db.AddSong(ctx, &types.Song{Filepath: "/x.mp3"}); err == nil {
		t.Error("Expected error after close")
	}
}
