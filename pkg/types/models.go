package types

import (
	"time"
)

// Song is a catalog entry. The filesystem path is the identity key:
// two songs never share a filepath, and renaming the backing file
// changes the key (see storage.UpdateSong).
type Song struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Artist    string    `db:"artist"`
	Album     string    `db:"album"`
	Filepath  string    `db:"filepath"`
	CoverPath *string   `db:"cover_path"`
	Duration  int       `db:"duration"`
	DateAdded time.Time `db:"date_added"`
}

type Playlist struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// PlaylistSummary is a playlist row plus a live membership count,
// as returned by storage.ListPlaylists.
type PlaylistSummary struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	SongCount int       `db:"song_count"`
	CreatedAt time.Time `db:"created_at"`
}

// SongMeta is what the metadata reader produces for a file on disk.
// Extraction never fails: missing or unreadable tags degrade to the
// filename-as-title defaults.
type SongMeta struct {
	Title     string
	Artist    string
	Album     string
	Duration  int
	CoverPath *string
}

// TrackCandidate is one search result from the fetch backend: either a
// single downloadable track or a playlist descriptor.
type TrackCandidate struct {
	Title      string `json:"title"`
	Uploader   string `json:"uploader"`
	URL        string `json:"webpage_url"`
	Duration   int    `json:"duration"`
	Thumbnail  string `json:"thumbnail"`
	IsPlaylist bool   `json:"is_playlist"`
	TrackCount int    `json:"track_count"`
}

type FetchState int

const (
	FetchStatePending FetchState = iota
	FetchStateDownloading
	FetchStateCompleted
	FetchStateFailed
)

func (s FetchState) String() string {
	switch s {
	case FetchStatePending:
		return "Pending"
	case FetchStateDownloading:
		return "Downloading"
	case FetchStateCompleted:
		return "Completed"
	case FetchStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// FetchProgress is a snapshot of a download task.
type FetchProgress struct {
	TaskID     string     `json:"task_id"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Downloaded int64      `json:"downloaded"`
	Total      int64      `json:"total"`
	Percent    float64    `json:"percent"`
	State      FetchState `json:"state"`
	Error      error      `json:"error,omitempty"`
	StartTime  time.Time  `json:"start_time"`
}
