package types

import (
	"context"
	"time"
)

// Output is the audio playback backend. It plays one local file at a
// time; Play replaces whatever was playing before. The finished
// callback fires once per track that reaches its natural end, never
// for tracks replaced by another Play or by Stop.
type Output interface {
	Play(path string) error
	Pause()
	Resume()
	Stop()
	Seek(position time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	IsPlaying() bool
	OnFinished(callback func())
	Close() error
}

// MetadataReader extracts tags from an audio file. Extract never
// fails: unreadable files yield filename-based defaults.
type MetadataReader interface {
	Extract(path string) *SongMeta
}

// MetadataWriter rewrites tags in place. A failed write must leave
// the original file intact.
type MetadataWriter interface {
	Write(path, title, artist, album string, coverPath *string) error
}

// Searcher resolves a free-text query or a direct URL into candidate
// tracks.
type Searcher interface {
	Search(ctx context.Context, query string) ([]*TrackCandidate, error)
}

// Downloader fetches best-available audio for a URL into destDir,
// reporting byte progress through the hook. The returned path points
// at the converted audio file.
type Downloader interface {
	Download(ctx context.Context, url, destDir string, progress func(downloaded, total int64)) (string, error)
}
