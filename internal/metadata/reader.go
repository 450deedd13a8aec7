package metadata

import (
	"crypto/md5"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/gopxl/beep/mp3"

	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/pkg/types"
)

const (
	unknownArtist = "Unknown Artist"
	unknownAlbum  = "Unknown Album"
)

// Reader extracts tags, duration and embedded cover art from audio
// files. Extraction never fails: anything unreadable degrades to
// filename-as-title defaults so a bad file can't abort a library
// scan.
type Reader struct {
	coverCacheDir string
	debug         bool
}

func NewReader(cfg *config.Config) *Reader {
	return &Reader{
		coverCacheDir: cfg.Storage.CoverCacheDir,
		debug:         cfg.Debug,
	}
}

func (r *Reader) Extract(path string) *types.SongMeta {
	meta := &types.SongMeta{
		Title:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Artist: unknownArtist,
		Album:  unknownAlbum,
	}

	file, err := os.Open(path)
	if err != nil {
		r.debugLog("open %s: %v", path, err)
		return meta
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("Failed to close file: %v", closeErr)
		}
	}()

	tags, err := tag.ReadFrom(file)
	if err != nil {
		r.debugLog("read tags from %s: %v", path, err)
	} else {
		if title := strings.TrimSpace(tags.Title()); title != "" {
			meta.Title = title
		}
		if artist := strings.TrimSpace(tags.Artist()); artist != "" {
			meta.Artist = artist
		}
		if album := strings.TrimSpace(tags.Album()); album != "" {
			meta.Album = album
		}
		if picture := tags.Picture(); picture != nil {
			if coverPath := r.cacheCover(path, picture); coverPath != "" {
				meta.CoverPath = &coverPath
			}
		}
	}

	meta.Duration = r.probeDuration(path)

	return meta
}

// probeDuration decodes the mp3 header to get the track length in
// seconds. Returns 0 for anything the decoder rejects.
func (r *Reader) probeDuration(path string) int {
	file, err := os.Open(path)
	if err != nil {
		return 0
	}

	streamer, format, err := mp3.Decode(file)
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			r.debugLog("close after decode error: %v", closeErr)
		}
		return 0
	}
	defer func() {
		if closeErr := streamer.Close(); closeErr != nil {
			r.debugLog("close streamer: %v", closeErr)
		}
	}()

	return int(format.SampleRate.D(streamer.Len()).Seconds())
}

// cacheCover writes the embedded cover image to the cover cache,
// keyed by a hash of the song path so repeated scans reuse the same
// file.
func (r *Reader) cacheCover(songPath string, picture *tag.Picture) string {
	if len(picture.Data) == 0 {
		return ""
	}

	ext := "jpg"
	if strings.Contains(picture.MIMEType, "png") {
		ext = "png"
	}

	name := fmt.Sprintf("%x.%s", md5.Sum([]byte(songPath)), ext)
	coverPath := filepath.Join(r.coverCacheDir, name)

	if _, err := os.Stat(coverPath); err == nil {
		return coverPath
	}

	if err := os.MkdirAll(r.coverCacheDir, 0755); err != nil {
		r.debugLog("create cover cache dir: %v", err)
		return ""
	}

	if err := os.WriteFile(coverPath, picture.Data, 0644); err != nil {
		r.debugLog("write cover for %s: %v", songPath, err)
		return ""
	}

	return coverPath
}

func (r *Reader) debugLog(format string, args ...interface{}) {
	if r.debug {
		log.Printf("[META] "+format, args...)
	}
}
