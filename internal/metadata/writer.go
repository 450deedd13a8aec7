package metadata

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
)

// Writer rewrites ID3v2 tags in place. id3v2 saves through a temp
// file and rename, so a failed write leaves the original intact.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Write(path, title, artist, album string, coverPath *string) error {
	tags, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tags: %w", err)
	}
	defer func() {
		_ = tags.Close()
	}()

	tags.SetDefaultEncoding(id3v2.EncodingUTF8)

	if title != "" {
		tags.SetTitle(title)
	}
	if artist != "" {
		tags.SetArtist(artist)
	}
	if album != "" {
		tags.SetAlbum(album)
	}

	if coverPath != nil && *coverPath != "" {
		data, err := os.ReadFile(*coverPath)
		if err != nil {
			return fmt.Errorf("read cover image: %w", err)
		}

		mimeType := mime.TypeByExtension(filepath.Ext(*coverPath))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}

		tags.DeleteFrames(tags.CommonID("Attached picture"))
		tags.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    mimeType,
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     data,
		})
	}

	if err := tags.Save(); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}

	return nil
}

// RenameForTags derives a new filename from the song's tags and
// renames the backing file, returning the new path. The rename is
// deliberately a separate step from Write so callers decide whether
// filesystem identity follows the tags. Returns the original path
// unchanged when the derived name is already in place.
func RenameForTags(path, title, artist string) (string, error) {
	base := safeFilename(fmt.Sprintf("%s - %s", artist, title))
	if base == "" {
		return path, nil
	}

	newPath := filepath.Join(filepath.Dir(path), base+filepath.Ext(path))
	if newPath == path {
		return path, nil
	}

	if _, err := os.Stat(newPath); err == nil {
		return path, fmt.Errorf("target already exists: %s", newPath)
	}

	if err := os.Rename(path, newPath); err != nil {
		return path, fmt.Errorf("rename file: %w", err)
	}

	return newPath, nil
}

func safeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-",
		"?", "-", "\"", "-", "<", "-", ">", "-", "|", "-",
	)
	safe := strings.TrimSpace(replacer.Replace(name))

	if len(safe) > 100 {
		safe = safe[:100]
	}

	return safe
}
