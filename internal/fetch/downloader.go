package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// YTDownloader fetches best-available audio for a URL, converts it to
// mp3 and embeds the thumbnail and tags, mirroring what the platform
// extractor is capable of. It implements types.Downloader.
type YTDownloader struct{}

func NewYTDownloader() *YTDownloader {
	return &YTDownloader{}
}

func (d *YTDownloader) Download(ctx context.Context, url, destDir string, progress func(downloaded, total int64)) (string, error) {
	dl := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality("192K").
		EmbedThumbnail().
		EmbedMetadata().
		RestrictFilenames().
		NoWarnings().
		Output(destDir + "/%(title)s.%(ext)s")

	if progress != nil {
		dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			progress(int64(update.DownloadedBytes), int64(update.TotalBytes))
		})
	}

	result, err := dl.Run(ctx, url)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}

	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 || info[0].Filename == nil {
		// The file landed but yt-dlp didn't report where; the next
		// library scan will pick it up from the music directory.
		return "", nil
	}

	return *info[0].Filename, nil
}
