package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/time/rate"

	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/pkg/types"
)

// Searcher resolves queries against the video platform. A free-text
// query becomes a bounded platform search; a direct URL is inspected
// as-is and may describe a whole playlist. Extraction is flat: no
// media is downloaded here.
type Searcher struct {
	limiter     *rate.Limiter
	searchLimit int
	debug       bool
}

func NewSearcher(cfg *config.Config) *Searcher {
	return &Searcher{
		limiter:     rate.NewLimiter(rate.Limit(cfg.Fetch.RequestsPerSecond), cfg.Fetch.BurstSize),
		searchLimit: cfg.Fetch.SearchLimit,
		debug:       cfg.Debug,
	}
}

type extractedInfo struct {
	Title      string          `json:"title"`
	Uploader   string          `json:"uploader"`
	WebpageURL string          `json:"webpage_url"`
	URL        string          `json:"url"`
	Duration   float64         `json:"duration"`
	Thumbnail  string          `json:"thumbnail"`
	Entries    []extractedInfo `json:"entries"`
}

func (s *Searcher) Search(ctx context.Context, query string) ([]*types.TrackCandidate, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := strings.TrimSpace(query)
	direct := isDirectURL(target)
	if !direct {
		target = fmt.Sprintf("ytsearch%d:%s", s.searchLimit, target)
	}

	dl := ytdlp.New().
		DumpSingleJSON().
		FlatPlaylist().
		SkipDownload().
		NoWarnings()

	result, err := dl.Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("extract info: %w", err)
	}

	var info extractedInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, fmt.Errorf("parse extractor output: %w", err)
	}

	if direct && len(info.Entries) > 0 {
		// A URL that expands into entries is a playlist; report it as
		// one descriptor rather than exploding it into tracks.
		return []*types.TrackCandidate{{
			Title:      orDefault(info.Title, "Unknown Playlist"),
			Uploader:   info.Uploader,
			URL:        orDefault(info.WebpageURL, query),
			Thumbnail:  info.Thumbnail,
			IsPlaylist: true,
			TrackCount: len(info.Entries),
		}}, nil
	}

	if direct {
		return []*types.TrackCandidate{candidateFrom(&info)}, nil
	}

	candidates := make([]*types.TrackCandidate, 0, len(info.Entries))
	for i := range info.Entries {
		candidates = append(candidates, candidateFrom(&info.Entries[i]))
	}

	s.debugLog("Query %q resolved to %d candidates", query, len(candidates))
	return candidates, nil
}

func candidateFrom(info *extractedInfo) *types.TrackCandidate {
	url := info.WebpageURL
	if url == "" {
		url = info.URL
	}

	return &types.TrackCandidate{
		Title:     info.Title,
		Uploader:  info.Uploader,
		URL:       url,
		Duration:  int(info.Duration),
		Thumbnail: info.Thumbnail,
	}
}

func isDirectURL(query string) bool {
	return strings.HasPrefix(query, "http://") ||
		strings.HasPrefix(query, "https://") ||
		strings.HasPrefix(query, "www.")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (s *Searcher) debugLog(format string, args ...interface{}) {
	if s.debug {
		log.Printf("[FETCH] "+format, args...)
	}
}
