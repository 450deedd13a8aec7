package search

import (
	"context"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/rebbit-player/rebbit/internal/storage"
	"github.com/rebbit-player/rebbit/pkg/types"
)

// Engine filters the local catalog with substring and Levenshtein
// scoring over title, artist and album.
type Engine struct {
	storage *storage.Database
}

func NewEngine(db *storage.Database) *Engine {
	return &Engine{
		storage: db,
	}
}

type scoredSong struct {
	song  *types.Song
	score float64
}

func (e *Engine) Search(ctx context.Context, query string, limit int) ([]*types.Song, error) {
	if query == "" {
		return nil, nil
	}

	songs, err := e.storage.ListSongs(ctx)
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)

	var scored []scoredSong
	for _, song := range songs {
		score := scoreSong(song, queryLower)
		if score > 0 {
			scored = append(scored, scoredSong{song: song, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	result := make([]*types.Song, 0, len(scored))
	for _, s := range scored {
		result = append(result, s.song)
	}

	return result, nil
}

func scoreSong(song *types.Song, queryLower string) float64 {
	score := 0.0

	title := strings.ToLower(song.Title)
	if strings.Contains(title, queryLower) {
		score += 10.0
	}

	distance := fuzzy.LevenshteinDistance(queryLower, title)
	if distance <= len(queryLower)/2 {
		score += float64(len(queryLower) - distance)
	}

	if strings.Contains(strings.ToLower(song.Artist), queryLower) {
		score += 7.0
	}

	if strings.Contains(strings.ToLower(song.Album), queryLower) {
		score += 5.0
	}

	return score
}
