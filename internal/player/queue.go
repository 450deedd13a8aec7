package player

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rebbit-player/rebbit/pkg/types"
)

type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// StepResult describes what an Advance or Retreat did to the queue.
type StepResult int

const (
	// StepNone: nothing happened (empty queue, or no predecessor).
	StepNone StepResult = iota
	// StepRestart: the current track should restart from zero; the
	// index did not move.
	StepRestart
	// StepMoved: the index moved to a different position.
	StepMoved
	// StepStopped: the end was reached with repeat off; the index
	// stays parked at the last position and transport should stop.
	StepStopped
)

// Queue holds the playback order. Two parallel views are kept: the
// original order the caller loaded, and the active order actually
// played. Active order is always a permutation of original order; it
// differs only while shuffle is on. The index always satisfies
// 0 <= index < len(active) while the queue is non-empty, and is -1
// otherwise.
type Queue struct {
	original []*types.Song
	active   []*types.Song
	index    int
	shuffle  bool
	repeat   RepeatMode
	rng      *rand.Rand
}

func NewQueue() *Queue {
	return &Queue{
		index: -1,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Load replaces the queue contents. startIndex refers to the supplied
// order and must be in range; violating that is a caller bug.
func (q *Queue) Load(songs []*types.Song, startIndex int) error {
	if startIndex < 0 || startIndex >= len(songs) {
		return fmt.Errorf("start index %d out of range for queue of %d songs", startIndex, len(songs))
	}

	q.original = make([]*types.Song, len(songs))
	copy(q.original, songs)

	if q.shuffle {
		q.active = q.shuffled(songs[startIndex])
		q.index = 0
	} else {
		q.active = make([]*types.Song, len(songs))
		copy(q.active, songs)
		q.index = startIndex
	}

	return nil
}

// shuffled builds a new active order with anchor fixed at position 0
// and the rest of the original order randomly permuted behind it.
func (q *Queue) shuffled(anchor *types.Song) []*types.Song {
	rest := make([]*types.Song, 0, len(q.original)-1)
	for _, song := range q.original {
		if song != anchor {
			rest = append(rest, song)
		}
	}

	q.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	return append([]*types.Song{anchor}, rest...)
}

// ToggleShuffle flips the shuffle flag and rebuilds the active order.
// The currently playing song never changes: turning shuffle on anchors
// it at position 0, turning shuffle off relocates the index to the
// song's position in the original order (matched by filepath).
func (q *Queue) ToggleShuffle() bool {
	q.shuffle = !q.shuffle

	if len(q.active) == 0 {
		return q.shuffle
	}

	current := q.active[q.index]
	if q.shuffle {
		q.active = q.shuffled(current)
		q.index = 0
	} else {
		q.active = make([]*types.Song, len(q.original))
		copy(q.active, q.original)
		for i, song := range q.active {
			if song.Filepath == current.Filepath {
				q.index = i
				break
			}
		}
	}

	return q.shuffle
}

// ToggleRepeat cycles off -> all -> one -> off.
func (q *Queue) ToggleRepeat() RepeatMode {
	switch q.repeat {
	case RepeatOff:
		q.repeat = RepeatAll
	case RepeatAll:
		q.repeat = RepeatOne
	default:
		q.repeat = RepeatOff
	}
	return q.repeat
}

// Advance moves to the next track. With repeat-one the index never
// moves and the current track restarts. Past the last track, repeat-
// all wraps to the front; repeat-off stops with the index held at the
// end.
func (q *Queue) Advance() StepResult {
	if len(q.active) == 0 {
		return StepNone
	}

	switch {
	case q.repeat == RepeatOne:
		return StepRestart
	case q.index < len(q.active)-1:
		q.index++
		return StepMoved
	case q.repeat == RepeatAll:
		q.index = 0
		return StepMoved
	default:
		return StepStopped
	}
}

// Retreat moves to the previous track, wrapping to the last track
// when repeat-all is on. At the front with repeat off it does
// nothing. The position-based restart behavior of "previous" lives in
// the transport, not here.
func (q *Queue) Retreat() StepResult {
	if len(q.active) == 0 {
		return StepNone
	}

	switch {
	case q.index > 0:
		q.index--
		return StepMoved
	case q.repeat == RepeatAll:
		q.index = len(q.active) - 1
		return StepMoved
	default:
		return StepNone
	}
}

func (q *Queue) Current() *types.Song {
	if q.index < 0 || q.index >= len(q.active) {
		return nil
	}
	return q.active[q.index]
}

func (q *Queue) Index() int {
	return q.index
}

func (q *Queue) Len() int {
	return len(q.active)
}

func (q *Queue) Shuffle() bool {
	return q.shuffle
}

func (q *Queue) Repeat() RepeatMode {
	return q.repeat
}

// Songs returns a copy of the active order.
func (q *Queue) Songs() []*types.Song {
	out := make([]*types.Song, len(q.active))
	copy(out, q.active)
	return out
}

// Original returns a copy of the order the queue was loaded with.
func (q *Queue) Original() []*types.Song {
	out := make([]*types.Song, len(q.original))
	copy(out, q.original)
	return out
}
