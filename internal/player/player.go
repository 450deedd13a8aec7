package player

import (
	"log"
	"sync"
	"time"

	"github.com/rebbit-player/rebbit/pkg/types"
)

// prevRestartThreshold: "previous" restarts the current track instead
// of moving back once playback is this far in.
const prevRestartThreshold = 3 * time.Second

// Player is the transport over a Queue and an audio Output. All
// mutation is expected to come from the owning goroutine (the session
// dispatch loop); the end-of-media callback from the output is the
// one external entry point and is serialized through the same mutex.
//
// Observers are notified after the internal state settles, outside the
// lock, and the song-changed notification always precedes the
// state-changed notification for the same track start.
type Player struct {
	mu      sync.Mutex
	queue   *Queue
	output  types.Output
	stopped bool
	debug   bool

	onSongChanged    func(*types.Song)
	onStateChanged   func(playing bool)
	onShuffleChanged func(shuffle bool)
	onRepeatChanged  func(mode RepeatMode)
}

func NewPlayer(output types.Output, debug bool) *Player {
	p := &Player{
		queue:  NewQueue(),
		output: output,
		debug:  debug,
	}

	output.OnFinished(func() {
		p.Next()
	})

	return p
}

func (p *Player) OnSongChanged(callback func(*types.Song)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSongChanged = callback
}

func (p *Player) OnStateChanged(callback func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStateChanged = callback
}

func (p *Player) OnShuffleChanged(callback func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onShuffleChanged = callback
}

func (p *Player) OnRepeatChanged(callback func(RepeatMode)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRepeatChanged = callback
}

// LoadQueue replaces the queue and starts playing the song at
// startIndex (of the supplied order). An out-of-range startIndex is a
// caller bug and returns an error without touching existing state.
func (p *Player) LoadQueue(songs []*types.Song, startIndex int) error {
	p.mu.Lock()

	if err := p.queue.Load(songs, startIndex); err != nil {
		p.mu.Unlock()
		return err
	}

	emissions := p.playCurrentLocked()
	p.mu.Unlock()

	fire(emissions)
	return nil
}

// playCurrentLocked starts playback of the track at the current index
// and returns the notifications to deliver once the lock is released:
// song-changed first, then state-changed.
func (p *Player) playCurrentLocked() []func() {
	song := p.queue.Current()
	if song == nil {
		return nil
	}

	var emissions []func()
	if cb := p.onSongChanged; cb != nil {
		emissions = append(emissions, func() { cb(song) })
	}

	if err := p.output.Play(song.Filepath); err != nil {
		p.debugLog("playback failed for %s: %v", song.Filepath, err)
		p.stopped = true
		if cb := p.onStateChanged; cb != nil {
			emissions = append(emissions, func() { cb(false) })
		}
		return emissions
	}

	p.stopped = false
	if cb := p.onStateChanged; cb != nil {
		emissions = append(emissions, func() { cb(true) })
	}
	return emissions
}

// Next advances the queue: repeat-one restarts the current track,
// otherwise the successor plays, wrapping under repeat-all. At the
// end with repeat off the transport stops and the index stays parked
// on the last track.
func (p *Player) Next() {
	p.mu.Lock()

	var emissions []func()
	switch p.queue.Advance() {
	case StepRestart, StepMoved:
		emissions = p.playCurrentLocked()
	case StepStopped:
		p.output.Stop()
		p.stopped = true
		if cb := p.onStateChanged; cb != nil {
			emissions = append(emissions, func() { cb(false) })
		}
	}

	p.mu.Unlock()
	fire(emissions)
}

// Prev restarts the current track when more than the threshold into
// it; otherwise it moves to the predecessor, wrapping under
// repeat-all. At the front with repeat off it does nothing.
func (p *Player) Prev() {
	p.mu.Lock()

	if p.queue.Current() != nil && p.output.Position() > prevRestartThreshold {
		if err := p.output.Seek(0); err != nil {
			p.debugLog("restart seek failed: %v", err)
		}
		p.mu.Unlock()
		return
	}

	var emissions []func()
	if p.queue.Retreat() == StepMoved {
		emissions = p.playCurrentLocked()
	}

	p.mu.Unlock()
	fire(emissions)
}

// TogglePlayPause pauses when playing and resumes when paused with a
// loaded track. When the transport stopped (end of queue, or a failed
// play), Resume would be a silent no-op on the backend, so the current
// track is started from scratch instead. Does nothing on an empty
// queue.
func (p *Player) TogglePlayPause() {
	p.mu.Lock()

	var emissions []func()
	switch {
	case p.output.IsPlaying():
		p.output.Pause()
		if cb := p.onStateChanged; cb != nil {
			emissions = append(emissions, func() { cb(false) })
		}
	case p.queue.Current() == nil:
	case p.stopped:
		emissions = p.playCurrentLocked()
	default:
		p.output.Resume()
		if cb := p.onStateChanged; cb != nil {
			emissions = append(emissions, func() { cb(true) })
		}
	}

	p.mu.Unlock()
	fire(emissions)
}

// ToggleShuffle flips shuffle without interrupting playback: the
// currently playing song keeps playing and anchors the new order.
func (p *Player) ToggleShuffle() {
	p.mu.Lock()
	shuffle := p.queue.ToggleShuffle()
	cb := p.onShuffleChanged
	p.mu.Unlock()

	if cb != nil {
		cb(shuffle)
	}
}

func (p *Player) ToggleRepeat() {
	p.mu.Lock()
	mode := p.queue.ToggleRepeat()
	cb := p.onRepeatChanged
	p.mu.Unlock()

	if cb != nil {
		cb(mode)
	}
}

// Seek delegates to the output backend; out-of-range positions are
// clamped there.
func (p *Player) Seek(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output.Seek(position)
}

func (p *Player) Position() time.Duration {
	return p.output.Position()
}

func (p *Player) Duration() time.Duration {
	return p.output.Duration()
}

func (p *Player) IsPlaying() bool {
	return p.output.IsPlaying()
}

func (p *Player) CurrentSong() *types.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Current()
}

func (p *Player) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Index()
}

func (p *Player) IsShuffle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Shuffle()
}

func (p *Player) RepeatMode() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Repeat()
}

// ActiveQueue returns a copy of the active playback order.
func (p *Player) ActiveQueue() []*types.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Songs()
}

// OriginalQueue returns a copy of the order the queue was loaded with.
func (p *Player) OriginalQueue() []*types.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Original()
}

func (p *Player) Close() error {
	return p.output.Close()
}

func (p *Player) debugLog(format string, args ...interface{}) {
	if p.debug {
		log.Printf("[PLAYER] "+format, args...)
	}
}

func fire(emissions []func()) {
	for _, emit := range emissions {
		emit()
	}
}
