package audio

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"

	"github.com/rebbit-player/rebbit/internal/config"
)

var speakerInitialized = false
var speakerMutex sync.Mutex

// Output plays local audio files through the system speaker. One
// track at a time: Play replaces the current track. The finished
// callback fires only when a track reaches its natural end, never
// when it is replaced or stopped.
type Output struct {
	mu sync.Mutex

	cfg        *config.Config
	sampleRate beep.SampleRate
	fileRate   beep.SampleRate
	streamer   beep.StreamSeekCloser
	ctrl       *beep.Ctrl
	volume     *effects.Volume
	duration   time.Duration
	playing    bool
	paused     bool
	generation int
	finished   func()
	endSignal  func()
	debug      bool
}

func NewOutput(cfg *config.Config) (*Output, error) {
	o := &Output{
		cfg:        cfg,
		sampleRate: beep.SampleRate(cfg.Audio.SampleRate),
		debug:      cfg.Debug,
	}

	if err := o.initializeSpeaker(); err != nil {
		return nil, fmt.Errorf("initialize speaker: %w", err)
	}

	return o, nil
}

func (o *Output) initializeSpeaker() error {
	speakerMutex.Lock()
	defer speakerMutex.Unlock()

	if speakerInitialized {
		return nil
	}

	bufferSize := o.sampleRate.N(time.Second / 10)
	if runtime.GOOS == "linux" {
		bufferSize = o.sampleRate.N(time.Second / 5)
	}

	if err := speaker.Init(o.sampleRate, bufferSize); err != nil {
		return fmt.Errorf("speaker initialization failed: %w", err)
	}

	speakerInitialized = true
	o.debugLog("Speaker initialized with sample rate %d, buffer size %d", o.sampleRate, bufferSize)
	return nil
}

// Play starts playback of the file at path, replacing whatever was
// playing before.
func (o *Output) Play(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}

	streamer, format, err := mp3.Decode(file)
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			o.debugLog("Failed to close file after decode error: %v", closeErr)
		}
		return fmt.Errorf("decode mp3: %w", err)
	}

	o.mu.Lock()
	o.stopLocked()

	o.streamer = streamer
	o.fileRate = format.SampleRate
	o.duration = format.SampleRate.D(streamer.Len())
	o.generation++
	generation := o.generation

	resampled := beep.Resample(4, format.SampleRate, o.sampleRate, streamer)
	o.ctrl = &beep.Ctrl{Streamer: resampled, Paused: false}
	o.volume = &effects.Volume{
		Streamer: o.ctrl,
		Base:     2,
		Volume:   (o.cfg.Audio.DefaultVolume - 1) * 5,
		Silent:   o.cfg.Audio.DefaultVolume == 0,
	}

	// The callback fires on the speaker goroutine with the speaker
	// mutex held, so it must only signal: the watcher goroutine runs
	// the finished chain, which is free to re-enter the speaker.
	signal := o.startEndWatcher(generation)
	o.endSignal = signal

	speaker.Clear()
	speaker.Play(beep.Seq(o.volume, beep.Callback(signal)))

	o.playing = true
	o.paused = false
	o.mu.Unlock()

	o.debugLog("Started playback of %s, duration %v", path, format.SampleRate.D(streamer.Len()))
	return nil
}

// startEndWatcher arms end-of-media reporting for the track with the
// given generation. The returned signal function never blocks and
// never runs the finished callback inline; a dedicated goroutine
// picks the signal up and calls handleTrackEnd. Calling the signal
// more than once is harmless.
func (o *Output) startEndWatcher(generation int) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		<-done
		o.handleTrackEnd(generation)
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

// handleTrackEnd runs on the watcher goroutine when the stream
// drains. The generation guard drops callbacks from tracks that were
// already replaced or stopped.
func (o *Output) handleTrackEnd(generation int) {
	o.mu.Lock()
	if generation != o.generation || !o.playing {
		o.mu.Unlock()
		return
	}
	o.playing = false
	o.paused = false
	callback := o.finished
	o.mu.Unlock()

	if callback != nil {
		callback()
	}
}

func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctrl != nil && o.playing && !o.paused {
		speaker.Lock()
		o.ctrl.Paused = true
		speaker.Unlock()
		o.paused = true
	}
}

func (o *Output) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctrl != nil && o.playing && o.paused {
		speaker.Lock()
		o.ctrl.Paused = false
		speaker.Unlock()
		o.paused = false
	}
}

func (o *Output) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

func (o *Output) stopLocked() {
	if o.playing || o.paused {
		speaker.Clear()
	}

	if o.streamer != nil {
		if closeErr := o.streamer.Close(); closeErr != nil {
			o.debugLog("Error closing streamer: %v", closeErr)
		}
		o.streamer = nil
	}

	o.generation++
	o.ctrl = nil
	o.volume = nil
	o.duration = 0
	o.playing = false
	o.paused = false

	// Release the watcher; its generation is stale now, so the
	// finished callback stays silent.
	if o.endSignal != nil {
		o.endSignal()
		o.endSignal = nil
	}
}

// Seek moves playback to position, clamped to the track bounds.
func (o *Output) Seek(position time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return nil
	}

	pos := o.fileRate.N(position)
	if pos < 0 {
		pos = 0
	}
	if max := o.streamer.Len() - 1; pos > max {
		pos = max
	}

	speaker.Lock()
	err := o.streamer.Seek(pos)
	speaker.Unlock()

	if err != nil {
		o.debugLog("Seek failed: %v", err)
		return err
	}

	return nil
}

func (o *Output) SetVolume(volume float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.volume != nil {
		speaker.Lock()
		o.volume.Volume = (volume - 1) * 5
		o.volume.Silent = volume == 0
		speaker.Unlock()
	}
}

func (o *Output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return 0
	}

	speaker.Lock()
	pos := o.streamer.Position()
	speaker.Unlock()

	return o.fileRate.D(pos)
}

func (o *Output) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duration
}

func (o *Output) IsPlaying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playing && !o.paused
}

func (o *Output) OnFinished(callback func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = callback
}

func (o *Output) Close() error {
	o.Stop()
	return nil
}

func (o *Output) debugLog(format string, args ...interface{}) {
	if o.debug {
		log.Printf("[AUDIO] "+format, args...)
	}
}
