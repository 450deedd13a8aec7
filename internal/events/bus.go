package events

import (
	"log"
	"sync"
)

// Bus is the process-wide change notification point. It carries three
// signals: the library changed, the set of playlists changed, and a
// specific playlist's membership changed. Delivery is synchronous and
// in subscription order; a subscriber that panics is logged and does
// not stop delivery to the rest. There is no replay for late
// subscribers.
type Bus struct {
	mu sync.RWMutex

	libraryChanged     []func()
	playlistSetChanged []func()
	playlistContent    []func(playlistID int64)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) SubscribeLibraryChanged(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.libraryChanged = append(b.libraryChanged, handler)
}

func (b *Bus) SubscribePlaylistSetChanged(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playlistSetChanged = append(b.playlistSetChanged, handler)
}

func (b *Bus) SubscribePlaylistContentChanged(handler func(playlistID int64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playlistContent = append(b.playlistContent, handler)
}

func (b *Bus) PublishLibraryChanged() {
	b.mu.RLock()
	handlers := make([]func(), len(b.libraryChanged))
	copy(handlers, b.libraryChanged)
	b.mu.RUnlock()

	for _, handler := range handlers {
		deliver(handler)
	}
}

func (b *Bus) PublishPlaylistSetChanged() {
	b.mu.RLock()
	handlers := make([]func(), len(b.playlistSetChanged))
	copy(handlers, b.playlistSetChanged)
	b.mu.RUnlock()

	for _, handler := range handlers {
		deliver(handler)
	}
}

func (b *Bus) PublishPlaylistContentChanged(playlistID int64) {
	b.mu.RLock()
	handlers := make([]func(int64), len(b.playlistContent))
	copy(handlers, b.playlistContent)
	b.mu.RUnlock()

	for _, handler := range handlers {
		deliver(func() { handler(playlistID) })
	}
}

func deliver(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EVENTS] subscriber panicked: %v", r)
		}
	}()
	handler()
}
