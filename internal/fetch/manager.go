package fetch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rebbit-player/rebbit/internal/config"
	"github.com/rebbit-player/rebbit/pkg/types"
)

type task struct {
	mu sync.Mutex

	id        string
	url       string
	title     string
	state     types.FetchState
	download  int64
	total     int64
	err       error
	startTime time.Time
	done      bool
}

// Manager runs download tasks as fire-and-forget workers, bounded by
// a semaphore. Each task emits any number of progress callbacks
// followed by exactly one terminal callback (finished or error),
// never both and never anything after. Started tasks run to
// completion: there is no cancellation of in-flight downloads.
type Manager struct {
	downloader types.Downloader
	destDir    string
	semaphore  chan struct{}

	tasks sync.Map

	callbackMutex sync.RWMutex
	progressCbs   []func(*types.FetchProgress)
	finishedCbs   []func(taskID, filePath string)
	errorCbs      []func(taskID string, err error)

	debug bool
}

func NewManager(cfg *config.Config, downloader types.Downloader) *Manager {
	return &Manager{
		downloader: downloader,
		destDir:    cfg.Library.MusicDir,
		semaphore:  make(chan struct{}, cfg.Fetch.MaxConcurrent),
		debug:      cfg.Debug,
	}
}

func (m *Manager) OnProgress(callback func(*types.FetchProgress)) {
	m.callbackMutex.Lock()
	defer m.callbackMutex.Unlock()
	m.progressCbs = append(m.progressCbs, callback)
}

func (m *Manager) OnFinished(callback func(taskID, filePath string)) {
	m.callbackMutex.Lock()
	defer m.callbackMutex.Unlock()
	m.finishedCbs = append(m.finishedCbs, callback)
}

func (m *Manager) OnError(callback func(taskID string, err error)) {
	m.callbackMutex.Lock()
	defer m.callbackMutex.Unlock()
	m.errorCbs = append(m.errorCbs, callback)
}

// StartDownload queues a download and returns its task id.
func (m *Manager) StartDownload(ctx context.Context, url, title string) string {
	t := &task{
		id:        uuid.NewString(),
		url:       url,
		title:     title,
		state:     types.FetchStatePending,
		startTime: time.Now(),
	}

	m.tasks.Store(t.id, t)
	m.debugLog("Created download task %s: %s", t.id, url)

	go m.execute(ctx, t)

	return t.id
}

func (m *Manager) execute(ctx context.Context, t *task) {
	m.semaphore <- struct{}{}
	defer func() { <-m.semaphore }()

	t.mu.Lock()
	t.state = types.FetchStateDownloading
	t.mu.Unlock()

	path, err := m.downloader.Download(ctx, t.url, m.destDir, func(downloaded, total int64) {
		t.mu.Lock()
		if t.done {
			t.mu.Unlock()
			return
		}
		t.download = downloaded
		t.total = total
		snapshot := m.snapshot(t)
		t.mu.Unlock()

		m.emitProgress(snapshot)
	})

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	if err != nil {
		t.state = types.FetchStateFailed
		t.err = err
	} else {
		t.state = types.FetchStateCompleted
	}
	t.mu.Unlock()

	if err != nil {
		m.debugLog("Download failed for %s: %v", t.url, err)
		m.emitError(t.id, err)
		return
	}

	m.debugLog("Download finished for %s: %s", t.url, path)
	m.emitFinished(t.id, path)
}

// GetProgress returns a snapshot of the task, or false when unknown.
func (m *Manager) GetProgress(taskID string) (*types.FetchProgress, bool) {
	value, ok := m.tasks.Load(taskID)
	if !ok {
		return nil, false
	}

	t := value.(*task)
	t.mu.Lock()
	defer t.mu.Unlock()
	return m.snapshot(t), true
}

// GetAllDownloads returns snapshots of every known task.
func (m *Manager) GetAllDownloads() []*types.FetchProgress {
	var downloads []*types.FetchProgress

	m.tasks.Range(func(key, value interface{}) bool {
		t := value.(*task)
		t.mu.Lock()
		downloads = append(downloads, m.snapshot(t))
		t.mu.Unlock()
		return true
	})

	return downloads
}

// ClearCompleted drops finished and failed tasks from the registry.
func (m *Manager) ClearCompleted() {
	var toDelete []string

	m.tasks.Range(func(key, value interface{}) bool {
		t := value.(*task)
		t.mu.Lock()
		state := t.state
		t.mu.Unlock()

		if state == types.FetchStateCompleted || state == types.FetchStateFailed {
			toDelete = append(toDelete, key.(string))
		}
		return true
	})

	for _, key := range toDelete {
		m.tasks.Delete(key)
	}

	m.debugLog("Cleared %d completed downloads", len(toDelete))
}

// snapshot must be called with t.mu held.
func (m *Manager) snapshot(t *task) *types.FetchProgress {
	percent := 0.0
	if t.total > 0 {
		percent = float64(t.download) / float64(t.total) * 100
	}

	return &types.FetchProgress{
		TaskID:     t.id,
		URL:        t.url,
		Title:      t.title,
		Downloaded: t.download,
		Total:      t.total,
		Percent:    percent,
		State:      t.state,
		Error:      t.err,
		StartTime:  t.startTime,
	}
}

func (m *Manager) emitProgress(progress *types.FetchProgress) {
	m.callbackMutex.RLock()
	callbacks := m.progressCbs
	m.callbackMutex.RUnlock()

	for _, callback := range callbacks {
		callback(progress)
	}
}

func (m *Manager) emitFinished(taskID, filePath string) {
	m.callbackMutex.RLock()
	callbacks := m.finishedCbs
	m.callbackMutex.RUnlock()

	for _, callback := range callbacks {
		callback(taskID, filePath)
	}
}

func (m *Manager) emitError(taskID string, err error) {
	m.callbackMutex.RLock()
	callbacks := m.errorCbs
	m.callbackMutex.RUnlock()

	for _, callback := range callbacks {
		callback(taskID, err)
	}
}

func (m *Manager) debugLog(format string, args ...interface{}) {
	if m.debug {
		log.Printf("[FETCH] "+format, args...)
	}
}
