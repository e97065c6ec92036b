package ingest

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/TFMV/forcegraph/models"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reparses a graph file whenever it changes and hands the result
// to a callback.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(models.GraphData)
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher starts watching path. The directory is watched rather than
// the file so editors that replace the file on save are still seen.
func NewWatcher(path string, debounce time.Duration, onChange func(models.GraphData), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With(zap.String("file", abs)),
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.watchLoop()
	w.logger.Info("Watching graph file")
	return w, nil
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug("Graph file changed", zap.String("operation", event.Op.String()))
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}
	data, err := ProcessFile(w.path)
	if err != nil {
		// Half-written files are common; the next write retries.
		w.logger.Warn("Failed to reload graph file", zap.Error(err))
		return
	}
	w.logger.Info("Graph file reloaded",
		zap.Int("nodes", len(data.Nodes)),
		zap.Int("links", len(data.Links)))
	w.onChange(data)
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.done
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
}
