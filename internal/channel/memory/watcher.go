package memory

import (
	"context"
	"sync"
)

// watcher buffers notifications without bound so writers never block on a
// slow subscriber.
type watcher struct {
	path     string
	children bool

	mu     sync.Mutex
	queue  []any
	signal chan struct{}
}

func newWatcher(path string, children bool) *watcher {
	return &watcher{path: path, children: children, signal: make(chan struct{}, 1)}
}

func (w *watcher) push(item any) {
	w.mu.Lock()
	w.queue = append(w.queue, item)
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// run delivers queued items in order until deliver returns false or ctx ends.
func (w *watcher) run(ctx context.Context, deliver func(any) bool) {
	for {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, item := range batch {
			if !deliver(item) {
				return
			}
		}
		select {
		case <-w.signal:
		case <-ctx.Done():
			return
		}
	}
}
