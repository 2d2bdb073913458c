package persistence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/kernel-universe/internal/engine"
)

// Saver is the subset of DB that WriteBehind needs.
type Saver interface {
	SaveState(ctx context.Context, key string, snap engine.Snapshot) error
}

// saveTimeout bounds a single background save.
const saveTimeout = 10 * time.Second

// WriteBehind saves snapshots off the caller's goroutine. It holds at most
// one pending snapshot; submitting while a save is queued replaces it.
type WriteBehind struct {
	store Saver
	key   string

	mu      sync.Mutex
	pending *engine.Snapshot

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	saved  atomic.Uint64
	failed atomic.Uint64
}

// NewWriteBehind starts a background writer saving under key.
func NewWriteBehind(store Saver, key string) *WriteBehind {
	w := &WriteBehind{
		store: store,
		key:   key,
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Submit queues snap for saving and never blocks on the store.
func (w *WriteBehind) Submit(snap engine.Snapshot) {
	w.mu.Lock()
	w.pending = &snap
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close flushes any pending snapshot and stops the writer.
func (w *WriteBehind) Close() {
	w.closeOnce.Do(func() { close(w.quit) })
	<-w.done
}

// Saved returns the number of successful saves.
func (w *WriteBehind) Saved() uint64 { return w.saved.Load() }

// Failed returns the number of failed saves.
func (w *WriteBehind) Failed() uint64 { return w.failed.Load() }

func (w *WriteBehind) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.quit:
			w.flush()
			return
		}
	}
}

func (w *WriteBehind) flush() {
	w.mu.Lock()
	snap := w.pending
	w.pending = nil
	w.mu.Unlock()
	if snap == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := w.store.SaveState(ctx, w.key, *snap); err != nil {
		w.failed.Add(1)
		slog.Error("snapshot save failed", "key", w.key, "tick", snap.Tick, "error", err)
		return
	}
	w.saved.Add(1)
}
