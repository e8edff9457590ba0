// Package throttle coalesces high-frequency byte deltas into at most one
// summary per key per interval.
package throttle

import (
	"log/slog"
	"sync"
	"time"
)

const DefaultInterval = time.Second

// EmitFunc receives the accumulated total for a key.
type EmitFunc[K comparable] func(key K, total int64)

type entry struct {
	total int64
	timer *time.Timer
}

// Throttler keeps one accumulator and at most one pending timer per key.
// It is edge-triggered: a key with no Record calls never emits.
type Throttler[K comparable] struct {
	interval time.Duration
	emit     EmitFunc[K]
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[K]*entry
	stopped bool
}

type Option[K comparable] func(*Throttler[K])

func WithLogger[K comparable](logger *slog.Logger) Option[K] {
	return func(t *Throttler[K]) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func New[K comparable](interval time.Duration, emit EmitFunc[K], opts ...Option[K]) *Throttler[K] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Throttler[K]{
		interval: interval,
		emit:     emit,
		logger:   slog.Default(),
		entries:  make(map[K]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record adds delta to key. The first call for an idle key schedules one
// emission; later calls before it fires only accumulate.
func (t *Throttler[K]) Record(key K, delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.total += delta
	if e.timer == nil {
		e.timer = time.AfterFunc(t.interval, func() { t.fire(key, e) })
	}
}

func (t *Throttler[K]) fire(key K, e *entry) {
	t.mu.Lock()
	// Entry was flushed or forgotten since the timer was armed.
	if t.entries[key] != e || e.timer == nil {
		t.mu.Unlock()
		return
	}
	total := e.total
	delete(t.entries, key)
	t.mu.Unlock()

	t.deliver(key, total)
}

// Flush emits a pending accumulator for key immediately. It reports whether
// anything was emitted.
func (t *Throttler[K]) Flush(key K) bool {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	total := e.total
	delete(t.entries, key)
	t.mu.Unlock()

	t.deliver(key, total)
	return true
}

// Forget drops a pending accumulator without emitting it.
func (t *Throttler[K]) Forget(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		delete(t.entries, key)
	}
}

// Pending returns the number of keys with an armed timer.
func (t *Throttler[K]) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop cancels every pending emission. Record is a no-op afterwards.
func (t *Throttler[K]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for key, e := range t.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		delete(t.entries, key)
	}
}

func (t *Throttler[K]) deliver(key K, total int64) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("throttle emit panic recovered",
				slog.Any("key", key),
				slog.Any("panic", r),
			)
		}
	}()
	t.emit(key, total)
}
