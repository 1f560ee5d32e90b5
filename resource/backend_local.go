package resource

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("slot table closed")

// LocalBackend is an in-memory slot store with handle reuse.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	seq   uint64
	kind  Kind
	valid bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 16),
		freeList: make([]Handle, 0, 4),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(kind Kind, value any, seq uint64) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{
		kind:  kind,
		value: value,
		seq:   seq,
		valid: true,
	}

	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

func (b *LocalBackend) lookup(handle Handle) (entry, bool) {
	if handle == 0 {
		return entry{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := handle - 1
	if int(idx) >= len(b.entries) {
		return entry{}, false
	}
	e := b.entries[idx]
	return e, e.valid
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	e, ok := b.lookup(handle)
	return e.value, ok
}

// Kind returns the kind of the slot at handle.
func (b *LocalBackend) Kind(handle Handle) (Kind, bool) {
	e, ok := b.lookup(handle)
	return e.kind, ok
}

// Drop removes a slot and returns its value.
func (b *LocalBackend) Drop(handle Handle) (any, bool) {
	if handle == 0 {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := handle - 1
	if int(idx) >= len(b.entries) {
		return nil, false
	}

	e := &b.entries[idx]
	if !e.valid {
		return nil, false
	}

	value := e.value
	*e = entry{}
	b.freeList = append(b.freeList, handle)
	return value, true
}

// MarkClosed stops further inserts.
func (b *LocalBackend) MarkClosed() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Len returns the number of live slots.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live slots in handle order.
func (b *LocalBackend) Each(fn func(Handle, Kind, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i+1), e.kind, e.value) {
				break
			}
		}
	}
}

// newestFirst returns live handles ordered by insertion, newest first.
func (b *LocalBackend) newestFirst() []Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()

	type hs struct {
		h   Handle
		seq uint64
	}
	live := make([]hs, 0, len(b.entries))
	for i, e := range b.entries {
		if e.valid {
			live = append(live, hs{h: Handle(i + 1), seq: e.seq})
		}
	}
	// insertion sort; slot tables are small
	for i := 1; i < len(live); i++ {
		for j := i; j > 0 && live[j].seq > live[j-1].seq; j-- {
			live[j], live[j-1] = live[j-1], live[j]
		}
	}
	out := make([]Handle, len(live))
	for i, l := range live {
		out[i] = l.h
	}
	return out
}
