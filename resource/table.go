package resource

import (
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

var _ Table = (*SlotTable)(nil)

// SlotTable is the engine slot table a realm owns. Slots are released
// newest first when the table is cleared or closed.
type SlotTable struct {
	backend   *LocalBackend
	observers []Observer
	seq       atomic.Uint64
	obsMu     sync.RWMutex
	closeMu   sync.RWMutex
	closed    bool
}

// NewTable creates an empty slot table.
func NewTable() *SlotTable {
	return &SlotTable{
		backend: NewLocalBackend(),
	}
}

// Insert adds a value and returns its handle.
func (t *SlotTable) Insert(kind Kind, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(kind, value, t.seq.Add(1))
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return handle
}

// Get retrieves a value by handle.
func (t *SlotTable) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected kind.
func (t *SlotTable) GetTyped(handle Handle, kind Kind) (any, bool) {
	actual, ok := t.backend.Kind(handle)
	if !ok || actual != kind {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Remove drops a slot and returns (value, true, dropErr) if found.
func (t *SlotTable) Remove(handle Handle) (any, bool, error) {
	kind, _ := t.backend.Kind(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false, nil
	}

	var err error
	if d, ok := value.(Dropper); ok {
		err = d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return value, true, err
}

// Subscribe adds an observer for lifecycle events.
func (t *SlotTable) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live slots.
func (t *SlotTable) Len() int {
	return t.backend.Len()
}

// Each iterates over live slots in handle order.
func (t *SlotTable) Each(fn func(Handle, Kind, any) bool) {
	t.backend.Each(fn)
}

// Clear drops all slots, newest first.
func (t *SlotTable) Clear() error {
	var errs error
	for _, h := range t.backend.newestFirst() {
		if _, _, err := t.Remove(h); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Close drops all slots and stops accepting inserts. Safe to call more than once.
func (t *SlotTable) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.backend.MarkClosed()
	return t.Clear()
}

func (t *SlotTable) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnSlotEvent(e)
	}
}
