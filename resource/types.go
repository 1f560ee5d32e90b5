package resource

// Handle is an opaque reference to a slot in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind tags slot values so typed lookups can reject mismatches.
type Kind uint32

// EventType identifies a slot lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a slot lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about slot lifecycle events.
type Observer interface {
	OnSlotEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnSlotEvent(e Event) { f(e) }

// Table manages slots with kind information and observer support.
type Table interface {
	// Insert adds a value and returns its handle. Returns 0 once closed.
	Insert(kind Kind, value any) Handle

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// GetTyped retrieves a value only if it matches the expected kind.
	GetTyped(handle Handle, kind Kind) (any, bool)

	// Remove drops a slot and returns its value, whether it existed, and the
	// drop error if the value implements Dropper.
	Remove(handle Handle) (any, bool, error)

	// Subscribe adds an observer for lifecycle events.
	Subscribe(Observer)

	// Len returns the number of live slots.
	Len() int

	// Clear drops all slots, newest first.
	Clear() error

	// Close drops all slots and stops accepting inserts.
	Close() error
}

// Dropper is optionally implemented by slot values that need cleanup.
type Dropper interface {
	Drop() error
}
