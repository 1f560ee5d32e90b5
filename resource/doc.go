// Package resource provides the handle table a realm keeps its engine slots in.
//
// Engine slots are host-side values owned by one realm: guest engine bindings,
// module instances, scratch buffers. The table maps integer handles to those
// values and releases them when the realm is torn down.
//
// # Handle Table
//
//	table := resource.NewTable()
//
//	// Insert a value, get a handle
//	handle := table.Insert(kind, value)
//
//	// Retrieve value by handle
//	value, ok := table.Get(handle)
//
//	// Remove it, dropping it if it implements Dropper
//	value, ok, err := table.Remove(handle)
//
// Handles are typed by Kind; GetTyped only returns values of the expected kind.
// Handle 0 is never issued.
//
// # Release Order
//
// Clear and Close drop slots newest first, so a slot inserted on top of another
// is released before the one it depends on. Drop errors are combined and returned;
// one failing slot does not stop the others from being released.
//
// # Observers
//
// Observers receive EventCreated and EventDropped notifications.
package resource
