package flatten

import "github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"

// FirstEntryID is the first id handed out; 0 and 1 stay reserved for "no entry"
const FirstEntryID types.IocEntryID = 2

// Allocator issues strictly increasing entry ids. It is owned by a single
// flattening pass and is not safe for concurrent use.
type Allocator struct {
	next types.IocEntryID
}

// NewAllocator creates an allocator starting at FirstEntryID
func NewAllocator() *Allocator {
	return &Allocator{next: FirstEntryID}
}

// NewAllocatorFrom creates an allocator starting at start, clamped above the reserved range
func NewAllocatorFrom(start types.IocEntryID) *Allocator {
	if start < FirstEntryID {
		start = FirstEntryID
	}
	return &Allocator{next: start}
}

// Next returns a fresh entry id
func (a *Allocator) Next() types.IocEntryID {
	id := a.next
	a.next++
	return id
}
