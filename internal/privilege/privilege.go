// Package privilege enables process token privileges for the duration of a
// privileged scan.
package privilege

import (
	"errors"
	"sync"
)

// Privilege names used by the collectors
const (
	Debug         = "SeDebugPrivilege"
	TakeOwnership = "SeTakeOwnershipPrivilege"
)

// ErrNotHeld is returned when the process token does not hold the privilege
var ErrNotHeld = errors.New("privilege not held by the process token")

// Guard keeps a privilege enabled until Release is called. Release is safe
// to call more than once, so callers can defer it right after Acquire.
type Guard struct {
	name    string
	release func() error
	once    sync.Once
	err     error
}

// Name returns the privilege held by the guard
func (g *Guard) Name() string {
	return g.name
}

// Release puts the privilege back into the state it had before Acquire
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		if g.release != nil {
			g.err = g.release()
		}
	})
	return g.err
}
