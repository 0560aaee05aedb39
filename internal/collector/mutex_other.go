//go:build !windows

package collector

// noSyncObjects reports no objects: named mutex enumeration has no
// equivalent outside Windows.
type noSyncObjects struct{}

func newSyncObjectEnumerator() SyncObjectEnumerator {
	return noSyncObjects{}
}

func (noSyncObjects) EnumerateNamedSyncObjects() ([]SyncObject, error) {
	return nil, nil
}
