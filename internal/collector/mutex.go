package collector

import (
	"strings"
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/privilege"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
)

// SyncObject is a named kernel synchronization object
type SyncObject struct {
	Name     string
	OwnerPID uint32
}

// SyncObjectEnumerator lists named mutexes system-wide
type SyncObjectEnumerator interface {
	EnumerateNamedSyncObjects() ([]SyncObject, error)
}

// MutexCollector matches named mutexes against IOC names
type MutexCollector struct {
	enum SyncObjectEnumerator
}

// NewMutexCollector creates a mutex collector backed by the platform enumerator
func NewMutexCollector() *MutexCollector {
	return &MutexCollector{enum: newSyncObjectEnumerator()}
}

// NewMutexCollectorWith creates a mutex collector with a custom enumerator
func NewMutexCollectorWith(enum SyncObjectEnumerator) *MutexCollector {
	return &MutexCollector{enum: enum}
}

// Search reports each request whose text appears in a mutex name (case-sensitive)
func (c *MutexCollector) Search(params []search.MutexParameters) []search.Outcome {
	if len(params) == 0 {
		return nil
	}
	logger.Section("Mutex Search")
	startTime := time.Now()

	guard, err := privilege.Acquire(privilege.Debug)
	if err != nil {
		logger.Warn("Mutex search: %v", err)
	}
	defer guard.Release()

	objects, err := c.enum.EnumerateNamedSyncObjects()
	if err != nil {
		logger.Error("Mutex search: %v", err)
		return failAll(search.Mutex, params, func(p search.MutexParameters) search.Tag { return p.Tag }, search.KindOS, err)
	}
	logger.Info("Mutex search: %d named mutexes", len(objects))

	var results []search.Outcome
	matched := make([]bool, len(params))
	for _, obj := range objects {
		for i, p := range params {
			if matched[i] || p.Name == "" || !strings.Contains(obj.Name, p.Name) {
				continue
			}
			matched[i] = true
			logger.Info("Mutex search: Found mutex %s (pid %d) for IOC %d", obj.Name, obj.OwnerPID, p.IocID)
			results = append(results, search.Hit(p.Tag, search.Mutex, "Mutex search: Found mutex %s (pid %d) for IOC %d", obj.Name, obj.OwnerPID, p.IocID))
		}
	}

	logger.Timing("MutexCollector.Search", startTime)
	return results
}
