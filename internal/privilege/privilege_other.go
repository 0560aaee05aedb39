//go:build !windows

package privilege

import "github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"

// Acquire returns a no-op guard; token privileges only exist on Windows
func Acquire(name string) (*Guard, error) {
	logger.Debug("Privilege %s not applicable on this platform", name)
	return &Guard{name: name}, nil
}
