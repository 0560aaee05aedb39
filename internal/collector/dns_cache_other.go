//go:build !windows

package collector

import "github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"

func readDNSCache() ([]string, error) {
	logger.Debug("DNS search: no resolver cache source on this platform")
	return nil, nil
}
