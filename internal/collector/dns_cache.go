package collector

import (
	"strings"
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
)

// DNSCacheCollector matches requested host names against the resolver cache
type DNSCacheCollector struct {
	readCache func() ([]string, error)
}

// NewDNSCacheCollector creates a new DNS cache collector
func NewDNSCacheCollector() *DNSCacheCollector {
	return &DNSCacheCollector{readCache: readDNSCache}
}

// ParseDisplayDNS extracts record names from `ipconfig /displaydns` output.
// A record name is the line right above a dashed separator line.
func ParseDisplayDNS(output string) []string {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	seen := make(map[string]bool)
	var names []string
	// Each record block looks like:
	//     example.com
	//     ----------------------------------------
	//     Record Name . . . . . : example.com
	for i := 1; i < len(lines); i++ {
		if !strings.HasPrefix(strings.TrimSpace(lines[i]), "----------") {
			continue
		}
		name := strings.TrimSpace(lines[i-1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Search reports every request whose name is present in the cache
func (c *DNSCacheCollector) Search(params []search.DNSParameters) []search.Outcome {
	if len(params) == 0 {
		return nil
	}
	logger.Section("DNS Cache Search")
	startTime := time.Now()

	names, err := c.readCache()
	if err != nil {
		logger.Error("DNS search: %v", err)
		return failAll(search.DNS, params, func(p search.DNSParameters) search.Tag { return p.Tag }, search.KindOS, err)
	}
	logger.Info("DNS cache: %d unique entries", len(names))

	// Build a lookup set; ipconfig and the cache API both list a name once per record type
	cached := make(map[string]bool, len(names))
	for _, n := range names {
		cached[n] = true
	}

	var results []search.Outcome
	for _, p := range params {
		if !cached[p.Name] {
			continue
		}
		logger.Info("DNS search: Found DNS %s for IOC %d", p.Name, p.IocID)
		results = append(results, search.Hit(p.Tag, search.DNS, "DNS search: Found DNS %s for IOC %d", p.Name, p.IocID))
	}

	logger.Timing("DNSCacheCollector.Search", startTime)
	return results
}
