package collector

import (
	"fmt"
	"net"
	"strings"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// addrResolver resolves a remote address to host names
type addrResolver interface {
	LookupAddr(ip string) []string
}

// remoteEndpoint is one open TCP connection's far end
type remoteEndpoint struct {
	IP   string
	Port uint32
	PID  int32
}

// ConnectionCollector matches open TCP connections against IOC endpoints
type ConnectionCollector struct {
	opts      Options
	resolver  addrResolver
	listConns func() ([]remoteEndpoint, error)
}

// NewConnectionCollector creates a new connection collector
func NewConnectionCollector(opts Options, resolver *ReverseResolver) *ConnectionCollector {
	if resolver == nil {
		resolver = NewReverseResolver(0)
	}
	return &ConnectionCollector{opts: opts, resolver: resolver, listConns: listTCPConnections}
}

// listTCPConnections returns remote ends of IPv4 and IPv6 TCP sockets,
// skipping loopback and unspecified addresses.
func listTCPConnections() ([]remoteEndpoint, error) {
	conns, err := psnet.Connections("tcp")
	if err != nil {
		return nil, fmt.Errorf("cannot list tcp connections: %w", err)
	}

	var endpoints []remoteEndpoint
	for _, c := range conns {
		ip := net.ParseIP(c.Raddr.IP)
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		endpoints = append(endpoints, remoteEndpoint{IP: ip.String(), Port: c.Raddr.Port, PID: c.Pid})
	}
	return endpoints, nil
}

// Search tests every connection against each unmatched request
func (c *ConnectionCollector) Search(params []search.ConnectionParameters) []search.Outcome {
	if len(params) == 0 {
		return nil
	}
	logger.Section("Connection Search")
	startTime := time.Now()

	patterns, results := compilePatterns(search.Connection, params, c.opts.RegexTimeout,
		func(p search.ConnectionParameters) (search.Tag, bool, string) {
			return p.Tag, p.Search == types.ConnSearchRegex, p.Name
		})

	endpoints, err := c.listConns()
	if err != nil {
		logger.Error("Connection search: %v", err)
		return append(results, failAll(search.Connection, params, func(p search.ConnectionParameters) search.Tag { return p.Tag }, search.KindOS, err)...)
	}
	logger.Info("Connection search: %d remote endpoints", len(endpoints))

	// PTR lookups are only needed when some request matches by host name
	needNames := false
	for _, p := range params {
		if p.Search != types.ConnSearchIP {
			needNames = true
			break
		}
	}

	matched := make([]bool, len(params))
	for _, ep := range endpoints {
		// Resolve once per endpoint; the resolver caches answers for the run
		var names []string
		if needNames {
			names = c.resolver.LookupAddr(ep.IP)
		}

		for i, p := range params {
			if matched[i] {
				continue
			}
			hit := ""
			switch p.Search {
			case types.ConnSearchIP:
				if sameIP(p.Name, ep.IP) {
					hit = ep.IP
				}
			case types.ConnSearchRegex:
				re, ok := patterns[i]
				if !ok {
					continue
				}
				for _, n := range names {
					if re.MatchString(n) {
						hit = n
						break
					}
				}
			default:
				// EXACT: case-insensitive, ignoring the root dot of a FQDN
				want := strings.TrimSuffix(strings.ToLower(p.Name), ".")
				for _, n := range names {
					if strings.TrimSuffix(strings.ToLower(n), ".") == want {
						hit = n
						break
					}
				}
			}
			if hit == "" {
				continue
			}

			matched[i] = true
			logger.Info("Connection search: Found connection %s (%s:%d, pid %d) for IOC %d", hit, ep.IP, ep.Port, ep.PID, p.IocID)
			results = append(results, search.Hit(p.Tag, search.Connection,
				"Connection search: Found connection %s (%s:%d, pid %d) for IOC %d", hit, ep.IP, ep.Port, ep.PID, p.IocID))
		}
	}

	logger.Timing("ConnectionCollector.Search", startTime)
	return results
}

func sameIP(want, got string) bool {
	a, b := net.ParseIP(strings.TrimSpace(want)), net.ParseIP(got)
	return a != nil && b != nil && a.Equal(b)
}
