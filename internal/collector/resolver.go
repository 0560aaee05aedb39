package collector

import (
	"context"
	"net"
	"runtime"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/miekg/dns"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
)

const resolvConf = "/etc/resolv.conf"

// ReverseResolver looks up PTR names for remote addresses, caching answers
// (including empty ones) for the run.
type ReverseResolver struct {
	client     *dns.Client
	nameserver string
	timeout    time.Duration
	cache      *lru.Cache[string, []string]
}

// NewReverseResolver queries the first resolv.conf nameserver directly and
// falls back to the system resolver when there is none.
func NewReverseResolver(timeout time.Duration) *ReverseResolver {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	cache, _ := lru.New[string, []string](1024)
	r := &ReverseResolver{
		client: &dns.Client{
			Net:          "udp",
			Timeout:      timeout,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		timeout: timeout,
		cache:   cache,
	}
	if runtime.GOOS != "windows" {
		if conf, err := dns.ClientConfigFromFile(resolvConf); err == nil && len(conf.Servers) > 0 {
			r.nameserver = net.JoinHostPort(conf.Servers[0], conf.Port)
		}
	}
	return r
}

// LookupAddr returns the host names of ip without trailing dots
func (r *ReverseResolver) LookupAddr(ip string) []string {
	if names, ok := r.cache.Get(ip); ok {
		return names
	}

	var names []string
	if r.nameserver != "" {
		names = r.queryPTR(ip)
	}
	if len(names) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		addrs, err := net.DefaultResolver.LookupAddr(ctx, ip)
		cancel()
		if err == nil {
			for _, a := range addrs {
				names = append(names, strings.TrimSuffix(a, "."))
			}
		}
	}

	r.cache.Add(ip, names)
	return names
}

func (r *ReverseResolver) queryPTR(ip string) []string {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return nil
	}
	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	resp, _, err := r.client.Exchange(msg, r.nameserver)
	if err != nil || resp == nil {
		logger.Debug("Connection search: PTR query for %s failed: %v", ip, err)
		return nil
	}

	var names []string
	for _, ans := range resp.Answer {
		if ptr, ok := ans.(*dns.PTR); ok {
			names = append(names, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	return names
}
