//go:build windows

package collector

import (
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
)

var (
	modDnsapi                = windows.NewLazySystemDLL("dnsapi.dll")
	procDnsGetCacheDataTable = modDnsapi.NewProc("DnsGetCacheDataTable")
)

// Note: DnsGetCacheDataTable is undocumented and returns pointers into the
// resolver's own cache. The entries must not be freed.

// DNS_CACHE_ENTRY represents a single DNS cache entry (linked list node)
type DNS_CACHE_ENTRY struct {
	Next       *DNS_CACHE_ENTRY
	Name       *uint16
	Type       uint16
	DataLength uint16
	Flags      uint32
}

// readDNSCache lists cached names from ipconfig, falling back to the cache API
func readDNSCache() ([]string, error) {
	out, err := exec.Command("ipconfig", "/displaydns").Output()
	if err == nil {
		if names := ParseDisplayDNS(decodeOEMOutput(out)); len(names) > 0 {
			return names, nil
		}
	} else {
		logger.Warn("DNS search: ipconfig /displaydns failed: %v", err)
	}
	return readDNSCacheTable()
}

func readDNSCacheTable() ([]string, error) {
	if err := procDnsGetCacheDataTable.Find(); err != nil {
		return nil, err
	}

	var head *DNS_CACHE_ENTRY
	ret, _, _ := procDnsGetCacheDataTable.Call(uintptr(unsafe.Pointer(&head)))
	if ret == 0 || head == nil {
		logger.Info("DNS cache empty or API unavailable")
		return nil, nil
	}

	seen := make(map[string]bool)
	var names []string
	for entry := head; entry != nil; entry = entry.Next {
		if entry.Name == nil {
			continue
		}
		name := windows.UTF16PtrToString(entry.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}
