//go:build windows

package collector

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
)

// readRootStore enumerates the ROOT system store
func readRootStore() ([]trustedCert, error) {
	name, err := windows.UTF16PtrFromString("ROOT")
	if err != nil {
		return nil, err
	}
	store, err := windows.CertOpenSystemStore(0, name)
	if err != nil {
		return nil, fmt.Errorf("cannot open ROOT store: %w", err)
	}
	defer windows.CertCloseStore(store, 0)

	var certs []trustedCert
	var ctx *windows.CertContext
	for {
		ctx, err = windows.CertEnumCertificatesInStore(store, ctx)
		if ctx == nil || err != nil {
			break
		}
		der := unsafe.Slice(ctx.EncodedCert, ctx.Length)
		c, perr := certFromDER(der)
		if perr != nil {
			logger.Debug("Certificate search: skipping certificate: %v", perr)
			continue
		}
		certs = append(certs, c)
	}
	return certs, nil
}
