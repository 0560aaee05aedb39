//go:build !windows

package collector

import (
	"fmt"
	"os"
)

// rootBundles are the usual locations of the system trust bundle
var rootBundles = []string{
	"/etc/ssl/certs/ca-certificates.crt",
	"/etc/pki/tls/certs/ca-bundle.crt",
	"/etc/ssl/ca-bundle.pem",
	"/etc/pki/ca-trust/extracted/pem/tls-ca-bundle.pem",
	"/etc/ssl/cert.pem",
}

func readRootStore() ([]trustedCert, error) {
	candidates := rootBundles
	if f := os.Getenv("SSL_CERT_FILE"); f != "" {
		candidates = append([]string{f}, rootBundles...)
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return parsePEMBundle(data), nil
	}
	return nil, fmt.Errorf("no system certificate bundle found")
}
