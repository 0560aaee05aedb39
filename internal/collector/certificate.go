package collector

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// trustedCert holds the names of one root store certificate
type trustedCert struct {
	Subject string
	Issuer  string
}

// CertificateCollector matches root store certificates by subject or issuer
type CertificateCollector struct {
	listCerts func() ([]trustedCert, error)
}

// NewCertificateCollector creates a new certificate collector
func NewCertificateCollector() *CertificateCollector {
	return &CertificateCollector{listCerts: readRootStore}
}

func certFromDER(der []byte) (trustedCert, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return trustedCert{}, err
	}
	return trustedCert{Subject: cert.Subject.String(), Issuer: cert.Issuer.String()}, nil
}

// parsePEMBundle decodes every CERTIFICATE block, skipping unparsable ones
func parsePEMBundle(data []byte) []trustedCert {
	var certs []trustedCert
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := certFromDER(block.Bytes)
		if err != nil {
			logger.Debug("Certificate search: skipping certificate: %v", err)
			continue
		}
		certs = append(certs, c)
	}
	return certs
}

// Search reports each request whose text is contained in a certificate's
// subject (DOMAIN) or issuer (ISSUER), compared in lower case.
func (c *CertificateCollector) Search(params []search.CertificateParameters) []search.Outcome {
	if len(params) == 0 {
		return nil
	}
	logger.Section("Certificate Search")
	startTime := time.Now()

	certs, err := c.listCerts()
	if err != nil {
		logger.Error("Certificate search: %v", err)
		return failAll(search.Certificate, params, func(p search.CertificateParameters) search.Tag { return p.Tag }, search.KindOS, err)
	}
	logger.Info("Certificate search: %d root certificates", len(certs))

	var results []search.Outcome
	matched := make([]bool, len(params))
	for _, cert := range certs {
		subject, issuer := strings.ToLower(cert.Subject), strings.ToLower(cert.Issuer)
		for i, p := range params {
			if matched[i] || p.Name == "" {
				continue
			}
			field, label := subject, cert.Subject
			if p.Search == types.CertSearchIssuer {
				field, label = issuer, cert.Issuer
			}
			if !strings.Contains(field, strings.ToLower(p.Name)) {
				continue
			}
			matched[i] = true
			logger.Info("Certificate search: Found certificate %s for IOC %d", label, p.IocID)
			results = append(results, search.Hit(p.Tag, search.Certificate, "Certificate search: Found certificate %s for IOC %d", label, p.IocID))
		}
	}

	logger.Timing("CertificateCollector.Search", startTime)
	return results
}
