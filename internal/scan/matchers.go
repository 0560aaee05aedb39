package scan

import (
	"fmt"
	"runtime/debug"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/collector"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
)

// Matcher searches one modality for a batch of requests
type Matcher[P any] interface {
	Search(params []P) []search.Outcome
}

// Matchers is the set of modality matchers a scan runs
type Matchers struct {
	File        Matcher[search.FileParameters]
	Registry    Matcher[search.RegistryParameters]
	DNS         Matcher[search.DNSParameters]
	Connection  Matcher[search.ConnectionParameters]
	Process     Matcher[search.ProcessParameters]
	Mutex       Matcher[search.MutexParameters]
	Certificate Matcher[search.CertificateParameters]
}

// DefaultMatchers builds the platform collectors. File and process
// matchers share one hash cache.
func DefaultMatchers(opts collector.Options) Matchers {
	hasher := collector.NewHasher(0)
	return Matchers{
		File:        collector.NewFileCollector(opts, hasher),
		Registry:    collector.NewRegistryCollector(opts),
		DNS:         collector.NewDNSCacheCollector(),
		Connection:  collector.NewConnectionCollector(opts, collector.NewReverseResolver(0)),
		Process:     collector.NewProcessCollector(opts, hasher),
		Mutex:       collector.NewMutexCollector(),
		Certificate: collector.NewCertificateCollector(),
	}
}

type tagged interface {
	Ref() search.Tag
}

// runMatcher calls matcher and turns a panic into an os error for every
// request of the modality. A nil matcher reports every request as unsupported.
func runMatcher[P tagged](m search.Modality, matcher Matcher[P], params []P) (out []search.Outcome) {
	if len(params) == 0 {
		return nil
	}
	if matcher == nil {
		return failEach(m, params, search.KindUnsupported, "no matcher available")
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("%s search panicked: %v\n%s", m, r, debug.Stack())
			out = append(out, failEach(m, params, search.KindOS, fmt.Sprintf("matcher aborted: %v", r))...)
		}
	}()
	return matcher.Search(params)
}

func failEach[P tagged](m search.Modality, params []P, kind search.ErrorKind, msg string) []search.Outcome {
	out := make([]search.Outcome, 0, len(params))
	for _, p := range params {
		out = append(out, search.Fail(p.Ref(), m, kind, "%s", msg))
	}
	return out
}
