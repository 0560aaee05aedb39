package collector

import (
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
)

// Options tunes the collectors for one run
type Options struct {
	DeepSearch    bool
	SearchRoots   []string // deep file-search roots; empty means every fixed drive
	RegistryHives []string // hives walked by the deep registry search
	RegexTimeout  time.Duration
}

// compilePatterns compiles the pattern of every regex request, keyed by
// request index. A bad pattern only fails its own request.
func compilePatterns[P any](m search.Modality, params []P, timeout time.Duration, describe func(P) (tag search.Tag, isRegex bool, expr string)) (map[int]*search.Pattern, []search.Outcome) {
	patterns := make(map[int]*search.Pattern)
	var failures []search.Outcome
	for i, p := range params {
		tag, isRegex, expr := describe(p)
		if !isRegex {
			continue
		}
		re, err := search.Compile(expr, timeout)
		if err != nil {
			failures = append(failures, search.Fail(tag, m, search.KindPattern, "%v", err))
			continue
		}
		patterns[i] = re
	}
	return patterns, failures
}

// failAll attributes a modality-wide failure to every request
func failAll[P any](m search.Modality, params []P, tagOf func(P) search.Tag, kind search.ErrorKind, err error) []search.Outcome {
	out := make([]search.Outcome, 0, len(params))
	for _, p := range params {
		out = append(out, search.Fail(tagOf(p), m, kind, "%v", err))
	}
	return out
}
