package search

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultRegexTimeout bounds a single regex evaluation
const DefaultRegexTimeout = 2 * time.Second

// Pattern is a compiled regex search target
type Pattern struct {
	expr string
	re   *regexp2.Regexp
}

// Compile compiles expr with RE2-compatible syntax and a per-match timeout
func Compile(expr string, timeout time.Duration) (*Pattern, error) {
	if expr == "" {
		return nil, fmt.Errorf("regex pattern cannot be empty")
	}
	re, err := regexp2.Compile(expr, regexp2.RE2)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", expr, err)
	}
	if timeout <= 0 {
		timeout = DefaultRegexTimeout
	}
	re.MatchTimeout = timeout
	return &Pattern{expr: expr, re: re}, nil
}

// MatchString reports whether s matches. A timeout counts as no match.
func (p *Pattern) MatchString(s string) bool {
	if p == nil {
		return false
	}
	ok, err := p.re.MatchString(s)
	return err == nil && ok
}

func (p *Pattern) String() string {
	return p.expr
}
