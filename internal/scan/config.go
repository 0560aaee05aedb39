package scan

import (
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/flatten"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
)

// Config holds scan configuration
type Config struct {
	MaxDepth int  // flattener depth bound
	MaxIocs  int  // IOCs accepted per run, 0 for unlimited
	Parallel bool // run matchers concurrently
	Detail   bool // keep evidence and errors in the report

	// Disabled modalities get no requests
	Disabled map[search.Modality]bool
}

// DefaultConfig returns the default scan configuration
func DefaultConfig() Config {
	return Config{
		MaxDepth: flatten.DefaultMaxDepth,
		MaxIocs:  5000,
		Detail:   true,
		Disabled: map[search.Modality]bool{},
	}
}

// Enabled reports whether a modality takes part in the scan
func (c Config) Enabled(m search.Modality) bool {
	return !c.Disabled[m]
}
