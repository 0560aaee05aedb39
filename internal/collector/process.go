package collector

import (
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// runningProcess is the part of a process the matcher looks at
type runningProcess struct {
	PID  int32
	Name string
	Exe  string
}

// ProcessCollector matches running processes by name and image hash
type ProcessCollector struct {
	opts          Options
	hasher        *Hasher
	listProcesses func() ([]runningProcess, error)
}

// NewProcessCollector creates a new process collector
func NewProcessCollector(opts Options, hasher *Hasher) *ProcessCollector {
	if hasher == nil {
		hasher = NewHasher(0)
	}
	return &ProcessCollector{opts: opts, hasher: hasher, listProcesses: listRunningProcesses}
}

func listRunningProcesses() ([]runningProcess, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("cannot list processes: %w", err)
	}

	result := make([]runningProcess, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		// exe is unreadable for protected processes; name matching still works
		exe, _ := p.Exe()
		result = append(result, runningProcess{PID: p.Pid, Name: name, Exe: exe})
	}
	return result, nil
}

// Search tests every running process against each unmatched request
func (c *ProcessCollector) Search(params []search.ProcessParameters) []search.Outcome {
	if len(params) == 0 {
		return nil
	}
	logger.Section("Process Search")
	startTime := time.Now()

	// a hash decides on its own, the name only applies to name requests
	patterns, results := compilePatterns(search.Process, params, c.opts.RegexTimeout,
		func(p search.ProcessParameters) (search.Tag, bool, string) {
			return p.Tag, p.Hash == nil && p.Search == types.SearchRegex && p.Name != "", p.Name
		})

	procs, err := c.listProcesses()
	if err != nil {
		logger.Error("Process search: %v", err)
		return append(results, failAll(search.Process, params, func(p search.ProcessParameters) search.Tag { return p.Tag }, search.KindOS, err)...)
	}
	logger.Info("Process search: %d running processes", len(procs))

	matched := make([]bool, len(params))
	hashFailed := make([]bool, len(params))
	for _, proc := range procs {
		logger.Debug("Process search: Checking process %s (pid %d)", proc.Name, proc.PID)
		for i, p := range params {
			if matched[i] {
				continue
			}

			if p.Hash == nil {
				if p.Name == "" || !c.nameMatches(patterns, i, p, proc.Name) {
					continue
				}
				matched[i] = true
				logger.Info("Process search: Found process %s (pid %d) for IOC %d", proc.Name, proc.PID, p.IocID)
				results = append(results, search.Hit(p.Tag, search.Process,
					"Process search: Found process %s (pid %d) for IOC %d", proc.Name, proc.PID, p.IocID))
				continue
			}

			if proc.Exe == "" {
				continue
			}
			ok, err := c.hasher.Matches(proc.Exe, p.Hash)
			if err != nil {
				logger.Debug("Process search: hash of %s failed: %v", proc.Exe, err)
				if !hashFailed[i] {
					// report a request's first hash failure only
					hashFailed[i] = true
					results = append(results, search.Fail(p.Tag, search.Process, search.KindHash,
						"cannot compute %s hash of %s: %v", p.Hash.Algorithm, proc.Exe, err))
				}
				continue
			}
			if !ok {
				continue
			}

			matched[i] = true
			logger.Info("Process search: Found process %s with executable hash %s for IOC %d", proc.Name, p.Hash.Value, p.IocID)
			results = append(results, search.Hit(p.Tag, search.Process,
				"Process search: Found process %s (%s) with executable hash %s for IOC %d", proc.Name, proc.Exe, p.Hash.Value, p.IocID))
		}
	}

	logger.Timing("ProcessCollector.Search", startTime)
	return results
}

func (c *ProcessCollector) nameMatches(patterns map[int]*search.Pattern, i int, p search.ProcessParameters, name string) bool {
	if p.Search == types.SearchRegex {
		re, ok := patterns[i]
		return ok && re.MatchString(name)
	}
	return strings.EqualFold(name, p.Name)
}
