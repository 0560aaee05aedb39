// Package flatten turns nested IOC definition trees into flat lookup tables
// and per-modality search requests.
package flatten

import (
	"errors"
	"fmt"
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// DefaultMaxDepth bounds definition tree depth when no limit is configured
const DefaultMaxDepth = 64

// ErrMaxDepthExceeded fails a whole batch containing a tree that is too deep
var ErrMaxDepthExceeded = errors.New("ioc definition exceeds maximum depth")

// DepthError reports which IOC broke the depth bound
type DepthError struct {
	IocID    types.IocID
	MaxDepth int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("ioc %d: definition deeper than %d levels", e.IocID, e.MaxDepth)
}

func (e *DepthError) Unwrap() error {
	return ErrMaxDepthExceeded
}

// EntryItem is the evaluator's view of one tree node
type EntryItem struct {
	EntryID         types.IocEntryID
	IocID           types.IocID
	EvalPolicy      types.EvalPolicy
	ChildEvalPolicy types.EvalPolicy
	Children        []types.IocEntryID
	ChecksSpecified int
}

// Plan is the flattened form of a batch of IOCs
type Plan struct {
	Roots    map[types.IocID]types.IocEntryID
	Entries  map[types.IocEntryID]*EntryItem
	Requests search.Requests
}

// Flattener walks definition trees, assigning entry ids from its allocator
type Flattener struct {
	alloc    *Allocator
	maxDepth int
}

// New creates a flattener. A nil allocator gets a fresh one; maxDepth <= 0 uses DefaultMaxDepth.
func New(alloc *Allocator, maxDepth int) *Flattener {
	if alloc == nil {
		alloc = NewAllocator()
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Flattener{alloc: alloc, maxDepth: maxDepth}
}

// Flatten is a convenience wrapper using a fresh allocator
func Flatten(iocs []types.Ioc, maxDepth int) (*Plan, error) {
	return New(nil, maxDepth).Flatten(iocs)
}

type frame struct {
	entry *types.IocEntry
	id    types.IocEntryID
	depth int
}

// Flatten processes iocs in order. An IOC id seen twice keeps its first tree.
func (f *Flattener) Flatten(iocs []types.Ioc) (*Plan, error) {
	logger.Section("IOC Flattening")
	startTime := time.Now()

	plan := &Plan{
		Roots:   make(map[types.IocID]types.IocEntryID, len(iocs)),
		Entries: make(map[types.IocEntryID]*EntryItem),
	}

	for i := range iocs {
		ioc := &iocs[i]
		if _, dup := plan.Roots[ioc.ID]; dup {
			logger.Warn("Duplicate IOC id %d skipped", ioc.ID)
			continue
		}

		rootID := f.alloc.Next()
		stack := []frame{{entry: &ioc.Definition, id: rootID, depth: 1}}

		for len(stack) > 0 {
			fr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if fr.depth > f.maxDepth {
				return nil, &DepthError{IocID: ioc.ID, MaxDepth: f.maxDepth}
			}

			item := &EntryItem{
				EntryID:         fr.id,
				IocID:           ioc.ID,
				EvalPolicy:      fr.entry.EvalPolicy.OrDefault(),
				ChildEvalPolicy: fr.entry.ChildEvalPolicy.OrDefault(),
				ChecksSpecified: fr.entry.ChecksSpecified(),
			}
			appendRequests(&plan.Requests, search.Tag{IocID: ioc.ID, EntryID: fr.id}, fr.entry)

			if n := len(fr.entry.Offspring); n > 0 {
				item.Children = make([]types.IocEntryID, n)
				for c := range fr.entry.Offspring {
					item.Children[c] = f.alloc.Next()
				}
				// reverse push keeps left-to-right visiting order
				for c := n - 1; c >= 0; c-- {
					stack = append(stack, frame{
						entry: &fr.entry.Offspring[c],
						id:    item.Children[c],
						depth: fr.depth + 1,
					})
				}
			}

			plan.Entries[item.EntryID] = item
		}

		plan.Roots[ioc.ID] = rootID
	}

	logger.Timing("Flattener.Flatten", startTime)
	logger.Info("Flattened %d IOCs into %d entries, %d search requests",
		len(plan.Roots), len(plan.Entries), plan.Requests.Total())

	return plan, nil
}

// appendRequests emits one request per target of every check on the node
func appendRequests(r *search.Requests, tag search.Tag, e *types.IocEntry) {
	if c := e.FileCheck; c != nil {
		r.Files = append(r.Files, search.FileParameters{
			Tag:    tag,
			Search: c.Search.OrDefault(),
			Name:   c.Name,
			Hash:   c.Hash,
		})
	}
	if c := e.RegistryCheck; c != nil {
		r.Registry = append(r.Registry, search.RegistryParameters{
			Tag:       tag,
			Search:    c.Search.OrDefault(),
			Key:       c.Key,
			ValueName: c.ValueName,
			Value:     c.Value,
		})
	}
	if c := e.DNSCheck; c != nil {
		for _, name := range c.Data {
			r.DNS = append(r.DNS, search.DNSParameters{Tag: tag, Name: name})
		}
	}
	if c := e.ConnsCheck; c != nil {
		for _, name := range c.Data {
			r.Connections = append(r.Connections, search.ConnectionParameters{Tag: tag, Search: c.Search, Name: name})
		}
	}
	if c := e.ProcessCheck; c != nil {
		if len(c.Data) == 0 {
			r.Processes = append(r.Processes, search.ProcessParameters{Tag: tag, Search: c.Search.OrDefault(), Hash: c.Hash})
		}
		for _, name := range c.Data {
			r.Processes = append(r.Processes, search.ProcessParameters{
				Tag:    tag,
				Search: c.Search.OrDefault(),
				Name:   name,
				Hash:   c.Hash,
			})
		}
	}
	if c := e.CertsCheck; c != nil {
		for _, name := range c.Data {
			r.Certificates = append(r.Certificates, search.CertificateParameters{Tag: tag, Search: c.Search, Name: name})
		}
	}
	if c := e.MutexCheck; c != nil {
		for _, name := range c.Data {
			r.Mutexes = append(r.Mutexes, search.MutexParameters{Tag: tag, Name: name})
		}
	}
}
