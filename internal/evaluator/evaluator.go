// Package evaluator resolves flattened IOC trees against search outcomes.
package evaluator

import (
	"sort"
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/flatten"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// Evaluator holds one plan and the successful-match counts derived from outcomes
type Evaluator struct {
	plan  *flatten.Plan
	found map[types.IocEntryID]int
}

// New folds outcomes into per-entry success counts
func New(plan *flatten.Plan, outcomes []search.Outcome) *Evaluator {
	return &Evaluator{plan: plan, found: CountSuccesses(outcomes)}
}

// Evaluate returns the confirmed IOC ids, sorted ascending without duplicates
func Evaluate(plan *flatten.Plan, outcomes []search.Outcome) []types.IocID {
	return New(plan, outcomes).Confirmed()
}

// CountSuccesses counts, per entry, the distinct modalities with at least one
// hit. A check can return many hits (one per matching file or per data item)
// yet it only contributes one toward the node's specified checks.
func CountSuccesses(outcomes []search.Outcome) map[types.IocEntryID]int {
	seen := make(map[types.IocEntryID]map[search.Modality]bool)
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		ev := o.Evidence
		mods, ok := seen[ev.EntryID]
		if !ok {
			mods = make(map[search.Modality]bool)
			seen[ev.EntryID] = mods
		}
		mods[ev.Modality] = true
	}

	counts := make(map[types.IocEntryID]int, len(seen))
	for id, mods := range seen {
		counts[id] = len(mods)
	}
	return counts
}

// Confirmed evaluates every root
func (e *Evaluator) Confirmed() []types.IocID {
	logger.Section("IOC Evaluation")
	startTime := time.Now()

	var confirmed []types.IocID
	for iocID, rootID := range e.plan.Roots {
		root, ok := e.plan.Entries[rootID]
		if !ok {
			continue
		}
		if e.EvaluateEntry(root) {
			confirmed = append(confirmed, iocID)
		}
	}

	sort.Slice(confirmed, func(i, j int) bool { return confirmed[i] < confirmed[j] })
	confirmed = dedup(confirmed)

	logger.Timing("Evaluator.Confirmed", startTime)
	logger.Info("Confirmed %d of %d IOCs", len(confirmed), len(e.plan.Roots))
	return confirmed
}

// EvaluateEntry resolves one node
func (e *Evaluator) EvaluateEntry(item *flatten.EntryItem) bool {
	self := e.selfConfirmed(item)

	switch item.EvalPolicy.OrDefault() {
	case types.PolicyAll:
		if self {
			return e.evaluateChildren(item, true)
		}
		if item.ChecksSpecified == 0 {
			return e.evaluateChildren(item, false)
		}
		logger.Debug("Entry %d: %d of %d checks found, policy ALL", item.EntryID, e.found[item.EntryID], item.ChecksSpecified)
		return false

	default:
		if self {
			return true
		}
		return e.evaluateChildren(item, false)
	}
}

func (e *Evaluator) selfConfirmed(item *flatten.EntryItem) bool {
	if item.ChecksSpecified == 0 {
		return false
	}
	return Satisfied(item.EvalPolicy, item.ChecksSpecified, e.found[item.EntryID])
}

// evaluateChildren returns fallback for a leaf
func (e *Evaluator) evaluateChildren(item *flatten.EntryItem, fallback bool) bool {
	if len(item.Children) == 0 {
		return fallback
	}

	passed := 0
	for _, childID := range item.Children {
		child, ok := e.plan.Entries[childID]
		if !ok {
			continue
		}
		if e.EvaluateEntry(child) {
			passed++
		}
	}
	return Satisfied(item.ChildEvalPolicy, len(item.Children), passed)
}

func dedup(ids []types.IocID) []types.IocID {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
