// Package report turns confirmed IOC ids and matcher outcomes into the
// report handed to sinks, and groups it for display.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// Assembler builds reports
type Assembler struct {
	// Now stamps the report; time.Now when nil
	Now func() time.Time
	// Detail keeps per-IOC evidence and errors in the report
	Detail bool
}

// New creates an assembler that retains evidence and errors
func New() *Assembler {
	return &Assembler{Now: time.Now, Detail: true}
}

// Assemble stamps the report and carries the confirmed ids through. With
// Detail set, evidence descriptions and errors are grouped per IOC id in
// ascending id order, keeping outcome order within an IOC.
func (a *Assembler) Assemble(scanID string, confirmed []types.IocID, outcomes []search.Outcome) *types.Report {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	if scanID == "" {
		scanID = uuid.New().String()
	}

	found := make([]types.IocID, len(confirmed))
	copy(found, confirmed)

	r := &types.Report{
		Datetime:   now(),
		ScanID:     scanID,
		FoundIocs:  found,
		IocResults: []types.IocSearchResult{},
		IocErrors:  []types.IocSearchError{},
	}
	if !a.Detail {
		return r
	}

	evidence := make(map[types.IocID][]string)
	var order []types.IocID
	for _, o := range outcomes {
		if o.Evidence == nil {
			continue
		}
		id := o.Evidence.IocID
		if _, ok := evidence[id]; !ok {
			order = append(order, id)
		}
		evidence[id] = append(evidence[id], o.Evidence.Description)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	for _, id := range order {
		r.IocResults = append(r.IocResults, types.IocSearchResult{IocID: id, Data: evidence[id]})
	}

	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		r.IocErrors = append(r.IocErrors, types.IocSearchError{
			IocID:   o.Err.IocID,
			Kind:    string(o.Err.Kind),
			Message: o.Err.Error(),
		})
	}
	sort.SliceStable(r.IocErrors, func(i, j int) bool { return r.IocErrors[i].IocID < r.IocErrors[j].IocID })
	return r
}
