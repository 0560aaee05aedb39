package report

import (
	"sort"

	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// IocSummary is one IOC's share of a report, ready for display
type IocSummary struct {
	IocID     types.IocID
	Name      string
	Confirmed bool
	Evidence  []string
	Errors    []string
}

// Group joins a report with the IOC definitions it was produced from.
// Confirmed IOCs come first, then IOCs with partial evidence or errors;
// IOCs with neither are left out.
func Group(r *types.Report, iocs []types.Ioc) []IocSummary {
	names := make(map[types.IocID]string, len(iocs))
	for i := range iocs {
		if _, ok := names[iocs[i].ID]; !ok {
			names[iocs[i].ID] = iocs[i].DisplayName()
		}
	}

	byID := make(map[types.IocID]*IocSummary)
	get := func(id types.IocID) *IocSummary {
		s, ok := byID[id]
		if !ok {
			name, known := names[id]
			if !known {
				name = "(unknown)"
			}
			s = &IocSummary{IocID: id, Name: name}
			byID[id] = s
		}
		return s
	}

	for _, id := range r.FoundIocs {
		get(id).Confirmed = true
	}
	for _, res := range r.IocResults {
		s := get(res.IocID)
		s.Evidence = append(s.Evidence, res.Data...)
	}
	for _, e := range r.IocErrors {
		s := get(e.IocID)
		s.Errors = append(s.Errors, e.Message)
	}

	out := make([]IocSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confirmed != out[j].Confirmed {
			return out[i].Confirmed
		}
		return out[i].IocID < out[j].IocID
	})
	return out
}
