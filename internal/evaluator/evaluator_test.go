package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/flatten"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

func hit(ioc types.IocID, entry types.IocEntryID, m search.Modality) search.Outcome {
	return search.Hit(search.Tag{IocID: ioc, EntryID: entry}, m, "found")
}

func fail(ioc types.IocID, entry types.IocEntryID, m search.Modality) search.Outcome {
	return search.Fail(search.Tag{IocID: ioc, EntryID: entry}, m, search.KindIO, "boom")
}

func mustFlatten(t *testing.T, iocs ...types.Ioc) *flatten.Plan {
	t.Helper()
	plan, err := flatten.Flatten(iocs, 0)
	require.NoError(t, err)
	return plan
}

func fileCheck() *types.FileInfo { return &types.FileInfo{Name: "evil.exe"} }

func TestSatisfied(t *testing.T) {
	tests := []struct {
		policy   types.EvalPolicy
		required int
		actual   int
		want     bool
	}{
		{types.PolicyOne, 3, 0, false},
		{types.PolicyOne, 3, 1, true},
		{types.PolicyAll, 3, 2, false},
		{types.PolicyAll, 3, 3, true},
		{"", 2, 1, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Satisfied(tt.policy, tt.required, tt.actual), "%s %d/%d", tt.policy, tt.actual, tt.required)
	}
}

func TestEvaluate_SingleFileCheckOne(t *testing.T) {
	plan := mustFlatten(t, types.Ioc{ID: 1, Definition: types.IocEntry{EvalPolicy: types.PolicyOne, FileCheck: fileCheck()}})
	root := plan.Roots[1]

	got := Evaluate(plan, []search.Outcome{hit(1, root, search.File)})
	assert.Equal(t, []types.IocID{1}, got)
}

func TestEvaluate_AllRequiresEveryCheck(t *testing.T) {
	plan := mustFlatten(t, types.Ioc{ID: 2, Definition: types.IocEntry{
		EvalPolicy:    types.PolicyAll,
		FileCheck:     fileCheck(),
		RegistryCheck: &types.RegistryInfo{Key: "HKLM\\Software\\Evil"},
	}})
	root := plan.Roots[2]

	assert.Empty(t, Evaluate(plan, []search.Outcome{hit(2, root, search.File)}))
	assert.Equal(t, []types.IocID{2}, Evaluate(plan, []search.Outcome{
		hit(2, root, search.File),
		hit(2, root, search.Registry),
	}))
}

func TestEvaluate_AllNotFooledByRepeatedHits(t *testing.T) {
	plan := mustFlatten(t, types.Ioc{ID: 2, Definition: types.IocEntry{
		EvalPolicy:    types.PolicyAll,
		FileCheck:     fileCheck(),
		RegistryCheck: &types.RegistryInfo{Key: "HKLM\\Software\\Evil"},
	}})
	root := plan.Roots[2]

	got := Evaluate(plan, []search.Outcome{
		hit(2, root, search.File),
		hit(2, root, search.File),
	})
	assert.Empty(t, got)
}

func TestEvaluate_VacuousOneWithChildrenOne(t *testing.T) {
	plan := mustFlatten(t, types.Ioc{ID: 3, Definition: types.IocEntry{
		EvalPolicy:      types.PolicyOne,
		ChildEvalPolicy: types.PolicyOne,
		Offspring: []types.IocEntry{
			{FileCheck: fileCheck()},
			{DNSCheck: &types.DNSInfo{Data: []string{"c2.example"}}},
		},
	}})
	children := plan.Entries[plan.Roots[3]].Children
	require.Len(t, children, 2)

	got := Evaluate(plan, []search.Outcome{hit(3, children[0], search.File)})
	assert.Equal(t, []types.IocID{3}, got)
}

func TestEvaluate_VacuousAllWithChildrenAll(t *testing.T) {
	plan := mustFlatten(t, types.Ioc{ID: 4, Definition: types.IocEntry{
		EvalPolicy:      types.PolicyAll,
		ChildEvalPolicy: types.PolicyAll,
		Offspring: []types.IocEntry{
			{FileCheck: fileCheck()},
			{DNSCheck: &types.DNSInfo{Data: []string{"c2.example"}}},
		},
	}})
	children := plan.Entries[plan.Roots[4]].Children

	assert.NotContains(t, Evaluate(plan, []search.Outcome{hit(4, children[0], search.File)}), types.IocID(4))
	assert.Equal(t, []types.IocID{4}, Evaluate(plan, []search.Outcome{
		hit(4, children[0], search.File),
		hit(4, children[1], search.DNS),
	}))
}

func TestEvaluate_IndependentTreesSortedAndDeduplicated(t *testing.T) {
	plan := mustFlatten(t,
		types.Ioc{ID: 9, Definition: types.IocEntry{FileCheck: fileCheck()}},
		types.Ioc{ID: 5, Definition: types.IocEntry{MutexCheck: &types.MutexInfo{Data: []string{"m"}}}},
	)
	r9, r5 := plan.Roots[9], plan.Roots[5]
	assert.NotEqual(t, r9, r5)

	outcomes := []search.Outcome{
		hit(9, r9, search.File),
		hit(9, r9, search.File),
		hit(5, r5, search.Mutex),
		hit(5, r5, search.Mutex),
	}
	assert.Equal(t, []types.IocID{5, 9}, Evaluate(plan, outcomes))
}

func TestEvaluate_LeafWithoutChecksNeverConfirmed(t *testing.T) {
	for _, policy := range []types.EvalPolicy{types.PolicyAll, types.PolicyOne} {
		plan := mustFlatten(t, types.Ioc{ID: 1, Definition: types.IocEntry{EvalPolicy: policy}})
		root := plan.Roots[1]
		assert.Empty(t, Evaluate(plan, []search.Outcome{hit(1, root, search.File)}), policy)
	}
}

func TestEvaluate_OneFallsThroughToChildren(t *testing.T) {
	plan := mustFlatten(t, types.Ioc{ID: 1, Definition: types.IocEntry{
		EvalPolicy:      types.PolicyOne,
		ChildEvalPolicy: types.PolicyAll,
		FileCheck:       fileCheck(),
		Offspring: []types.IocEntry{
			{MutexCheck: &types.MutexInfo{Data: []string{"a"}}},
			{MutexCheck: &types.MutexInfo{Data: []string{"b"}}},
		},
	}})
	children := plan.Entries[plan.Roots[1]].Children

	assert.Empty(t, Evaluate(plan, []search.Outcome{hit(1, children[0], search.Mutex)}))
	assert.Equal(t, []types.IocID{1}, Evaluate(plan, []search.Outcome{
		hit(1, children[0], search.Mutex),
		hit(1, children[1], search.Mutex),
	}))
	// self hit short-circuits children
	assert.Equal(t, []types.IocID{1}, Evaluate(plan, []search.Outcome{hit(1, plan.Roots[1], search.File)}))
}

func TestEvaluate_AllSelfAndChildren(t *testing.T) {
	plan := mustFlatten(t, types.Ioc{ID: 1, Definition: types.IocEntry{
		EvalPolicy:      types.PolicyAll,
		ChildEvalPolicy: types.PolicyOne,
		FileCheck:       fileCheck(),
		Offspring: []types.IocEntry{
			{MutexCheck: &types.MutexInfo{Data: []string{"a"}}},
		},
	}})
	root := plan.Roots[1]
	child := plan.Entries[root].Children[0]

	assert.Empty(t, Evaluate(plan, []search.Outcome{hit(1, root, search.File)}))
	assert.Empty(t, Evaluate(plan, []search.Outcome{hit(1, child, search.Mutex)}))
	assert.Equal(t, []types.IocID{1}, Evaluate(plan, []search.Outcome{
		hit(1, root, search.File),
		hit(1, child, search.Mutex),
	}))
}

func TestEvaluate_ErrorsDoNotConfirm(t *testing.T) {
	plan := mustFlatten(t, types.Ioc{ID: 1, Definition: types.IocEntry{FileCheck: fileCheck()}})
	assert.Empty(t, Evaluate(plan, []search.Outcome{fail(1, plan.Roots[1], search.File)}))
}

func TestEvaluate_Idempotent(t *testing.T) {
	plan := mustFlatten(t,
		types.Ioc{ID: 1, Definition: types.IocEntry{FileCheck: fileCheck()}},
		types.Ioc{ID: 2, Definition: types.IocEntry{FileCheck: fileCheck()}},
	)
	outcomes := []search.Outcome{hit(1, plan.Roots[1], search.File)}

	ev := New(plan, outcomes)
	first := ev.Confirmed()
	second := ev.Confirmed()
	assert.Equal(t, first, second)
	assert.Equal(t, first, Evaluate(plan, outcomes))
}

func TestCountSuccesses_DistinctModalities(t *testing.T) {
	counts := CountSuccesses([]search.Outcome{
		hit(1, 2, search.File),
		hit(1, 2, search.File),
		hit(1, 2, search.DNS),
		fail(1, 2, search.Registry),
		hit(1, 3, search.Mutex),
	})
	assert.Equal(t, 2, counts[2])
	assert.Equal(t, 1, counts[3])
	assert.Zero(t, counts[4])
}
