package flatten

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

func strPtr(s string) *string { return &s }

func TestAllocator_StartsAboveReserved(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, FirstEntryID, a.Next())
	assert.Equal(t, FirstEntryID+1, a.Next())

	b := NewAllocatorFrom(0)
	assert.Equal(t, FirstEntryID, b.Next())

	c := NewAllocatorFrom(100)
	assert.Equal(t, types.IocEntryID(100), c.Next())
}

func TestFlatten_AssignsUniqueIDsAcrossTrees(t *testing.T) {
	iocs := []types.Ioc{
		{ID: 10, Definition: types.IocEntry{
			Offspring: []types.IocEntry{
				{FileCheck: &types.FileInfo{Name: "a.exe"}},
				{Offspring: []types.IocEntry{{DNSCheck: &types.DNSInfo{Data: []string{"evil.example"}}}}},
			},
		}},
		{ID: 20, Definition: types.IocEntry{MutexCheck: &types.MutexInfo{Data: []string{"Global\\x"}}}},
	}

	plan, err := Flatten(iocs, 0)
	require.NoError(t, err)

	assert.Len(t, plan.Roots, 2)
	assert.Len(t, plan.Entries, 5)

	seen := map[types.IocEntryID]bool{}
	for id, item := range plan.Entries {
		assert.Equal(t, id, item.EntryID)
		assert.GreaterOrEqual(t, id, FirstEntryID)
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.NotEqual(t, plan.Roots[10], plan.Roots[20])

	root := plan.Entries[plan.Roots[10]]
	require.Len(t, root.Children, 2)
	assert.Equal(t, types.IocID(10), plan.Entries[root.Children[1]].IocID)
	assert.Len(t, plan.Entries[root.Children[1]].Children, 1)
	assert.Empty(t, plan.Entries[root.Children[0]].Children)
}

func TestFlatten_DefaultsAndCounts(t *testing.T) {
	iocs := []types.Ioc{{ID: 1, Definition: types.IocEntry{
		EvalPolicy:    types.PolicyAll,
		FileCheck:     &types.FileInfo{Name: "x"},
		RegistryCheck: &types.RegistryInfo{Key: "HKLM\\Software\\X", ValueName: "v", Value: strPtr("1")},
		DNSCheck:      &types.DNSInfo{Data: []string{"a.example", "b.example"}},
	}}}

	plan, err := Flatten(iocs, 0)
	require.NoError(t, err)

	root := plan.Entries[plan.Roots[1]]
	assert.Equal(t, types.PolicyAll, root.EvalPolicy)
	assert.Equal(t, types.PolicyOne, root.ChildEvalPolicy)
	assert.Equal(t, 3, root.ChecksSpecified)

	require.Len(t, plan.Requests.Files, 1)
	assert.Equal(t, types.SearchExact, plan.Requests.Files[0].Search)
	assert.Equal(t, search.Tag{IocID: 1, EntryID: root.EntryID}, plan.Requests.Files[0].Tag)
	assert.Len(t, plan.Requests.Registry, 1)
	assert.Len(t, plan.Requests.DNS, 2)
	assert.Equal(t, 4, plan.Requests.Total())
}

func TestFlatten_ProcessHashOnly(t *testing.T) {
	iocs := []types.Ioc{{ID: 1, Definition: types.IocEntry{
		ProcessCheck: &types.ProcessInfo{Hash: &types.Hashed{Algorithm: types.HashMD5, Value: "abc"}},
	}}}

	plan, err := Flatten(iocs, 0)
	require.NoError(t, err)
	require.Len(t, plan.Requests.Processes, 1)
	assert.Empty(t, plan.Requests.Processes[0].Name)
	assert.NotNil(t, plan.Requests.Processes[0].Hash)
}

func TestFlatten_DuplicateIocKeepsFirst(t *testing.T) {
	iocs := []types.Ioc{
		{ID: 5, Definition: types.IocEntry{FileCheck: &types.FileInfo{Name: "first"}}},
		{ID: 5, Definition: types.IocEntry{FileCheck: &types.FileInfo{Name: "second"}}},
	}

	plan, err := Flatten(iocs, 0)
	require.NoError(t, err)
	assert.Len(t, plan.Roots, 1)
	require.Len(t, plan.Requests.Files, 1)
	assert.Equal(t, "first", plan.Requests.Files[0].Name)
}

func TestFlatten_MaxDepth(t *testing.T) {
	deep := types.IocEntry{FileCheck: &types.FileInfo{Name: "leaf"}}
	for i := 0; i < 5; i++ {
		deep = types.IocEntry{Offspring: []types.IocEntry{deep}}
	}
	iocs := []types.Ioc{{ID: 7, Definition: deep}}

	_, err := Flatten(iocs, 6)
	assert.NoError(t, err)

	_, err = Flatten(iocs, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxDepthExceeded))

	var depthErr *DepthError
	require.True(t, errors.As(err, &depthErr))
	assert.Equal(t, types.IocID(7), depthErr.IocID)
}

func TestFlatten_SharedAllocatorAcrossBatches(t *testing.T) {
	alloc := NewAllocator()
	f := New(alloc, 0)

	p1, err := f.Flatten([]types.Ioc{{ID: 1}})
	require.NoError(t, err)
	p2, err := f.Flatten([]types.Ioc{{ID: 2}})
	require.NoError(t, err)

	assert.Less(t, p1.Roots[1], p2.Roots[2])
}
