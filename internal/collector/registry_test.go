package collector

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// fakeRegistry stores values as "HIVE\path" -> name -> value
type fakeRegistry struct {
	keys    map[string]map[string]string
	failKey string
}

func (f *fakeRegistry) key(hive, path string) string {
	if path == "" {
		return hive
	}
	return hive + `\` + path
}

func (f *fakeRegistry) Value(hive, path, name string) (string, bool, error) {
	k := f.key(hive, path)
	if k == f.failKey {
		return "", false, errors.New("access denied")
	}
	values, ok := f.keys[k]
	if !ok {
		return "", false, nil
	}
	v, ok := values[name]
	return v, ok, nil
}

func (f *fakeRegistry) KeyExists(hive, path string) (bool, error) {
	_, ok := f.keys[f.key(hive, path)]
	return ok, nil
}

func (f *fakeRegistry) Walk(hive string, visit func(path string) bool) error {
	var paths []string
	for k := range f.keys {
		if strings.HasPrefix(k, hive+`\`) {
			paths = append(paths, strings.TrimPrefix(k, hive+`\`))
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		if !visit(p) {
			return nil
		}
	}
	return nil
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{keys: map[string]map[string]string{
		`HKEY_LOCAL_MACHINE\Software\Evil`:         {"Installed": "1", "Path": `C:\evil.exe`},
		`HKEY_LOCAL_MACHINE\Software\Evil\Plugins`: {},
		`HKEY_CURRENT_USER\Software\Run\Updater`:   {"": "updater.exe"},
		`HKEY_LOCAL_MACHINE\Software\Locked`:       {"x": "y"},
	}}
}

func strPtr(s string) *string { return &s }

func TestSplitRegistryKey(t *testing.T) {
	hive, path, err := SplitRegistryKey(`HKLM\Software\Evil`)
	require.NoError(t, err)
	assert.Equal(t, "HKEY_LOCAL_MACHINE", hive)
	assert.Equal(t, `Software\Evil`, path)

	hive, path, err = SplitRegistryKey(`hkey_current_user`)
	require.NoError(t, err)
	assert.Equal(t, "HKEY_CURRENT_USER", hive)
	assert.Empty(t, path)

	_, _, err = SplitRegistryKey(`HKXX\Software`)
	assert.Error(t, err)
}

func TestRegistryCollector_Exact(t *testing.T) {
	c := &RegistryCollector{view: newFakeRegistry()}
	out := c.Search([]search.RegistryParameters{
		{Tag: tag(1, 2), Search: types.SearchExact, Key: `HKLM\Software\Evil`, ValueName: "Installed", Value: strPtr("1")},
		{Tag: tag(2, 3), Search: types.SearchExact, Key: `HKLM\Software\Evil`, ValueName: "Installed", Value: strPtr("0")},
		{Tag: tag(3, 4), Search: types.SearchExact, Key: `HKLM\Software\Evil`, ValueName: "Path"},
		{Tag: tag(4, 5), Search: types.SearchExact, Key: `HKLM\Software\Evil`, ValueName: "installed"},
		{Tag: tag(5, 6), Search: types.SearchExact, Key: `HKLM\Software\Evil\Plugins`},
		{Tag: tag(6, 7), Search: types.SearchExact, Key: `HKLM\Software\Missing`},
		{Tag: tag(7, 8), Search: types.SearchExact, Key: `BOGUS\Software`},
	})

	var hitTags []search.Tag
	for _, h := range search.Hits(out) {
		hitTags = append(hitTags, h.Tag)
	}
	assert.Equal(t, []search.Tag{tag(1, 2), tag(3, 4), tag(5, 6)}, hitTags)

	errs := search.Errors(out)
	require.Len(t, errs, 1)
	assert.Equal(t, tag(7, 8), errs[0].Tag)
}

func TestRegistryCollector_ReadFailureIsScoped(t *testing.T) {
	view := newFakeRegistry()
	view.failKey = `HKEY_LOCAL_MACHINE\Software\Locked`
	c := &RegistryCollector{view: view}

	out := c.Search([]search.RegistryParameters{
		{Tag: tag(1, 2), Search: types.SearchExact, Key: `HKLM\Software\Locked`, ValueName: "x"},
		{Tag: tag(2, 3), Search: types.SearchExact, Key: `HKLM\Software\Evil`, ValueName: "Path"},
	})

	require.Len(t, search.Hits(out), 1)
	errs := search.Errors(out)
	require.Len(t, errs, 1)
	assert.Equal(t, search.KindOS, errs[0].Kind)
	assert.Equal(t, tag(1, 2), errs[0].Tag)
}

func TestRegistryCollector_RegexNeedsDeepSearch(t *testing.T) {
	params := []search.RegistryParameters{
		{Tag: tag(1, 2), Search: types.SearchRegex, Key: `(?i)\\software\\run\\upd.*$`},
		{Tag: tag(2, 3), Search: types.SearchRegex, Key: `Evil\\Plugins$`, ValueName: "missing"},
		{Tag: tag(3, 4), Search: types.SearchRegex, Key: `Software\\Evil$`, ValueName: "Installed", Value: strPtr("1")},
		{Tag: tag(4, 5), Search: types.SearchRegex, Key: `(`},
	}

	shallow := &RegistryCollector{view: newFakeRegistry()}
	out := shallow.Search(params)
	assert.Empty(t, search.Hits(out))
	assert.Len(t, search.Errors(out), 1)

	deep := &RegistryCollector{opts: Options{DeepSearch: true}, view: newFakeRegistry()}
	out = deep.Search(params)

	var hitTags []search.Tag
	for _, h := range search.Hits(out) {
		hitTags = append(hitTags, h.Tag)
	}
	assert.ElementsMatch(t, []search.Tag{tag(1, 2), tag(3, 4)}, hitTags)
	require.Len(t, search.Errors(out), 1)
	assert.Equal(t, search.KindPattern, search.Errors(out)[0].Kind)
}
