package collector

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/privilege"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// errRegistryUnsupported is returned by the registry view on platforms without a registry
var errRegistryUnsupported = errors.New("registry not available on this platform")

// hiveAliases maps accepted hive tokens to their canonical name
var hiveAliases = map[string]string{
	"HKEY_CLASSES_ROOT":     "HKEY_CLASSES_ROOT",
	"HKCR":                  "HKEY_CLASSES_ROOT",
	"HKEY_CURRENT_USER":     "HKEY_CURRENT_USER",
	"HKCU":                  "HKEY_CURRENT_USER",
	"HKEY_LOCAL_MACHINE":    "HKEY_LOCAL_MACHINE",
	"HKLM":                  "HKEY_LOCAL_MACHINE",
	"HKEY_USERS":            "HKEY_USERS",
	"HKU":                   "HKEY_USERS",
	"HKEY_CURRENT_CONFIG":   "HKEY_CURRENT_CONFIG",
	"HKCC":                  "HKEY_CURRENT_CONFIG",
	"HKEY_PERFORMANCE_DATA": "HKEY_PERFORMANCE_DATA",
}

// registryView is the registry access the collector needs
type registryView interface {
	// Value returns the named value of hive\path coerced to a string. ok is
	// false when the key or value does not exist.
	Value(hive, path, name string) (value string, ok bool, err error)
	// KeyExists reports whether hive\path can be opened
	KeyExists(hive, path string) (bool, error)
	// Walk visits every key below hive with its path relative to the hive.
	// Returning false from visit stops the walk.
	Walk(hive string, visit func(path string) bool) error
}

// SplitRegistryKey splits a key into its canonical hive and sub-path
func SplitRegistryKey(key string) (hive, path string, err error) {
	key = strings.Trim(strings.TrimSpace(key), `\`)
	token, rest, _ := strings.Cut(key, `\`)
	hive, ok := hiveAliases[strings.ToUpper(token)]
	if !ok {
		return "", "", fmt.Errorf("unknown registry hive %q", token)
	}
	return hive, rest, nil
}

// RegistryCollector searches registry keys and values
type RegistryCollector struct {
	opts Options
	view registryView
}

// NewRegistryCollector creates a new registry collector
func NewRegistryCollector(opts Options) *RegistryCollector {
	return &RegistryCollector{opts: opts, view: newRegistryView()}
}

// Search opens exact keys directly and walks the configured hives for regex
// requests when deep search is enabled.
func (c *RegistryCollector) Search(params []search.RegistryParameters) []search.Outcome {
	if len(params) == 0 {
		return nil
	}
	logger.Section("Registry Search")
	startTime := time.Now()

	guard, err := privilege.Acquire(privilege.TakeOwnership)
	if err != nil {
		logger.Warn("Registry search: %v", err)
	}
	defer guard.Release()

	patterns, results := compilePatterns(search.Registry, params, c.opts.RegexTimeout,
		func(p search.RegistryParameters) (search.Tag, bool, string) {
			return p.Tag, p.Search == types.SearchRegex, p.Key
		})

	var regexPending []int
	for i, p := range params {
		if p.Search == types.SearchRegex {
			if _, ok := patterns[i]; ok {
				regexPending = append(regexPending, i)
			}
			continue
		}
		if out, ok := c.checkExact(p); ok {
			results = append(results, out)
		}
	}

	if len(regexPending) == 0 {
		logger.Timing("RegistryCollector.Search", startTime)
		logger.Info("Registry search: %d outcomes for %d requests", len(results), len(params))
		return results
	}
	if !c.opts.DeepSearch {
		logger.Info("Registry search: %d regex requests, skipping deep search", len(regexPending))
		logger.Timing("RegistryCollector.Search", startTime)
		return results
	}

	results = append(results, c.deepSearch(params, patterns, regexPending)...)

	logger.Timing("RegistryCollector.Search", startTime)
	logger.Info("Registry search: %d outcomes for %d requests", len(results), len(params))
	return results
}

func (c *RegistryCollector) checkExact(p search.RegistryParameters) (search.Outcome, bool) {
	hive, path, err := SplitRegistryKey(p.Key)
	if err != nil {
		return search.Fail(p.Tag, search.Registry, search.KindIO, "%v", err), true
	}

	if p.ValueName == "" && p.Value == nil {
		exists, err := c.view.KeyExists(hive, path)
		if err != nil {
			return c.viewError(p, err)
		}
		if !exists {
			return search.Outcome{}, false
		}
		logger.Info("Registry search: Found reg key %s for IOC %d", p.Key, p.IocID)
		return search.Hit(p.Tag, search.Registry, "Registry search: Found reg key %s for IOC %d", p.Key, p.IocID), true
	}

	value, ok, err := c.view.Value(hive, path, p.ValueName)
	if err != nil {
		return c.viewError(p, err)
	}
	if !ok {
		return search.Outcome{}, false
	}
	return c.compareValue(p, p.Key, value)
}

// compareValue matches an existing value against the expected one, if any
func (c *RegistryCollector) compareValue(p search.RegistryParameters, key, value string) (search.Outcome, bool) {
	if p.Value == nil {
		logger.Info("Registry search: Found reg key %s\\%s for IOC %d", key, p.ValueName, p.IocID)
		return search.Hit(p.Tag, search.Registry, "Registry search: Found reg key %s\\%s for IOC %d", key, p.ValueName, p.IocID), true
	}
	if *p.Value != value {
		logger.Debug("Registry search: %s\\%s = %q, expected %q", key, p.ValueName, value, *p.Value)
		return search.Outcome{}, false
	}
	logger.Info("Registry search: Found reg key %s\\%s = %s for IOC %d", key, p.ValueName, value, p.IocID)
	return search.Hit(p.Tag, search.Registry, "Registry search: Found reg key %s\\%s = %s for IOC %d", key, p.ValueName, value, p.IocID), true
}

func (c *RegistryCollector) viewError(p search.RegistryParameters, err error) (search.Outcome, bool) {
	if errors.Is(err, errRegistryUnsupported) {
		logger.Debug("Registry search: %v", err)
		return search.Outcome{}, false
	}
	return search.Fail(p.Tag, search.Registry, search.KindOS, "cannot read %s: %v", p.Key, err), true
}

// deepSearch walks each configured hive once, testing every key's full path
// against the remaining regex requests.
func (c *RegistryCollector) deepSearch(params []search.RegistryParameters, patterns map[int]*search.Pattern, pending []int) []search.Outcome {
	var results []search.Outcome
	matched := make(map[int]bool, len(pending))

	hives := c.opts.RegistryHives
	if len(hives) == 0 {
		hives = []string{"HKEY_LOCAL_MACHINE", "HKEY_CURRENT_USER", "HKEY_USERS"}
	}

	for _, token := range hives {
		if len(matched) == len(pending) {
			break
		}
		hive, _, err := SplitRegistryKey(token)
		if err != nil {
			logger.Warn("Registry search: %v", err)
			continue
		}
		logger.SubSection("Deep search in " + hive)

		err = c.view.Walk(hive, func(path string) bool {
			full := hive + `\` + path
			for _, i := range pending {
				if matched[i] || !patterns[i].MatchString(full) {
					continue
				}
				p := params[i]
				if p.ValueName == "" && p.Value == nil {
					matched[i] = true
					logger.Info("Registry search: Found reg key %s for IOC %d", full, p.IocID)
					results = append(results, search.Hit(p.Tag, search.Registry, "Registry search: Found reg key %s for IOC %d", full, p.IocID))
					continue
				}
				value, ok, err := c.view.Value(hive, path, p.ValueName)
				if err != nil || !ok {
					continue
				}
				if out, ok := c.compareValue(p, full, value); ok {
					matched[i] = true
					results = append(results, out)
				}
			}
			return len(matched) < len(pending)
		})
		if err != nil && !errors.Is(err, errRegistryUnsupported) {
			logger.Warn("Registry search: walk of %s stopped: %v", hive, err)
		}
	}
	return results
}
