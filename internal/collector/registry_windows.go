//go:build windows

package collector

import (
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

var hiveKeys = map[string]registry.Key{
	"HKEY_CLASSES_ROOT":     registry.CLASSES_ROOT,
	"HKEY_CURRENT_USER":     registry.CURRENT_USER,
	"HKEY_LOCAL_MACHINE":    registry.LOCAL_MACHINE,
	"HKEY_USERS":            registry.USERS,
	"HKEY_CURRENT_CONFIG":   registry.CURRENT_CONFIG,
	"HKEY_PERFORMANCE_DATA": registry.PERFORMANCE_DATA,
}

type winRegistry struct{}

func newRegistryView() registryView {
	return winRegistry{}
}

func isNotExist(err error) bool {
	return errors.Is(err, registry.ErrNotExist) || errors.Is(err, windows.ERROR_PATH_NOT_FOUND)
}

func (winRegistry) open(hive, path string, access uint32) (registry.Key, error) {
	root, ok := hiveKeys[hive]
	if !ok {
		return 0, fmt.Errorf("unknown registry hive %q", hive)
	}
	if path == "" {
		return root, nil
	}
	return registry.OpenKey(root, path, access)
}

func (r winRegistry) KeyExists(hive, path string) (bool, error) {
	k, err := r.open(hive, path, registry.QUERY_VALUE)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if path != "" {
		k.Close()
	}
	return true, nil
}

func (r winRegistry) Value(hive, path, name string) (string, bool, error) {
	k, err := r.open(hive, path, registry.QUERY_VALUE)
	if err != nil {
		if isNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if path != "" {
		defer k.Close()
	}

	value, ok, err := readRegistryValue(k, name)
	if err != nil && isNotExist(err) {
		return "", false, nil
	}
	return value, ok, err
}

// readRegistryValue reads a string value, falling back to DWORD/QWORD rendered in decimal
func readRegistryValue(key registry.Key, name string) (string, bool, error) {
	s, _, err := key.GetStringValue(name)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, registry.ErrUnexpectedType) {
		return "", false, err
	}

	n, _, err := key.GetIntegerValue(name)
	if err == nil {
		return strconv.FormatUint(n, 10), true, nil
	}
	if errors.Is(err, registry.ErrUnexpectedType) {
		// binary and multi-string values are not comparable
		return "", false, nil
	}
	return "", false, err
}

func (r winRegistry) Walk(hive string, visit func(path string) bool) error {
	root, ok := hiveKeys[hive]
	if !ok {
		return fmt.Errorf("unknown registry hive %q", hive)
	}

	stack := []string{""}
	for len(stack) > 0 {
		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		k := root
		if path != "" {
			var err error
			k, err = registry.OpenKey(root, path, registry.ENUMERATE_SUB_KEYS|registry.QUERY_VALUE)
			if err != nil {
				continue
			}
		}
		names, err := k.ReadSubKeyNames(-1)
		if path != "" {
			k.Close()
		}
		if err != nil {
			continue
		}

		for i := len(names) - 1; i >= 0; i-- {
			child := names[i]
			if path != "" {
				child = path + `\` + names[i]
			}
			if !visit(child) {
				return nil
			}
			stack = append(stack, child)
		}
	}
	return nil
}
