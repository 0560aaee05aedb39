//go:build !windows

package collector

type noRegistry struct{}

func newRegistryView() registryView {
	return noRegistry{}
}

func (noRegistry) Value(hive, path, name string) (string, bool, error) {
	return "", false, errRegistryUnsupported
}

func (noRegistry) KeyExists(hive, path string) (bool, error) {
	return false, errRegistryUnsupported
}

func (noRegistry) Walk(hive string, visit func(path string) bool) error {
	return errRegistryUnsupported
}
