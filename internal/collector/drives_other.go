//go:build !windows

package collector

func fixedDrives() []string {
	return []string{"/"}
}
