//go:build windows

package collector

import (
	"golang.org/x/sys/windows"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
)

// fixedDrives lists the root of every fixed (DRIVE_FIXED) logical drive
func fixedDrives() []string {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		logger.APIResult("GetLogicalDrives", nil, err)
		return nil
	}

	var drives []string
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		root := string(rune('A'+i)) + `:\`
		ptr, err := windows.UTF16PtrFromString(root)
		if err != nil {
			continue
		}
		if windows.GetDriveType(ptr) == windows.DRIVE_FIXED {
			drives = append(drives, root)
		}
	}
	logger.Debug("Fixed drives: %v", drives)
	return drives
}
