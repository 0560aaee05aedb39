//go:build windows

package privilege

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
)

var (
	modadvapi32               = windows.NewLazySystemDLL("advapi32.dll")
	procAdjustTokenPrivileges = modadvapi32.NewProc("AdjustTokenPrivileges")
)

// Acquire enables name on the current process token
func Acquire(name string) (*Guard, error) {
	var token windows.Token
	err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token)
	if err != nil {
		return nil, fmt.Errorf("open process token: %w", err)
	}

	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		token.Close()
		return nil, err
	}

	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, namePtr, &luid); err != nil {
		token.Close()
		return nil, fmt.Errorf("lookup privilege %s: %w", name, err)
	}

	previous, err := adjust(token, luid, windows.SE_PRIVILEGE_ENABLED)
	if err != nil {
		token.Close()
		return nil, fmt.Errorf("enable privilege %s: %w", name, err)
	}
	logger.Debug("Privilege %s enabled (previous attributes 0x%x)", name, previous)

	return &Guard{
		name: name,
		release: func() error {
			defer token.Close()
			if _, err := adjust(token, luid, previous); err != nil {
				return fmt.Errorf("restore privilege %s: %w", name, err)
			}
			logger.Debug("Privilege %s restored", name)
			return nil
		},
	}, nil
}

// adjust sets the attributes of one privilege and returns the attributes it
// had before. AdjustTokenPrivileges succeeds without assigning anything when
// the token does not hold the privilege; that case is reported as ErrNotHeld.
func adjust(token windows.Token, luid windows.LUID, attributes uint32) (uint32, error) {
	tp := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: attributes},
		},
	}
	var prev windows.Tokenprivileges
	var returned uint32
	r1, _, e1 := procAdjustTokenPrivileges.Call(
		uintptr(token),
		0,
		uintptr(unsafe.Pointer(&tp)),
		unsafe.Sizeof(prev),
		uintptr(unsafe.Pointer(&prev)),
		uintptr(unsafe.Pointer(&returned)),
	)
	if r1 == 0 {
		return 0, e1
	}
	// success still sets the last error when nothing was assigned
	if err := assigned(e1); err != nil {
		return 0, err
	}
	return previousAttributes(&prev, luid, attributes), nil
}

func assigned(lastErr error) error {
	if errors.Is(lastErr, windows.ERROR_NOT_ALL_ASSIGNED) {
		return ErrNotHeld
	}
	return nil
}

// previousAttributes reads the prior state; an empty PreviousState means
// nothing changed, so the requested attributes were already in effect
func previousAttributes(prev *windows.Tokenprivileges, luid windows.LUID, requested uint32) uint32 {
	if prev.PrivilegeCount == 0 {
		return requested
	}
	if p := prev.Privileges[0]; p.Luid == luid {
		return p.Attributes & windows.SE_PRIVILEGE_ENABLED
	}
	return requested
}
