//go:build windows

package collector

import (
	"unicode/utf16"
	"unicode/utf8"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procMultiByteToWideChar = modkernel32.NewProc("MultiByteToWideChar")
	procGetOEMCP            = modkernel32.NewProc("GetOEMCP")
)

const codepageUTF8 = 65001

// decodeOEMOutput converts console tool output (ipconfig /displaydns) from
// the system's OEM codepage to UTF-8. Localized Windows prints in the OEM
// codepage (e.g. CP949 on Korean Windows), so cached names with non-ASCII
// labels would otherwise never compare equal to the IOC data.
func decodeOEMOutput(data []byte) string {
	// Get OEM code page (e.g. 949 for Korean, 437 for US English)
	cp, _, _ := procGetOEMCP.Call()
	return decodeCodepage(uint32(cp), data)
}

// decodeCodepage converts data from codepage cp to UTF-8, returning the raw
// bytes when the conversion is not possible
func decodeCodepage(cp uint32, data []byte) string {
	if len(data) == 0 {
		return ""
	}

	// Pure ASCII reads the same in every OEM codepage
	if isASCII(data) || (cp == codepageUTF8 && utf8.Valid(data)) {
		return string(data)
	}

	// First call sizes the buffer in UTF-16 units
	n, _, _ := procMultiByteToWideChar.Call(
		uintptr(cp), 0,
		uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)),
		0, 0,
	)
	if n == 0 {
		return string(data)
	}

	buf := make([]uint16, n)
	written, _, _ := procMultiByteToWideChar.Call(
		uintptr(cp), 0,
		uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)),
		uintptr(unsafe.Pointer(&buf[0])), n,
	)
	if written == 0 {
		return string(data)
	}
	return string(utf16.Decode(buf[:written]))
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
