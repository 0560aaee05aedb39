//go:build windows

package collector

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
)

var (
	modntdll                     = windows.NewLazySystemDLL("ntdll.dll")
	procNtQuerySystemInformation = modntdll.NewProc("NtQuerySystemInformation")
	procNtQueryObject            = modntdll.NewProc("NtQueryObject")
)

const (
	systemExtendedHandleInformation = 64
	objectNameInformation           = 1
	objectTypeInformation           = 2
	statusInfoLengthMismatch        = 0xC0000004
	maxHandleInformationBuffer      = 512 << 20
)

// SYSTEM_HANDLE_TABLE_ENTRY_INFO_EX is one entry of
// SystemExtendedHandleInformation. Unlike the legacy class it carries full
// width process ids and handle values.
type SYSTEM_HANDLE_TABLE_ENTRY_INFO_EX struct {
	Object                uintptr
	UniqueProcessId       uintptr
	HandleValue           uintptr
	GrantedAccess         uint32
	CreatorBackTraceIndex uint16
	ObjectTypeIndex       uint16
	HandleAttributes      uint32
	Reserved              uint32
}

type ntHandleEnumerator struct{}

func newSyncObjectEnumerator() SyncObjectEnumerator {
	return ntHandleEnumerator{}
}

// EnumerateNamedSyncObjects duplicates every handle in the system into this
// process and keeps the named ones of type Mutant.
func (ntHandleEnumerator) EnumerateNamedSyncObjects() ([]SyncObject, error) {
	for _, p := range []*windows.LazyProc{procNtQuerySystemInformation, procNtQueryObject} {
		if err := p.Find(); err != nil {
			return nil, fmt.Errorf("cannot load %s: %w", p.Name, err)
		}
	}

	entries, err := querySystemHandles()
	if err != nil {
		return nil, err
	}
	logger.Debug("Mutex search: %d system handles", len(entries))

	self := windows.CurrentProcess()
	selfPID := windows.GetCurrentProcessId()
	processes := make(map[uint32]windows.Handle)
	defer func() {
		for _, h := range processes {
			windows.CloseHandle(h)
		}
	}()

	typeBuf := make([]byte, 1024)
	nameBuf := make([]byte, 4096)
	mutantType := -1

	var objects []SyncObject
	for _, e := range entries {
		pid := uint32(e.UniqueProcessId)
		if pid == 0 || pid == 4 || pid == selfPID {
			continue
		}
		if mutantType >= 0 && int(e.ObjectTypeIndex) != mutantType {
			continue
		}

		proc, ok := processes[pid]
		if !ok {
			proc, err = windows.OpenProcess(windows.PROCESS_DUP_HANDLE, false, pid)
			if err != nil {
				proc = 0
			}
			processes[pid] = proc
		}
		if proc == 0 {
			continue
		}

		var dup windows.Handle
		err := windows.DuplicateHandle(proc, windows.Handle(e.HandleValue), self, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
		if err != nil {
			continue
		}

		typeName, err := queryObjectString(dup, objectTypeInformation, typeBuf)
		if err != nil || typeName != "Mutant" {
			windows.CloseHandle(dup)
			continue
		}
		if mutantType < 0 {
			// the type index is stable for the boot, later entries can be filtered cheaply
			mutantType = int(e.ObjectTypeIndex)
		}

		name, err := queryObjectString(dup, objectNameInformation, nameBuf)
		windows.CloseHandle(dup)
		if err != nil || name == "" {
			continue
		}
		objects = append(objects, SyncObject{Name: name, OwnerPID: pid})
	}
	return objects, nil
}

// querySystemHandles grows the buffer until the handle table fits
func querySystemHandles() ([]SYSTEM_HANDLE_TABLE_ENTRY_INFO_EX, error) {
	size := uint32(1 << 20)
	for {
		buf := make([]byte, size)
		var needed uint32
		status, _, _ := procNtQuerySystemInformation.Call(
			systemExtendedHandleInformation,
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(size),
			uintptr(unsafe.Pointer(&needed)),
		)
		if status == statusInfoLengthMismatch {
			size *= 2
			if size > maxHandleInformationBuffer {
				return nil, fmt.Errorf("handle table larger than %d bytes", maxHandleInformationBuffer)
			}
			continue
		}
		if status != 0 {
			return nil, fmt.Errorf("NtQuerySystemInformation: NTSTATUS 0x%08X", status)
		}

		// header: NumberOfHandles and a reserved pointer-sized field
		count := *(*uintptr)(unsafe.Pointer(&buf[0]))
		offset := 2 * unsafe.Sizeof(uintptr(0))
		entrySize := unsafe.Sizeof(SYSTEM_HANDLE_TABLE_ENTRY_INFO_EX{})
		if count*entrySize+offset > uintptr(len(buf)) {
			return nil, fmt.Errorf("handle table truncated")
		}
		first := (*SYSTEM_HANDLE_TABLE_ENTRY_INFO_EX)(unsafe.Pointer(&buf[offset]))
		entries := make([]SYSTEM_HANDLE_TABLE_ENTRY_INFO_EX, count)
		copy(entries, unsafe.Slice(first, count))
		return entries, nil
	}
}

// queryObjectString reads the UNICODE_STRING at the start of an object
// information class (type or name)
func queryObjectString(h windows.Handle, class uint32, buf []byte) (string, error) {
	var needed uint32
	status, _, _ := procNtQueryObject.Call(
		uintptr(h),
		uintptr(class),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&needed)),
	)
	if status != 0 {
		return "", fmt.Errorf("NtQueryObject: NTSTATUS 0x%08X", status)
	}
	us := (*windows.NTUnicodeString)(unsafe.Pointer(&buf[0]))
	if us.Length == 0 || us.Buffer == nil {
		return "", nil
	}
	return windows.UTF16ToString(unsafe.Slice(us.Buffer, us.Length/2)), nil
}
