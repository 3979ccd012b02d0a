//go:build windows

package restartmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
)

var (
	rstrtmgr                = windows.NewLazySystemDLL("rstrtmgr.dll")
	procRmStartSession      = rstrtmgr.NewProc("RmStartSession")
	procRmRegisterResources = rstrtmgr.NewProc("RmRegisterResources")
	procRmGetList           = rstrtmgr.NewProc("RmGetList")
	procRmEndSession        = rstrtmgr.NewProc("RmEndSession")
)

// Buffer sizes from RestartManager.h (CCH_RM_* + 1 for the terminator).
const (
	sessionKeyLen = 33
	maxAppName    = 256
	maxSvcName    = 64
)

const errorMoreData = 234 // ERROR_MORE_DATA

// Application type values reported in rmProcessInfo.ApplicationType
// (RM_APP_TYPE in RestartManager.h).
const (
	rmUnknownApp  = 0
	rmMainWindow  = 1
	rmOtherWindow = 2
	rmService     = 3
	rmExplorer    = 4
	rmConsole     = 5
	rmCritical    = 1000
)

// rmUniqueProcess is RM_UNIQUE_PROCESS.
type rmUniqueProcess struct {
	ProcessID uint32
	StartTime windows.Filetime
}

// rmProcessInfo is RM_PROCESS_INFO.
type rmProcessInfo struct {
	Process          rmUniqueProcess
	AppName          [maxAppName]uint16
	ServiceShortName [maxSvcName]uint16
	ApplicationType  uint32
	AppStatus        uint32
	TSSessionID      uint32
	Restartable      int32
}

var _ resolver.Resolver = (*Resolver)(nil)

// Resolver queries the Windows Restart Manager for the processes holding a
// file open. Each Resolve call opens its own registration session, so a
// Resolver is safe for concurrent use.
type Resolver struct {
	sink logsink.Sink
}

// New creates a Restart Manager backed resolver.
func New(sink logsink.Sink) *Resolver {
	return &Resolver{sink: logsink.OrNop(sink)}
}

// Resolve returns the owners of path. Facility failures degrade to an empty
// owner list: a missing path, a session that cannot be opened, or a
// registration error all mean "no owners known", never a hard error.
func (r *Resolver) Resolve(path string) ([]resolver.LockOwner, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil
	}

	var session uint32
	key := make([]uint16, sessionKeyLen)
	ret, _, _ := procRmStartSession.Call(
		uintptr(unsafe.Pointer(&session)),
		0,
		uintptr(unsafe.Pointer(&key[0])),
	)
	if ret != 0 {
		r.sink.Record(fmt.Sprintf("restart manager: start session failed (code %d)", ret), logsink.LevelDebug)
		return nil, nil
	}
	// The session must be closed on every exit path, including the error
	// returns below.
	defer procRmEndSession.Call(uintptr(session)) //nolint:errcheck // Best effort close

	pathPtr, err := windows.UTF16PtrFromString(abs)
	if err != nil {
		return nil, nil
	}
	resources := []*uint16{pathPtr}
	ret, _, _ = procRmRegisterResources.Call(
		uintptr(session),
		1,
		uintptr(unsafe.Pointer(&resources[0])),
		0, 0,
		0, 0,
	)
	if ret != 0 {
		r.sink.Record(fmt.Sprintf("restart manager: register %s failed (code %d)", abs, ret), logsink.LevelDebug)
		return nil, nil
	}

	// First call sizes the buffer: with no buffer supplied the facility
	// reports ERROR_MORE_DATA along with the required element count.
	var needed, count, rebootReasons uint32
	ret, _, _ = procRmGetList.Call(
		uintptr(session),
		uintptr(unsafe.Pointer(&needed)),
		uintptr(unsafe.Pointer(&count)),
		0,
		uintptr(unsafe.Pointer(&rebootReasons)),
	)
	if ret == 0 || needed == 0 {
		return []resolver.LockOwner{}, nil
	}
	if ret != errorMoreData {
		r.sink.Record(fmt.Sprintf("restart manager: list sizing failed (code %d)", ret), logsink.LevelDebug)
		return nil, nil
	}

	infos := make([]rmProcessInfo, needed)
	count = needed
	ret, _, _ = procRmGetList.Call(
		uintptr(session),
		uintptr(unsafe.Pointer(&needed)),
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&infos[0])),
		uintptr(unsafe.Pointer(&rebootReasons)),
	)
	if ret != 0 {
		r.sink.Record(fmt.Sprintf("restart manager: list fetch failed (code %d)", ret), logsink.LevelDebug)
		return nil, nil
	}

	owners := make([]resolver.LockOwner, 0, count)
	for i := uint32(0); i < count; i++ {
		info := &infos[i]
		owners = append(owners, resolver.LockOwner{
			PID:         info.Process.ProcessID,
			DisplayName: windows.UTF16ToString(info.AppName[:]),
			Class:       classOf(info.ApplicationType),
		})
	}
	return owners, nil
}

// classOf maps the facility's numeric application type onto AppClass.
func classOf(appType uint32) resolver.AppClass {
	switch appType {
	case rmMainWindow, rmOtherWindow:
		return resolver.ClassApplication
	case rmService:
		return resolver.ClassService
	case rmExplorer:
		return resolver.ClassShellExtension
	case rmConsole:
		return resolver.ClassConsoleSession
	case rmCritical:
		return resolver.ClassCriticalSystem
	default:
		return resolver.ClassUnknown
	}
}
