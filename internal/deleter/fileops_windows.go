//go:build windows

package deleter

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

var _ fileOps = (*systemOps)(nil)

// systemOps is the kernel32-backed fileOps implementation.
type systemOps struct{}

func newSystemOps() fileOps {
	return systemOps{}
}

func (systemOps) Exists(path string) bool {
	return pathExists(path)
}

func (systemOps) Remove(path string) error {
	return os.Remove(path)
}

func (systemOps) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (systemOps) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

func (systemOps) ClearReadOnly(path string) (bool, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false, fmt.Errorf("cannot get file attributes: %w", err)
	}
	if attrs&windows.FILE_ATTRIBUTE_READONLY == 0 {
		return false, nil
	}
	if err := windows.SetFileAttributes(p, attrs&^windows.FILE_ATTRIBUTE_READONLY); err != nil {
		return false, fmt.Errorf("cannot clear read-only attribute: %w", err)
	}
	return true, nil
}

// NativeDelete resets attributes to normal and calls DeleteFileW directly.
// Known error codes map onto readable reasons.
func (systemOps) NativeDelete(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	// Attribute reset is best effort; DeleteFileW gives the authoritative
	// failure reason.
	_ = windows.SetFileAttributes(p, windows.FILE_ATTRIBUTE_NORMAL)

	if err := windows.DeleteFile(p); err != nil {
		return errors.New(deleteReason(err))
	}
	return nil
}

// deleteReason maps a DeleteFileW error onto the human-readable form used in
// attempt records.
func deleteReason(err error) string {
	var code windows.Errno
	if !errors.As(err, &code) {
		return err.Error()
	}
	switch code {
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		return "file not found"
	case windows.ERROR_ACCESS_DENIED:
		return "access denied"
	case windows.ERROR_SHARING_VIOLATION:
		return "file in use by another process"
	case windows.ERROR_LOCK_VIOLATION:
		return "file locked"
	case windows.ERROR_DIR_NOT_EMPTY:
		return "directory not empty"
	default:
		return fmt.Sprintf("error code %d", uint32(code))
	}
}

func (systemOps) Writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (systemOps) Attributes(path string) (readOnly, system, ok bool) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, false, false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false, false, false
	}
	return attrs&windows.FILE_ATTRIBUTE_READONLY != 0,
		attrs&windows.FILE_ATTRIBUTE_SYSTEM != 0,
		true
}
