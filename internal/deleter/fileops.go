package deleter

import "os"

// fileOps abstracts the filesystem primitives the strategies are built from.
// Splitting them out keeps the protocol testable on any platform: the windows
// implementation talks to kernel32, the portable one to the os package, and
// tests can substitute their own to force specific failures.
type fileOps interface {
	// Exists reports whether path currently exists.
	Exists(path string) bool
	// Remove deletes the file through the platform's standard removal call.
	Remove(path string) error
	// Rename moves the file, staying on the same volume.
	Rename(oldPath, newPath string) error
	// Chmod grants the given permission bits to the owning user.
	Chmod(path string, mode os.FileMode) error
	// ClearReadOnly clears the read-only attribute if it is set, reporting
	// whether anything was cleared.
	ClearReadOnly(path string) (bool, error)
	// NativeDelete resets attributes to normal and invokes the OS-level
	// delete primitive directly, bypassing higher-level abstractions.
	NativeDelete(path string) error
	// Writable reports whether the current user may write the file.
	Writable(path string) bool
	// Attributes reports the read-only and system attributes. ok is false
	// when the attributes could not be read.
	Attributes(path string) (readOnly, system, ok bool)
}

// pathExists is shared by both implementations.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
