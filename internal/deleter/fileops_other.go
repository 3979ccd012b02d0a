//go:build !windows

package deleter

import "os"

var _ fileOps = (*systemOps)(nil)

// systemOps is the portable fileOps implementation. File attributes are
// approximated with permission bits: read-only means the owner write bit is
// clear, and the system attribute does not exist.
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
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	mode := info.Mode()
	if mode&0o200 != 0 {
		return false, nil
	}
	if err := os.Chmod(path, mode|0o200); err != nil {
		return false, err
	}
	return true, nil
}

func (systemOps) NativeDelete(path string) error {
	return os.Remove(path)
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
	info, err := os.Stat(path)
	if err != nil {
		return false, false, false
	}
	return info.Mode()&0o200 == 0, false, true
}
