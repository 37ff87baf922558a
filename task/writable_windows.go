//go:build windows

package task

import "os"

// writable reports whether dir exists and is not read-only.
func writable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o200 != 0
}
