//go:build !windows

package task

import "golang.org/x/sys/unix"

// writable reports whether the current user may create files in dir.
func writable(dir string) bool {
	if dir == "" {
		return false
	}
	return unix.Access(dir, unix.W_OK) == nil
}
