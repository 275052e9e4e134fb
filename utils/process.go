package utils

import "syscall"

// IsProcessAlive returns true if a process with the given PID currently exists.
// It sends signal 0 with kill(2), which only checks existence. EPERM
// means the process exists but belongs to another user.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
