//go:build unix

package blue

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an advisory lock on f: exclusive for writers, shared for
// readers. The returned func releases it.
func lockFile(f *os.File, exclusive bool) (func() error, error) {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		return nil, err
	}
	return func() error { return unix.Flock(int(f.Fd()), unix.LOCK_UN) }, nil
}
