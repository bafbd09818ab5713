// Package fsid implements the scoped filesystem-identity switch the S3
// object store uses to perform every backing-namespace operation under the
// target bucket's owning (uid, gid), per spec.md §5.
//
// The switch is scoped: Acquire sets the calling OS thread's filesystem
// uid/gid (via setfsuid(2)/setfsgid(2), the same x/sys/unix import the
// teacher uses for mmap/munmap in pkg/wal/mmap.go) and returns a release
// function that restores the previous identity. Go reuses OS threads across
// goroutines, so callers must run under runtime.LockOSThread for the
// duration the identity is held, exactly as Acquire does internally.
package fsid

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Guard restores the calling thread's previous filesystem identity and
// unlocks it from the goroutine when released.
type Guard struct {
	prevUID int
	prevGID int
	done    bool
}

// Acquire locks the calling goroutine to its current OS thread and switches
// the thread's filesystem uid/gid to (uid, gid). The returned Guard's
// Release restores the previous identity and unlocks the thread.
//
// setfsuid/setfsgid require CAP_SETUID/CAP_SETGID (or running as root); on a
// system lacking the capability, Acquire fails loudly rather than silently
// operating under the wrong identity, per spec.md §5 ("the rewrite must
// error out at startup" when the capability is missing — here enforced per
// call, since the capability can be dropped at any time via a security
// profile change).
func Acquire(uid, gid int) (*Guard, error) {
	runtime.LockOSThread()

	// setfsuid(2)/setfsgid(2) return the previous id and never fail; an
	// ineffective switch (missing capability) is detected by reading the
	// current value back with the no-op argument -1.
	prevUID, _ := unix.SetfsuidRetUid(uid)
	if got, _ := unix.SetfsuidRetUid(-1); got != uid {
		unix.Setfsuid(prevUID)
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("fsid: setfsuid(%d) not effective (capability missing?)", uid)
	}

	prevGID, _ := unix.SetfsgidRetGid(gid)
	if got, _ := unix.SetfsgidRetGid(-1); got != gid {
		unix.Setfsgid(prevGID)
		unix.Setfsuid(prevUID)
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("fsid: setfsgid(%d) not effective (capability missing?)", gid)
	}

	return &Guard{prevUID: prevUID, prevGID: prevGID}, nil
}

// Release restores the filesystem identity held before Acquire and unlocks
// the OS thread. Idempotent.
func (g *Guard) Release() {
	if g == nil || g.done {
		return
	}
	g.done = true
	unix.Setfsgid(g.prevGID)
	unix.Setfsuid(g.prevUID)
	runtime.UnlockOSThread()
}

// Do runs fn with the filesystem identity switched to (uid, gid), always
// restoring the previous identity before returning.
func Do(uid, gid int, fn func() error) error {
	g, err := Acquire(uid, gid)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
