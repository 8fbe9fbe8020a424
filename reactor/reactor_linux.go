//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollReactor is a thin wrapper over an epoll instance with no registered
// descriptors; Poll is equivalent to a platform-native timed wait and
// exists so IoEngine's worker loop has a real syscall-backed yield point
// instead of a bare time.Sleep. Poll/Close shape without fd
// registration — see DESIGN.md for why.
type epollReactor struct {
	epfd int
}

func newPlatformReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollReactor{epfd: epfd}, nil
}

func (r *epollReactor) Poll(timeoutMs int) error {
	var events [1]unix.EpollEvent
	_, err := unix.EpollWait(r.epfd, events[:], timeoutMs)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	return nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
