package retry

import (
	"errors"
	"net"
	"os"
	"syscall"
)

// IsTransient reports whether a socket error is worth retrying at the point it
// happened: interrupted calls, would-block, aborted handshakes, descriptor
// exhaustion and timeouts. A closed listener or connection is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EINTR, syscall.EAGAIN, syscall.ECONNABORTED, syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// IsConnRefused reports whether a dial failed because nothing was listening yet
func IsConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// IsInterrupted reports whether a read or write was cut short by a signal or a
// full socket buffer and can simply be issued again.
func IsInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}
