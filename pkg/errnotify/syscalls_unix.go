//go:build unix

package errnotify

import (
	"golang.org/x/sys/unix"
)

const (
	afUnix     = unix.AF_UNIX
	sockStream = unix.SOCK_STREAM
)

type unixCalls struct{}

// UnixCalls returns SystemCalls backed by the host kernel
func UnixCalls() SystemCalls {
	return unixCalls{}
}

func (unixCalls) Socket(domain, typ, proto int) (int, error) {
	return unix.Socket(domain, typ|unix.SOCK_CLOEXEC, proto)
}

func (unixCalls) Connect(fd int, path string) error {
	return unix.Connect(fd, &unix.SockaddrUnix{Name: path})
}

func (unixCalls) Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Shutdown makes a read blocked on fd return
func (unixCalls) Shutdown(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_RDWR)
}

func (unixCalls) Close(fd int) error {
	return unix.Close(fd)
}
