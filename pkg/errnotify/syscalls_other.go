//go:build !unix

package errnotify

import "errors"

const (
	afUnix     = 1
	sockStream = 1
)

var errUnsupported = errors.New("unix sockets are not supported on this platform")

type unsupportedCalls struct{}

// UnixCalls returns SystemCalls that fail on every call
func UnixCalls() SystemCalls {
	return unsupportedCalls{}
}

func (unsupportedCalls) Socket(int, int, int) (int, error) { return -1, errUnsupported }
func (unsupportedCalls) Connect(int, string) error { return errUnsupported }
func (unsupportedCalls) Read(int, []byte) (int, error) { return -1, errUnsupported }
func (unsupportedCalls) Shutdown(int) error { return errUnsupported }
func (unsupportedCalls) Close(int) error { return errUnsupported }
