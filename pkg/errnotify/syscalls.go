package errnotify

// SystemCalls is the subset of the socket API the listener needs. Socket
// returns a descriptor; a negative count from Read is an error.
type SystemCalls interface {
	Socket(domain, typ, proto int) (int, error)
	Connect(fd int, path string) error
	Read(fd int, p []byte) (int, error)
	Shutdown(fd int) error
	Close(fd int) error
}
