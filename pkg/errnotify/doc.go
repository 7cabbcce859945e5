/*
Package errnotify receives error notifications from the IKE daemon's
error-notify Unix socket.

The daemon writes one fixed-size record per error. Fields are in host byte
order and strings are NUL-terminated inside their field:

	offset  size  field
	0       4     type (int32, event number)
	4       384   message string
	388     64    connection name
	452     256   peer identity
	708     60    peer address
	                                  total 768 bytes

Records may arrive split across reads; the listener reassembles a full
record before decoding it. Each record is turned into a types.IPsecError
with a message composed from its fields and handed to the Consumer on the
listener goroutine, one at a time.

A failed read, or the peer closing the socket, ends the listener: it records
the failure (Err returns an error matching types.ErrIO), closes its socket
and becomes not ready. It does not reconnect by itself. Calling Initialize
again opens a new connection.

Close interrupts a blocked read with shutdown(2), waits for the goroutine and
closes the socket. Socket calls go through SystemCalls so tests can script
reads and failures.
*/
package errnotify
