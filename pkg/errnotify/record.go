package errnotify

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/ipsecd/pkg/types"
)

// Field sizes of the error-notify record, in wire order
const (
	typeLen = 4
	strLen  = 384
	nameLen = 64
	idLen   = 256
	ipLen   = 60

	// RecordSize is the size of one record on the wire
	RecordSize = typeLen + strLen + nameLen + idLen + ipLen
)

const (
	strOff  = typeLen
	nameOff = strOff + strLen
	idOff   = nameOff + nameLen
	ipOff   = idOff + idLen
)

// Record is one error notification. Strings are NUL terminated on the
// wire and the integer uses the host byte order.
type Record struct {
	Type int32
	Str  string // detail text
	Name string // connection name
	ID   string // peer identity
	IP   string // peer address and port
}

// DecodeRecord parses a full record
func DecodeRecord(b []byte) (*Record, error) {
	if len(b) < RecordSize {
		return nil, fmt.Errorf("short record: %d bytes, want %d", len(b), RecordSize)
	}
	return &Record{
		Type: int32(binary.NativeEndian.Uint32(b[:typeLen])),
		Str:  cString(b[strOff:nameOff]),
		Name: cString(b[nameOff:idOff]),
		ID:   cString(b[idOff:ipOff]),
		IP:   cString(b[ipOff:RecordSize]),
	}, nil
}

// MarshalBinary encodes the record. Strings longer than their field are
// truncated so that the terminating NUL always fits.
func (r *Record) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	binary.NativeEndian.PutUint32(b[:typeLen], uint32(r.Type))
	putCString(b[strOff:nameOff], r.Str)
	putCString(b[nameOff:idOff], r.Name)
	putCString(b[idOff:ipOff], r.ID)
	putCString(b[ipOff:RecordSize], r.IP)
	return b, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func putCString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	dst[n] = 0
}

// Message composes the human readable summary of the record
func (r *Record) Message() string {
	var sb strings.Builder
	sb.WriteString("Peer")
	if r.ID != "" {
		sb.WriteString(" '" + r.ID + "'")
	}
	sb.WriteString(" with connection name '" + r.Name + "'")
	if r.IP != "" {
		sb.WriteString(" and address of '" + r.IP + "'")
	}
	sb.WriteString(" encountered an error")
	return sb.String()
}

// Event classifies the record's error code
func (r *Record) Event() types.ErrorEvent {
	return Classify(r.Type)
}

// IPsecError converts the record to the application error type
func (r *Record) IPsecError(now time.Time) *types.IPsecError {
	return &types.IPsecError{
		ID:         uuid.New().String(),
		Connection: r.Name,
		Message:    r.Message(),
		Detail:     r.Str,
		Event:      r.Event(),
		Timestamp:  now,
	}
}

// events is indexed by the daemon's error code
var events = [...]types.ErrorEvent{
	1:  types.ErrorEventRadiusNotResponding,
	2:  types.ErrorEventLocalAuthFailed,
	3:  types.ErrorEventPeerAuthFailed,
	4:  types.ErrorEventParseErrorHeader,
	5:  types.ErrorEventParseErrorBody,
	6:  types.ErrorEventRetransmitSendTimeout,
	7:  types.ErrorEventHalfOpenTimeout,
	8:  types.ErrorEventProposalMismatchIKE,
	9:  types.ErrorEventProposalMismatchChild,
	10: types.ErrorEventTSMismatch,
	11: types.ErrorEventInstallChildSAFailed,
	12: types.ErrorEventInstallChildPolicyFailed,
	13: types.ErrorEventUniqueReplace,
	14: types.ErrorEventUniqueKeep,
	15: types.ErrorEventVIPFailure,
	16: types.ErrorEventAuthorizationFailed,
	17: types.ErrorEventCertExpired,
	18: types.ErrorEventCertRevoked,
	19: types.ErrorEventNoIssuerCert,
}

// Classify maps an error code to an event. Unknown codes map to
// ErrorEventUnknown.
func Classify(code int32) types.ErrorEvent {
	if code <= 0 || int(code) >= len(events) {
		return types.ErrorEventUnknown
	}
	return events[code]
}
