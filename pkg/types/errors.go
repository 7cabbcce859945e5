package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNullParameter is returned when a required argument is nil
	ErrNullParameter = errors.New("null parameter")

	// ErrAlreadyRunning is returned when starting a worker that is not stopped
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning is returned when stopping a worker that is not running
	ErrNotRunning = errors.New("not running")

	// ErrNotReady is returned when a component is used before initialization
	ErrNotReady = errors.New("not ready")

	// ErrSocketCreate is returned when a socket cannot be created
	ErrSocketCreate = errors.New("socket create failed")

	// ErrSocketConnect is returned when a socket cannot be connected
	ErrSocketConnect = errors.New("socket connect failed")

	// ErrIO is returned when a read on an established connection fails
	ErrIO = errors.New("i/o error")

	// ErrExternalCall wraps a failure reported by the IKE or kernel client
	ErrExternalCall = errors.New("external call failed")

	// ErrNotFound is returned by lookups that find nothing
	ErrNotFound = errors.New("not found")
)

// ExternalCallError wraps err so that errors.Is(err, ErrExternalCall) holds
func ExternalCallError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalCall, op, err)
}

// FormatSPI renders an SPI the way the kernel tools print it
func FormatSPI(spi uint32) string {
	return fmt.Sprintf("0x%08x", spi)
}

// ErrorEvent classifies an error reported by the IKE daemon
type ErrorEvent string

const (
	ErrorEventUnknown                  ErrorEvent = "unknown"
	ErrorEventRadiusNotResponding      ErrorEvent = "radius_not_responding"
	ErrorEventLocalAuthFailed          ErrorEvent = "local_auth_failed"
	ErrorEventPeerAuthFailed           ErrorEvent = "peer_auth_failed"
	ErrorEventParseErrorHeader         ErrorEvent = "parse_error_header"
	ErrorEventParseErrorBody           ErrorEvent = "parse_error_body"
	ErrorEventRetransmitSendTimeout    ErrorEvent = "retransmit_send_timeout"
	ErrorEventHalfOpenTimeout          ErrorEvent = "half_open_timeout"
	ErrorEventProposalMismatchIKE      ErrorEvent = "proposal_mismatch_ike"
	ErrorEventProposalMismatchChild    ErrorEvent = "proposal_mismatch_child"
	ErrorEventTSMismatch               ErrorEvent = "ts_mismatch"
	ErrorEventInstallChildSAFailed     ErrorEvent = "install_child_sa_failed"
	ErrorEventInstallChildPolicyFailed ErrorEvent = "install_child_policy_failed"
	ErrorEventUniqueReplace            ErrorEvent = "unique_replace"
	ErrorEventUniqueKeep               ErrorEvent = "unique_keep"
	ErrorEventVIPFailure               ErrorEvent = "vip_failure"
	ErrorEventAuthorizationFailed      ErrorEvent = "authorization_failed"
	ErrorEventCertExpired              ErrorEvent = "cert_expired"
	ErrorEventCertRevoked              ErrorEvent = "cert_revoked"
	ErrorEventNoIssuerCert             ErrorEvent = "no_issuer_cert"
)

// IPsecError is a structured error reported by the IKE daemon
type IPsecError struct {
	ID         string     `json:"id"`
	Connection string     `json:"connection"`
	Message    string     `json:"message"`
	Detail     string     `json:"detail"`
	Event      ErrorEvent `json:"event"`
	Timestamp  time.Time  `json:"timestamp"`
}
