// Package ike drives the IKE daemon over its VICI socket.
package ike

import (
	"time"

	"github.com/cuemby/ipsecd/pkg/types"
)

// Client is the IKE control-plane client consumed by the workers. A
// non-nil error is a failed call.
type Client interface {
	Initialize() error
	CreateConnection(conn *types.IKEConnection) error
	DeleteConnection(name string) error
	StartConnection(name string, timeout time.Duration) error
	StopConnection(name string, timeout time.Duration) error
	LoadCredential(cred *types.Credential) error
	LoadAuthority(ca *types.CA) error
	UnloadAuthority(name string) error
	GetConnectionStats(name string) (*types.IKEConnectionStats, error)
}
