package storage

import (
	"github.com/cuemby/ipsecd/pkg/types"
)

// Store persists the daemon's observed state: the latest statistics
// sample per object, the history of errors reported by the IKE daemon and
// the last applied manifest.
type Store interface {
	// Statistics
	PutStat(snap *types.StatSnapshot) error
	GetStat(kind types.StatKind, key string) (*types.StatSnapshot, error)
	ListStats() ([]*types.StatSnapshot, error)
	DeleteStat(kind types.StatKind, key string) error

	// Errors, oldest are pruned past the retention limit
	RecordError(err *types.IPsecError) error
	ListErrors(limit int) ([]*types.IPsecError, error)

	// Manifest
	SaveManifest(data []byte) error
	GetManifest() ([]byte, error)

	// Utility
	Close() error
}
