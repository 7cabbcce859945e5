// Package xfrm manages kernel security associations and policies.
package xfrm

import "github.com/cuemby/ipsecd/pkg/types"

// Client is the kernel IPsec policy/state client. SAs are keyed by SPI,
// policies by SPID. A non-nil error is a failed call.
type Client interface {
	AddSA(sa *types.SA) error
	ModifySA(sa *types.SA) error
	GetSA(spi uint32) (*types.SA, error)
	DelSA(spi uint32) error

	AddSP(sp *types.SP) error
	ModifySP(sp *types.SP) error
	GetSP(id types.SPID) (*types.SP, error)
	DelSP(id types.SPID) error
}
