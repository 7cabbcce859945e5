package publisher

import (
	"github.com/cuemby/ipsecd/pkg/types"
)

// Subscription names one object to sample. Only the key matching Kind is
// set, so two subscriptions to the same object compare equal.
type Subscription struct {
	Kind types.StatKind `json:"kind"`
	SPI  uint32         `json:"spi,omitempty"`
	SPID types.SPID     `json:"spid,omitempty"`
	Name string         `json:"name,omitempty"`
}

// SASubscription samples the SA with the given SPI
func SASubscription(spi uint32) Subscription {
	return Subscription{Kind: types.StatSA, SPI: spi}
}

// SPSubscription samples the policy with the given id
func SPSubscription(id types.SPID) Subscription {
	return Subscription{Kind: types.StatSP, SPID: id}
}

// IKESubscription samples the named IKE connection
func IKESubscription(name string) Subscription {
	return Subscription{Kind: types.StatIKE, Name: name}
}

// String returns the key of the sampled object
func (s Subscription) String() string {
	switch s.Kind {
	case types.StatSA:
		return types.FormatSPI(s.SPI)
	case types.StatSP:
		return s.SPID.String()
	default:
		return s.Name
	}
}
