//go:build linux

package xfrm

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vishvananda/netlink"

	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/types"
)

// NetlinkClient manages XFRM states and policies through netlink
type NetlinkClient struct {
	logger zerolog.Logger
}

// NewNetlinkClient creates a kernel client
func NewNetlinkClient() *NetlinkClient {
	return &NetlinkClient{logger: log.WithComponent("xfrm")}
}

// AddSA installs a new SA
func (c *NetlinkClient) AddSA(sa *types.SA) error {
	st, err := toXfrmState(sa)
	if err != nil {
		return err
	}
	if err := netlink.XfrmStateAdd(st); err != nil {
		return fmt.Errorf("failed to add SA %s: %w", types.FormatSPI(sa.SPI), err)
	}
	c.logger.Debug().Str("spi", types.FormatSPI(sa.SPI)).Msg("SA added")
	return nil
}

// ModifySA updates an existing SA
func (c *NetlinkClient) ModifySA(sa *types.SA) error {
	st, err := toXfrmState(sa)
	if err != nil {
		return err
	}
	if err := netlink.XfrmStateUpdate(st); err != nil {
		return fmt.Errorf("failed to update SA %s: %w", types.FormatSPI(sa.SPI), err)
	}
	return nil
}

// lookupSA finds the kernel state with the given SPI
func (c *NetlinkClient) lookupSA(spi uint32) (*netlink.XfrmState, error) {
	states, err := netlink.XfrmStateList(netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("failed to list SAs: %w", err)
	}
	for i := range states {
		if uint32(states[i].Spi) == spi {
			return &states[i], nil
		}
	}
	return nil, fmt.Errorf("SA %s: %w", types.FormatSPI(spi), types.ErrNotFound)
}

// GetSA returns the SA with the given SPI including its counters
func (c *NetlinkClient) GetSA(spi uint32) (*types.SA, error) {
	st, err := c.lookupSA(spi)
	if err != nil {
		return nil, err
	}
	return fromXfrmState(st), nil
}

// DelSA removes the SA with the given SPI
func (c *NetlinkClient) DelSA(spi uint32) error {
	st, err := c.lookupSA(spi)
	if err != nil {
		return err
	}
	if err := netlink.XfrmStateDel(st); err != nil {
		return fmt.Errorf("failed to delete SA %s: %w", types.FormatSPI(spi), err)
	}
	c.logger.Debug().Str("spi", types.FormatSPI(spi)).Msg("SA deleted")
	return nil
}

// AddSP installs a new policy
func (c *NetlinkClient) AddSP(sp *types.SP) error {
	pol, err := toXfrmPolicy(sp)
	if err != nil {
		return err
	}
	if err := netlink.XfrmPolicyAdd(pol); err != nil {
		return fmt.Errorf("failed to add SP %s: %w", sp.ID, err)
	}
	c.logger.Debug().Stringer("sp", sp.ID).Msg("SP added")
	return nil
}

// ModifySP updates an existing policy
func (c *NetlinkClient) ModifySP(sp *types.SP) error {
	pol, err := toXfrmPolicy(sp)
	if err != nil {
		return err
	}
	if err := netlink.XfrmPolicyUpdate(pol); err != nil {
		return fmt.Errorf("failed to update SP %s: %w", sp.ID, err)
	}
	return nil
}

// GetSP returns the policy matching id
func (c *NetlinkClient) GetSP(id types.SPID) (*types.SP, error) {
	sel, err := policySelector(id)
	if err != nil {
		return nil, err
	}
	pol, err := netlink.XfrmPolicyGet(sel)
	if err != nil {
		return nil, fmt.Errorf("failed to get SP %s: %w", id, err)
	}
	return fromXfrmPolicy(pol), nil
}

// DelSP removes the policy matching id
func (c *NetlinkClient) DelSP(id types.SPID) error {
	sel, err := policySelector(id)
	if err != nil {
		return err
	}
	if err := netlink.XfrmPolicyDel(sel); err != nil {
		return fmt.Errorf("failed to delete SP %s: %w", id, err)
	}
	c.logger.Debug().Stringer("sp", id).Msg("SP deleted")
	return nil
}
