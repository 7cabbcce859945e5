//go:build !linux

package xfrm

import (
	"errors"

	"github.com/cuemby/ipsecd/pkg/types"
)

var errUnsupported = errors.New("xfrm is only available on linux")

// NetlinkClient is unavailable outside linux; every call fails
type NetlinkClient struct{}

// NewNetlinkClient creates a client whose calls all fail
func NewNetlinkClient() *NetlinkClient { return &NetlinkClient{} }

func (c *NetlinkClient) AddSA(*types.SA) error                 { return errUnsupported }
func (c *NetlinkClient) ModifySA(*types.SA) error              { return errUnsupported }
func (c *NetlinkClient) GetSA(uint32) (*types.SA, error) { return nil, errUnsupported }
func (c *NetlinkClient) DelSA(uint32) error                    { return errUnsupported }
func (c *NetlinkClient) AddSP(*types.SP) error                 { return errUnsupported }
func (c *NetlinkClient) ModifySP(*types.SP) error              { return errUnsupported }
func (c *NetlinkClient) GetSP(types.SPID) (*types.SP, error) { return nil, errUnsupported }
func (c *NetlinkClient) DelSP(types.SPID) error                { return errUnsupported }
