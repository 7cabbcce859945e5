//go:build linux

package xfrm

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/vishvananda/netlink"

	"github.com/cuemby/ipsecd/pkg/types"
)

func toProto(p types.Protocol) (netlink.Proto, error) {
	switch p {
	case types.ProtocolESP, "":
		return netlink.XFRM_PROTO_ESP, nil
	case types.ProtocolAH:
		return netlink.XFRM_PROTO_AH, nil
	default:
		return 0, fmt.Errorf("unsupported protocol: %s", p)
	}
}

func fromProto(p netlink.Proto) types.Protocol {
	if p == netlink.XFRM_PROTO_AH {
		return types.ProtocolAH
	}
	return types.ProtocolESP
}

func toMode(m types.Mode) netlink.Mode {
	if m == types.ModeTunnel {
		return netlink.XFRM_MODE_TUNNEL
	}
	return netlink.XFRM_MODE_TRANSPORT
}

func fromMode(m netlink.Mode) types.Mode {
	if m == netlink.XFRM_MODE_TUNNEL {
		return types.ModeTunnel
	}
	return types.ModeTransport
}

func toDir(d types.Direction) (netlink.Dir, error) {
	switch d {
	case types.DirectionIn:
		return netlink.XFRM_DIR_IN, nil
	case types.DirectionOut:
		return netlink.XFRM_DIR_OUT, nil
	case types.DirectionForward:
		return netlink.XFRM_DIR_FWD, nil
	default:
		return 0, fmt.Errorf("unsupported direction: %q", d)
	}
}

func fromDir(d netlink.Dir) types.Direction {
	switch d {
	case netlink.XFRM_DIR_OUT:
		return types.DirectionOut
	case netlink.XFRM_DIR_FWD:
		return types.DirectionForward
	default:
		return types.DirectionIn
	}
}

func parseIP(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid address: %q", s)
	}
	return ip, nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func toAlgo(a *types.Algorithm) (*netlink.XfrmStateAlgo, error) {
	if a == nil {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.TrimPrefix(a.Key, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid key for %s: %w", a.Name, err)
	}
	return &netlink.XfrmStateAlgo{Name: a.Name, Key: key}, nil
}

func fromAlgo(a *netlink.XfrmStateAlgo) *types.Algorithm {
	if a == nil {
		return nil
	}
	// keys never leave the kernel client
	return &types.Algorithm{Name: a.Name}
}

func toXfrmState(sa *types.SA) (*netlink.XfrmState, error) {
	if sa == nil {
		return nil, types.ErrNullParameter
	}

	src, err := parseIP(sa.Src)
	if err != nil {
		return nil, err
	}
	dst, err := parseIP(sa.Dst)
	if err != nil {
		return nil, err
	}
	proto, err := toProto(sa.Protocol)
	if err != nil {
		return nil, err
	}
	auth, err := toAlgo(sa.Auth)
	if err != nil {
		return nil, err
	}
	crypt, err := toAlgo(sa.Crypt)
	if err != nil {
		return nil, err
	}

	return &netlink.XfrmState{
		Src:   src,
		Dst:   dst,
		Proto: proto,
		Mode:  toMode(sa.Mode),
		Spi:   int(sa.SPI),
		Reqid: sa.ReqID,
		Auth:  auth,
		Crypt: crypt,
	}, nil
}

func fromXfrmState(st *netlink.XfrmState) *types.SA {
	return &types.SA{
		SPI:      uint32(st.Spi),
		Protocol: fromProto(st.Proto),
		Mode:     fromMode(st.Mode),
		Src:      ipString(st.Src),
		Dst:      ipString(st.Dst),
		ReqID:    st.Reqid,
		Auth:     fromAlgo(st.Auth),
		Crypt:    fromAlgo(st.Crypt),
		Stats: types.SAStats{
			Bytes:        st.Statistics.Bytes,
			Packets:      st.Statistics.Packets,
			ReplayWindow: st.Statistics.ReplayWindow,
			Replay:       st.Statistics.Replay,
			Failed:       st.Statistics.Failed,
		},
		AddTime: st.Statistics.AddTime,
		UseTime: st.Statistics.UseTime,
	}
}

func policySelector(id types.SPID) (*netlink.XfrmPolicy, error) {
	dir, err := toDir(id.Direction)
	if err != nil {
		return nil, err
	}
	_, src, err := net.ParseCIDR(id.Src)
	if err != nil {
		return nil, fmt.Errorf("invalid source selector: %w", err)
	}
	_, dst, err := net.ParseCIDR(id.Dst)
	if err != nil {
		return nil, fmt.Errorf("invalid destination selector: %w", err)
	}
	return &netlink.XfrmPolicy{Dir: dir, Src: src, Dst: dst}, nil
}

func toXfrmPolicy(sp *types.SP) (*netlink.XfrmPolicy, error) {
	if sp == nil {
		return nil, types.ErrNullParameter
	}

	pol, err := policySelector(sp.ID)
	if err != nil {
		return nil, err
	}
	pol.Priority = sp.Priority
	pol.Action = netlink.XFRM_POLICY_ALLOW
	if sp.Action == types.PolicyBlock {
		pol.Action = netlink.XFRM_POLICY_BLOCK
	}

	for _, t := range sp.Templates {
		src, err := parseIP(t.Src)
		if err != nil {
			return nil, err
		}
		dst, err := parseIP(t.Dst)
		if err != nil {
			return nil, err
		}
		proto, err := toProto(t.Protocol)
		if err != nil {
			return nil, err
		}
		pol.Tmpls = append(pol.Tmpls, netlink.XfrmPolicyTmpl{
			Src:   src,
			Dst:   dst,
			Proto: proto,
			Mode:  toMode(t.Mode),
			Spi:   int(t.SPI),
			Reqid: t.ReqID,
		})
	}
	return pol, nil
}

func fromXfrmPolicy(pol *netlink.XfrmPolicy) *types.SP {
	sp := &types.SP{
		ID: types.SPID{
			Direction: fromDir(pol.Dir),
			Src:       cidrString(pol.Src),
			Dst:       cidrString(pol.Dst),
		},
		Priority: pol.Priority,
		Action:   types.PolicyAllow,
	}
	if pol.Action == netlink.XFRM_POLICY_BLOCK {
		sp.Action = types.PolicyBlock
	}
	for _, t := range pol.Tmpls {
		sp.Templates = append(sp.Templates, types.PolicyTemplate{
			Src:      ipString(t.Src),
			Dst:      ipString(t.Dst),
			Protocol: fromProto(t.Proto),
			Mode:     fromMode(t.Mode),
			SPI:      uint32(t.Spi),
			ReqID:    t.Reqid,
		})
	}
	return sp
}

func cidrString(n *net.IPNet) string {
	if n == nil {
		return ""
	}
	return n.String()
}
