package ike

import (
	"testing"

	"github.com/strongswan/govici/vici"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ipsecd/pkg/types"
)

func testConnection() *types.IKEConnection {
	return &types.IKEConnection{
		Name:       "IPsec",
		LocalAddr:  "10.100.1.2",
		RemoteAddr: "10.100.1.1",
		Version:    types.IKEVersionV2,
		Cipher:     types.CipherAES256,
		Integrity:  types.IntegritySHA256,
		DHGroup:    types.DHGroup14,
		LocalPeer:  types.Peer{ID: "CC2", AuthBy: types.AuthByPSK},
		RemotePeer: types.Peer{ID: "CC1", AuthBy: types.AuthByPSK},
		Child: types.ChildSA{
			Cipher:     types.CipherAES,
			Integrity:  types.IntegritySHA1,
			Mode:       types.ModeTunnel,
			AuthMethod: types.ProtocolESP,
		},
	}
}

func TestConnectionMessage(t *testing.T) {
	body, err := connectionMessage(testConnection())
	require.NoError(t, err)

	assert.Equal(t, []string{"10.100.1.2"}, body.Get("local_addrs"))
	assert.Equal(t, []string{"10.100.1.1"}, body.Get("remote_addrs"))
	assert.Equal(t, "2", body.Get("version"))
	assert.Equal(t, []string{"aes256-sha256-modp2048"}, body.Get("proposals"))

	local, ok := body.Get("local").(*vici.Message)
	require.True(t, ok)
	assert.Equal(t, "psk", local.Get("auth"))
	assert.Equal(t, "CC2", local.Get("id"))

	children, ok := body.Get("children").(*vici.Message)
	require.True(t, ok)
	child, ok := children.Get("IPsec").(*vici.Message)
	require.True(t, ok)
	assert.Equal(t, "tunnel", child.Get("mode"))
	assert.Equal(t, []string{"aes-sha1"}, child.Get("esp_proposals"))
}

func TestConnectionMessageAHChild(t *testing.T) {
	conn := testConnection()
	conn.Child.AuthMethod = types.ProtocolAH
	conn.Cipher, conn.Integrity, conn.DHGroup = "", "", ""

	body, err := connectionMessage(conn)
	require.NoError(t, err)
	assert.Nil(t, body.Get("proposals"))

	children := body.Get("children").(*vici.Message)
	child := children.Get("IPsec").(*vici.Message)
	assert.Equal(t, []string{"aes-sha1"}, child.Get("ah_proposals"))
	assert.Nil(t, child.Get("esp_proposals"))
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1", versionString(types.IKEVersionV1))
	assert.Equal(t, "2", versionString(types.IKEVersionV2))
	assert.Equal(t, "0", versionString(types.IKEVersionAny))
	assert.Equal(t, "0", versionString(""))
}

func TestIKESAStats(t *testing.T) {
	sa := &ikeSA{
		State:       "ESTABLISHED",
		RemoteHost:  "10.100.1.1",
		Established: "42",
		Children: map[string]childSA{
			"IPsec-1": {BytesIn: "100", BytesOut: "200", PacketsIn: "1", PacketsOut: "2"},
			"IPsec-2": {BytesIn: "10", BytesOut: "20", PacketsIn: "3", PacketsOut: "4"},
		},
	}

	st := sa.stats("IPsec")
	assert.Equal(t, "IPsec", st.Name)
	assert.Equal(t, types.IKEStateEstablished, st.State)
	assert.Equal(t, int64(42), st.EstablishedSec)
	assert.Equal(t, uint64(110), st.BytesIn)
	assert.Equal(t, uint64(220), st.BytesOut)
	assert.Equal(t, uint64(4), st.PacketsIn)
	assert.Equal(t, uint64(6), st.PacketsOut)
}

func TestClientNotInitialized(t *testing.T) {
	c := NewViciClient("")
	assert.Equal(t, DefaultViciSocket, c.socket)

	assert.ErrorIs(t, c.DeleteConnection("IPsec"), types.ErrNotReady)
	_, err := c.GetConnectionStats("IPsec")
	assert.ErrorIs(t, err, types.ErrNotReady)
	assert.ErrorIs(t, c.CreateConnection(nil), types.ErrNullParameter)
	assert.NoError(t, c.Close())
}
