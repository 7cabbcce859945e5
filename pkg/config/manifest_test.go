package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ipsecd/pkg/types"
)

const siteManifest = `
credentials:
  - type: psk
    psk: s3cret
    owners: [moon, sun]
authorities:
  - name: root-ca
    cert: |
      -----BEGIN CERTIFICATE-----
connections:
  - name: site-a
    local_addr: 192.0.2.1
    remote_addr: 198.51.100.1
    version: v2
    cipher: aes256
    integrity: sha256
    dh_group: modp2048
    local_peer: {id: moon, auth_by: psk}
    remote_peer: {id: sun, auth_by: psk}
    child: {cipher: aes256, integrity: sha256, mode: tunnel, auth_method: esp}
  - op: remove
    name: old-site
sas:
  - spi: 0xc0ffee
    protocol: esp
    mode: tunnel
    src: 192.0.2.1
    dst: 198.51.100.1
    crypt: {name: aes, key: "00112233445566778899aabbccddeeff"}
sps:
  - op: modify
    id: {direction: out, src: 10.0.0.0/24, dst: 10.1.0.0/24}
    action: allow
    templates:
      - {src: 192.0.2.1, dst: 198.51.100.1, protocol: esp, mode: tunnel}
stats:
  - kind: sa
    spi: 0xc0ffee
  - kind: ike
    name: site-a
  - kind: sp
    sp: {direction: out, src: 10.0.0.0/24, dst: 10.1.0.0/24}
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(siteManifest))
	require.NoError(t, err)

	require.Len(t, m.Credentials, 1)
	assert.Equal(t, []string{"moon", "sun"}, m.Credentials[0].Owners)

	require.Len(t, m.Authorities, 1)
	assert.Equal(t, "root-ca", m.Authorities[0].Name)

	require.Len(t, m.Connections, 2)
	conn := m.Connections[0]
	assert.Empty(t, conn.Op)
	assert.Equal(t, "aes256-sha256-modp2048", conn.Proposal())
	assert.Equal(t, types.AuthByPSK, conn.RemotePeer.AuthBy)
	assert.Equal(t, types.ModeTunnel, conn.Child.Mode)
	assert.Equal(t, OpRemove, m.Connections[1].Op)

	require.Len(t, m.SAs, 1)
	assert.Equal(t, uint32(0xc0ffee), m.SAs[0].SPI)
	assert.Equal(t, "aes", m.SAs[0].Crypt.Name)

	require.Len(t, m.SPs, 1)
	assert.Equal(t, OpModify, m.SPs[0].Op)
	assert.Equal(t, types.PolicyAllow, m.SPs[0].Action)
	assert.Equal(t, types.DirectionOut, m.SPs[0].ID.Direction)

	require.Len(t, m.Stats, 3)
	assert.Equal(t, m.SPs[0].ID, m.Stats[2].SP)

	assert.Equal(t, 5, m.Len())
}

func TestManifestValidate(t *testing.T) {
	validSPID := types.SPID{Direction: types.DirectionIn, Src: "10.0.0.0/8", Dst: "0.0.0.0/0"}

	tests := []struct {
		name     string
		manifest Manifest
		wantErr  string
	}{
		{name: "empty", manifest: Manifest{}},
		{
			name:     "unknown op",
			manifest: Manifest{Authorities: []AuthorityEntry{{Op: "replace", CA: types.CA{Name: "ca", Cert: "x"}}}},
			wantErr:  "unknown op",
		},
		{
			name:     "ca without cert",
			manifest: Manifest{Authorities: []AuthorityEntry{{CA: types.CA{Name: "ca"}}}},
			wantErr:  "cert is required",
		},
		{
			name:     "ca remove needs only name",
			manifest: Manifest{Authorities: []AuthorityEntry{{Op: OpRemove, CA: types.CA{Name: "ca"}}}},
		},
		{
			name:     "connection without name",
			manifest: Manifest{Connections: []ConnectionEntry{{}}},
			wantErr:  "name is required",
		},
		{
			name: "bad ike version",
			manifest: Manifest{Connections: []ConnectionEntry{{
				IKEConnection: types.IKEConnection{Name: "c", Version: "v3"},
			}}},
			wantErr: "unknown version",
		},
		{
			name:     "sa without spi",
			manifest: Manifest{SAs: []SAEntry{{Op: OpRemove}}},
			wantErr:  "spi is required",
		},
		{
			name: "sa bad address",
			manifest: Manifest{SAs: []SAEntry{{
				SA: types.SA{SPI: 1, Protocol: types.ProtocolESP, Src: "moon", Dst: "10.0.0.1"},
			}}},
			wantErr: "IP addresses",
		},
		{
			name: "sp bad cidr",
			manifest: Manifest{SPs: []SPEntry{{
				SP: types.SP{ID: types.SPID{Direction: types.DirectionOut, Src: "10.0.0.1", Dst: "10.0.0.0/8"}},
			}}},
			wantErr: "invalid src",
		},
		{
			name:     "sp valid",
			manifest: Manifest{SPs: []SPEntry{{SP: types.SP{ID: validSPID}}}},
		},
		{
			name:     "stat unknown kind",
			manifest: Manifest{Stats: []StatEntry{{Kind: "tunnel"}}},
			wantErr:  "unknown kind",
		},
		{
			name:     "stat modify not allowed",
			manifest: Manifest{Stats: []StatEntry{{Op: OpModify, Kind: types.StatIKE, Name: "c"}}},
			wantErr:  "unknown op",
		},
		{
			name:     "psk credential without secret",
			manifest: Manifest{Credentials: []types.Credential{{Type: types.CredentialPSK}}},
			wantErr:  "psk is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseManifestErrors(t *testing.T) {
	_, err := ParseManifest([]byte("connections: {"))
	assert.ErrorContains(t, err, "failed to parse manifest")

	_, err = ParseManifest([]byte("stats:\n  - kind: sa\n"))
	assert.ErrorContains(t, err, "spi is required")
}
