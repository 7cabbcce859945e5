package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ipsecd/pkg/storage"
	"github.com/cuemby/ipsecd/pkg/types"
)

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSealer(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestNewSealerFromPassphrase(t *testing.T) {
	_, err := NewSealerFromPassphrase("")
	assert.Error(t, err)

	a, err := NewSealerFromPassphrase("correct horse")
	require.NoError(t, err)
	b, err := NewSealerFromPassphrase("correct horse")
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("psk"))
	require.NoError(t, err)
	plain, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "psk", string(plain))
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(make([]byte, KeySize))
	require.NoError(t, err)

	plaintext := []byte("credentials:\n  - type: psk\n    psk: s3cret\n")
	sealed, err := s.Seal(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "s3cret")

	again, err := s.Seal(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	_, err = s.Seal(nil)
	assert.Error(t, err)
}

func TestOpenRejectsTampering(t *testing.T) {
	s, err := NewSealer(make([]byte, KeySize))
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed)
	assert.Error(t, err)

	_, err = s.Open([]byte("short"))
	assert.Error(t, err)

	other, err := NewSealerFromPassphrase("other")
	require.NoError(t, err)
	sealed, err = s.Seal([]byte("payload"))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.key")

	key, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	require.NoError(t, os.WriteFile(path, []byte("zz\n"), 0o600))
	_, err = LoadOrCreateKey(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("abcd\n"), 0o600))
	_, err = LoadOrCreateKey(path)
	assert.Error(t, err)
}

func TestSealedStore(t *testing.T) {
	inner, err := storage.NewBoltStore(t.TempDir(), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	sealer, err := NewSealer(make([]byte, KeySize))
	require.NoError(t, err)
	store := SealManifests(inner, sealer)

	_, err = store.GetManifest()
	assert.ErrorIs(t, err, types.ErrNotFound)

	manifest := []byte("credentials:\n  - type: psk\n    psk: s3cret\n")
	require.NoError(t, store.SaveManifest(manifest))

	raw, err := inner.GetManifest()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")

	got, err := store.GetManifest()
	require.NoError(t, err)
	assert.Equal(t, manifest, got)

	// Other buckets pass through
	require.NoError(t, store.RecordError(&types.IPsecError{ID: "e1"}))
	errs, err := inner.ListErrors(0)
	require.NoError(t, err)
	assert.Len(t, errs, 1)
}
