package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ipsecd/pkg/types"
)

func newTestStore(t *testing.T, maxErrors int) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir(), maxErrors)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStats(t *testing.T) {
	store := newTestStore(t, 0)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	sa := &types.StatSnapshot{
		Kind:      types.StatSA,
		Timestamp: now,
		SA:        &types.SA{SPI: 0xabc, Stats: types.SAStats{Bytes: 10}},
	}
	ike := &types.StatSnapshot{
		Kind:      types.StatIKE,
		Timestamp: now,
		IKE:       &types.IKEConnectionStats{Name: "site-a", State: types.IKEStateConnecting},
	}

	require.NoError(t, store.PutStat(sa))
	require.NoError(t, store.PutStat(ike))

	got, err := store.GetStat(types.StatSA, "0x00000abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.SA.Stats.Bytes)
	assert.True(t, now.Equal(got.Timestamp))

	// Newer sample replaces the old one
	sa.SA.Stats.Bytes = 20
	store.Publish(sa)
	got, err = store.GetStat(types.StatSA, "0x00000abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got.SA.Stats.Bytes)

	all, err := store.ListStats()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, types.StatIKE, all[0].Kind)
	assert.Equal(t, types.StatSA, all[1].Kind)

	require.NoError(t, store.DeleteStat(types.StatIKE, "site-a"))
	_, err = store.GetStat(types.StatIKE, "site-a")
	assert.ErrorIs(t, err, types.ErrNotFound)

	assert.ErrorIs(t, store.PutStat(nil), types.ErrNullParameter)
}

func TestErrors(t *testing.T) {
	store := newTestStore(t, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordError(&types.IPsecError{
			ID:         fmt.Sprintf("err-%d", i),
			Connection: "site-a",
			Event:      types.ErrorEventPeerAuthFailed,
		}))
	}

	errs, err := store.ListErrors(0)
	require.NoError(t, err)
	require.Len(t, errs, 3)
	assert.Equal(t, "err-2", errs[0].ID)
	assert.Equal(t, "err-0", errs[2].ID)

	errs, err = store.ListErrors(2)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "err-1", errs[1].ID)

	assert.ErrorIs(t, store.RecordError(nil), types.ErrNullParameter)
}

func TestErrorRetention(t *testing.T) {
	store := newTestStore(t, 5)

	for i := 0; i < 12; i++ {
		require.NoError(t, store.RecordError(&types.IPsecError{ID: fmt.Sprintf("err-%02d", i)}))
	}

	errs, err := store.ListErrors(0)
	require.NoError(t, err)
	require.Len(t, errs, 5)
	assert.Equal(t, "err-11", errs[0].ID)
	assert.Equal(t, "err-07", errs[4].ID)
}

func TestManifest(t *testing.T) {
	store := newTestStore(t, 0)

	_, err := store.GetManifest()
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, store.SaveManifest([]byte("connections: []\n")))
	require.NoError(t, store.SaveManifest([]byte("sas: []\n")))

	data, err := store.GetManifest()
	require.NoError(t, err)
	assert.Equal(t, "sas: []\n", string(data))
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir, 0)
	require.NoError(t, err)
	require.NoError(t, store.RecordError(&types.IPsecError{ID: "persisted"}))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir, 0)
	require.NoError(t, err)
	defer store.Close()

	errs, err := store.ListErrors(0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "persisted", errs[0].ID)
}
