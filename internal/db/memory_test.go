package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPlayerData(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	got, err := m.GetPlayerData(ctx, "alice", "account")
	require.NoError(t, err)
	assert.Nil(t, got, "missing data reads as nil, not an error")

	require.NoError(t, m.SetPlayerData(ctx, "alice", "account", []byte("v1"), time.Time{}))
	got, err = m.GetPlayerData(ctx, "alice", "account")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	has, err := m.HasPlayerData(ctx, "alice", "account")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = m.HasPlayerData(ctx, "bob", "account")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryExpiryIsLazy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	require.NoError(t, m.SetAreaData(ctx, "86HTGG2C22", "creature", []byte("x"), now.Add(time.Hour)))

	got, err := m.GetAreaData(ctx, "86HTGG2C22", "creature")
	require.NoError(t, err)
	assert.NotNil(t, got)

	now = now.Add(2 * time.Hour)
	got, err = m.GetAreaData(ctx, "86HTGG2C22", "creature")
	require.NoError(t, err)
	assert.Nil(t, got, "expired data must read as absent")
}

func TestMemorySecureRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetSecurePlayerData(ctx, "alice", "creatureInfo", []byte(`{"1":{}}`), "hunter2", time.Time{}))

	plain, err := m.GetSecurePlayerData(ctx, "alice", "creatureInfo", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"1":{}}`), plain)

	_, err = m.GetSecurePlayerData(ctx, "alice", "creatureInfo", "wrong")
	assert.ErrorIs(t, err, ErrBadSecret)

	// Raw bytes on disk are not the plaintext.
	raw, err := m.GetPlayerData(ctx, "alice", "creatureInfo")
	require.NoError(t, err)
	assert.NotEqual(t, []byte(`{"1":{}}`), raw)
}

func TestMemoryAreaQueries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	cells := []string{"86HTGG2C22", "86HTGG2C23", "86HTGG2D22"}
	var batch []AreaRecord
	for _, c := range cells {
		batch = append(batch, AreaRecord{Cell: c, Key: "creature", Value: []byte(c)})
	}
	require.NoError(t, m.SetAreaDataBatch(ctx, batch))

	byPrefix, err := m.GetAreaDataByPrefix(ctx, "86HTGG2C", "creature")
	require.NoError(t, err)
	assert.Len(t, byPrefix, 2)

	byCells, err := m.GetAreaDataByCells(ctx, []string{"86HTGG2C22", "86HTGG2D22", "86HTGG2E22"}, "creature")
	require.NoError(t, err)
	assert.Len(t, byCells, 2)

	require.NoError(t, m.DeleteAreaData(ctx, "86HTGG2C22", "creature"))
	byPrefix, err = m.GetAreaDataByPrefix(ctx, "86HTGG2C", "creature")
	require.NoError(t, err)
	assert.Len(t, byPrefix, 1)
}

func TestMemoryGlobalCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	v, err := m.GetGlobalCounter(ctx, "team1Score")
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = m.IncrementGlobalCounter(ctx, "team1Score", 32)
	require.NoError(t, err)
	assert.Equal(t, int64(32), v)

	v, err = m.IncrementGlobalCounter(ctx, "team1Score", -12)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)

	require.NoError(t, m.SetGlobalCounter(ctx, "team1Score", 5))
	v, err = m.GetGlobalCounter(ctx, "team1Score")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestMemoryAllSecureAreaDataByKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetSecureAreaData(ctx, "86HTGG2C", "competeEntry", []byte("a"), "internal", time.Time{}))
	require.NoError(t, m.SetSecureAreaData(ctx, "86HTGG2D", "competeEntry", []byte("b"), "internal", time.Time{}))

	records, err := m.GetAllSecureAreaDataByKey(ctx, "competeEntry", "internal")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []byte("a"), records[0].Value)
	assert.Equal(t, []byte("b"), records[1].Value)
}

func TestDecodeJSONZeroOnEmpty(t *testing.T) {
	got, err := DecodeJSON[map[string]int]([]byte(nil))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = DecodeJSON[map[string]int]([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, got)
}
