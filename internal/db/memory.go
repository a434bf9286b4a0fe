package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memRecord struct {
	value   []byte
	expires time.Time
}

func (r memRecord) live(now time.Time) bool {
	return r.expires.IsZero() || r.expires.After(now)
}

// Memory is an in-process Store. It backs tests and single-node
// development runs; the real deployment uses Postgres.
type Memory struct {
	mu       sync.RWMutex
	player   map[string]map[string]memRecord // account -> key
	place    map[string]map[string]memRecord // placeID -> key
	area     map[string]map[string]memRecord // cell -> key
	global   map[string][]byte
	counters map[string]int64

	now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		player:   make(map[string]map[string]memRecord),
		place:    make(map[string]map[string]memRecord),
		area:     make(map[string]map[string]memRecord),
		global:   make(map[string][]byte),
		counters: make(map[string]int64),
		now:      time.Now,
	}
}

// SetClock overrides time for expiry tests.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func setScoped(scope map[string]map[string]memRecord, outer, key string, rec memRecord) {
	inner, ok := scope[outer]
	if !ok {
		inner = make(map[string]memRecord)
		scope[outer] = inner
	}
	inner[key] = rec
}

func (m *Memory) getScoped(scope map[string]map[string]memRecord, outer, key string) []byte {
	rec, ok := scope[outer][key]
	if !ok || !rec.live(m.now()) {
		return nil
	}
	return rec.value
}

func (m *Memory) GetPlayerData(_ context.Context, account, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getScoped(m.player, account, key), nil
}

func (m *Memory) SetPlayerData(_ context.Context, account, key string, value []byte, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	setScoped(m.player, account, key, memRecord{value: value, expires: expires})
	return nil
}

func (m *Memory) HasPlayerData(_ context.Context, account, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.player[account][key]
	return ok && rec.live(m.now()) && len(rec.value) > 0, nil
}

func (m *Memory) GetSecurePlayerData(ctx context.Context, account, key, secret string) ([]byte, error) {
	raw, err := m.GetPlayerData(ctx, account, key)
	if err != nil || raw == nil {
		return nil, err
	}
	return decryptValue(raw, secret)
}

func (m *Memory) SetSecurePlayerData(ctx context.Context, account, key string, value []byte, secret string, expires time.Time) error {
	sealed, err := encryptValue(value, secret)
	if err != nil {
		return err
	}
	return m.SetPlayerData(ctx, account, key, sealed, expires)
}

func (m *Memory) GetAllPlayerDataByKey(_ context.Context, key string) ([]PlayerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PlayerRecord
	for account, inner := range m.player {
		if rec, ok := inner[key]; ok && rec.live(m.now()) {
			out = append(out, PlayerRecord{Account: account, Key: key, Value: rec.value})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func (m *Memory) DeletePlayerData(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.player, account)
	return nil
}

func (m *Memory) GetPlaceData(_ context.Context, placeID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getScoped(m.place, placeID, key), nil
}

func (m *Memory) SetPlaceData(_ context.Context, placeID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	setScoped(m.place, placeID, key, memRecord{value: value})
	return nil
}

func (m *Memory) GetAreaData(_ context.Context, cell, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getScoped(m.area, cell, key), nil
}

func (m *Memory) SetAreaData(_ context.Context, cell, key string, value []byte, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	setScoped(m.area, cell, key, memRecord{value: value, expires: expires})
	return nil
}

func (m *Memory) SetAreaDataBatch(_ context.Context, records []AreaRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		setScoped(m.area, r.Cell, r.Key, memRecord{value: r.Value, expires: r.Expires})
	}
	return nil
}

func (m *Memory) DeleteAreaData(_ context.Context, cell, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.area[cell], key)
	return nil
}

func (m *Memory) GetAreaDataByCells(_ context.Context, cells []string, key string) ([]AreaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AreaRecord
	for _, cell := range cells {
		if rec, ok := m.area[cell][key]; ok && rec.live(m.now()) {
			out = append(out, AreaRecord{Cell: cell, Key: key, Value: rec.value, Expires: rec.expires})
		}
	}
	return out, nil
}

func (m *Memory) GetAreaDataByPrefix(_ context.Context, cellPrefix, key string) ([]AreaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AreaRecord
	for cell, inner := range m.area {
		if !strings.HasPrefix(cell, cellPrefix) {
			continue
		}
		if rec, ok := inner[key]; ok && rec.live(m.now()) {
			out = append(out, AreaRecord{Cell: cell, Key: key, Value: rec.value, Expires: rec.expires})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	return out, nil
}

func (m *Memory) GetSecureAreaData(ctx context.Context, cell, key, secret string) ([]byte, error) {
	raw, err := m.GetAreaData(ctx, cell, key)
	if err != nil || raw == nil {
		return nil, err
	}
	return decryptValue(raw, secret)
}

func (m *Memory) SetSecureAreaData(ctx context.Context, cell, key string, value []byte, secret string, expires time.Time) error {
	sealed, err := encryptValue(value, secret)
	if err != nil {
		return err
	}
	return m.SetAreaData(ctx, cell, key, sealed, expires)
}

func (m *Memory) GetAllSecureAreaDataByKey(_ context.Context, key, secret string) ([]AreaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AreaRecord
	for cell, inner := range m.area {
		rec, ok := inner[key]
		if !ok || !rec.live(m.now()) {
			continue
		}
		plain, err := decryptValue(rec.value, secret)
		if err != nil {
			return nil, err
		}
		out = append(out, AreaRecord{Cell: cell, Key: key, Value: plain, Expires: rec.expires})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	return out, nil
}

func (m *Memory) GetGlobalData(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.global[key], nil
}

func (m *Memory) SetGlobalData(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global[key] = value
	return nil
}

func (m *Memory) GetGlobalCounter(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[key], nil
}

func (m *Memory) IncrementGlobalCounter(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] += delta
	return m.counters[key], nil
}

func (m *Memory) SetGlobalCounter(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] = value
	return nil
}
