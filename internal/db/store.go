// Package db persists all game state as scoped key-value blobs:
// per-player (optionally encrypted with the player's secret),
// per-place, per-area (cell-keyed, optionally expiring), and global.
// Engines treat values as opaque bytes; JSON encoding happens at the
// call site via EncodeJSON/DecodeJSON.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PlayerRecord is one player-scoped row.
type PlayerRecord struct {
	Account string
	Key     string
	Value   []byte
}

// AreaRecord is one cell-scoped row. A zero Expires never expires.
type AreaRecord struct {
	Cell    string
	Key     string
	Value   []byte
	Expires time.Time
}

// Store is the persistence collaborator every engine talks to.
// Reads return nil bytes (not an error) when no live value exists;
// expiry is lazy, checked at read time.
type Store interface {
	GetPlayerData(ctx context.Context, account, key string) ([]byte, error)
	SetPlayerData(ctx context.Context, account, key string, value []byte, expires time.Time) error
	HasPlayerData(ctx context.Context, account, key string) (bool, error)
	GetSecurePlayerData(ctx context.Context, account, key, secret string) ([]byte, error)
	SetSecurePlayerData(ctx context.Context, account, key string, value []byte, secret string, expires time.Time) error
	GetAllPlayerDataByKey(ctx context.Context, key string) ([]PlayerRecord, error)
	DeletePlayerData(ctx context.Context, account string) error

	GetPlaceData(ctx context.Context, placeID, key string) ([]byte, error)
	SetPlaceData(ctx context.Context, placeID, key string, value []byte) error

	GetAreaData(ctx context.Context, cell, key string) ([]byte, error)
	SetAreaData(ctx context.Context, cell, key string, value []byte, expires time.Time) error
	SetAreaDataBatch(ctx context.Context, records []AreaRecord) error
	DeleteAreaData(ctx context.Context, cell, key string) error
	GetAreaDataByCells(ctx context.Context, cells []string, key string) ([]AreaRecord, error)
	GetAreaDataByPrefix(ctx context.Context, cellPrefix, key string) ([]AreaRecord, error)
	GetSecureAreaData(ctx context.Context, cell, key, secret string) ([]byte, error)
	SetSecureAreaData(ctx context.Context, cell, key string, value []byte, secret string, expires time.Time) error
	GetAllSecureAreaDataByKey(ctx context.Context, key, secret string) ([]AreaRecord, error)

	GetGlobalData(ctx context.Context, key string) ([]byte, error)
	SetGlobalData(ctx context.Context, key string, value []byte) error
	GetGlobalCounter(ctx context.Context, key string) (int64, error)
	IncrementGlobalCounter(ctx context.Context, key string, delta int64) (int64, error)
	SetGlobalCounter(ctx context.Context, key string, value int64) error
}

// EncodeJSON marshals a value for storage.
func EncodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return b, nil
}

// DecodeJSON unmarshals stored bytes into a fresh T. Nil or empty
// input yields the zero value, matching "no data yet" reads.
func DecodeJSON[T any](b []byte) (T, error) {
	var v T
	if len(b) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decoding %T: %w", v, err)
	}
	return v, nil
}
