// Package state reads and writes the per-account JSON blobs every
// engine shares. All of them live in secure player storage under the
// account's own secret; the storage keys are fixed here so engines
// cannot drift apart on naming.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/model"
)

// Secure player data keys.
const (
	KeyAccount        = "account"
	KeyCreatureInfo   = "creatureInfo"
	KeyCompeteInfo    = "competeInfo"
	KeyPlacedCreature = "placedCreatures" // Cover mode, Cell10 keyed
	KeyControlClaims  = "controlClaims"   // Control mode, Cell8 keyed
	KeyTaskInfo       = "taskInfo"
	KeyGrantBlocks    = "grantBlocks"
	KeyRecentlyCaught = "recentlyCaught"
)

// Plain player data keys.
const (
	KeyViewedTutorials = "viewedTutorials"
	KeyGrantLock       = "GrantLock"
	KeyCoverScore      = "coverScore"
)

func loadSecure[T any](ctx context.Context, store db.Store, account, key, secret string) (T, error) {
	var zero T
	raw, err := store.GetSecurePlayerData(ctx, account, key, secret)
	if err != nil {
		return zero, fmt.Errorf("read %s for %s: %w", key, account, err)
	}
	v, err := db.DecodeJSON[T](raw)
	if err != nil {
		return zero, fmt.Errorf("decode %s for %s: %w", key, account, err)
	}
	return v, nil
}

func saveSecure(ctx context.Context, store db.Store, account, key string, v any, secret string) error {
	raw, err := db.EncodeJSON(v)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", key, account, err)
	}
	if err := store.SetSecurePlayerData(ctx, account, key, raw, secret, time.Time{}); err != nil {
		return fmt.Errorf("write %s for %s: %w", key, account, err)
	}
	return nil
}

// LoadAccount returns the stored account record, or nil when the
// account does not exist yet.
func LoadAccount(ctx context.Context, store db.Store, account, secret string) (*model.Account, error) {
	return loadSecure[*model.Account](ctx, store, account, KeyAccount, secret)
}

func SaveAccount(ctx context.Context, store db.Store, acct *model.Account, secret string) error {
	return saveSecure(ctx, store, acct.Name, KeyAccount, acct, secret)
}

// LoadCreatures returns the account's per-creature progress map,
// keyed by catalog id. Missing data decodes to a nil map.
func LoadCreatures(ctx context.Context, store db.Store, account, secret string) (map[int64]*model.PlayerCreatureInfo, error) {
	return loadSecure[map[int64]*model.PlayerCreatureInfo](ctx, store, account, KeyCreatureInfo, secret)
}

func SaveCreatures(ctx context.Context, store db.Store, account string, creatures map[int64]*model.PlayerCreatureInfo, secret string) error {
	return saveSecure(ctx, store, account, KeyCreatureInfo, creatures, secret)
}

// LoadPlaced returns the cells where the account has Control claims,
// mapping cell to the committed creature ids there.
func LoadPlaced(ctx context.Context, store db.Store, account, secret string) (map[string][]int64, error) {
	return loadSecure[map[string][]int64](ctx, store, account, KeyControlClaims, secret)
}

func SavePlaced(ctx context.Context, store db.Store, account string, placed map[string][]int64, secret string) error {
	return saveSecure(ctx, store, account, KeyControlClaims, placed, secret)
}

// LoadCoverEntries returns the account's Cover placements, keyed by
// Cell10.
func LoadCoverEntries(ctx context.Context, store db.Store, account, secret string) (map[string]*model.CoverEntry, error) {
	return loadSecure[map[string]*model.CoverEntry](ctx, store, account, KeyPlacedCreature, secret)
}

func SaveCoverEntries(ctx context.Context, store db.Store, account string, entries map[string]*model.CoverEntry, secret string) error {
	return saveSecure(ctx, store, account, KeyPlacedCreature, entries, secret)
}

// LoadCompeteInfo returns the account's Compete placements, keyed by
// Cell8.
func LoadCompeteInfo(ctx context.Context, store db.Store, account, secret string) (map[string]*model.PlayerCompeteEntry, error) {
	return loadSecure[map[string]*model.PlayerCompeteEntry](ctx, store, account, KeyCompeteInfo, secret)
}

func SaveCompeteInfo(ctx context.Context, store db.Store, account string, entries map[string]*model.PlayerCompeteEntry, secret string) error {
	return saveSecure(ctx, store, account, KeyCompeteInfo, entries, secret)
}

// LoadTasks returns the account's improvement task slots.
func LoadTasks(ctx context.Context, store db.Store, account, secret string) (map[string]*model.ImprovementTask, error) {
	return loadSecure[map[string]*model.ImprovementTask](ctx, store, account, KeyTaskInfo, secret)
}

func SaveTasks(ctx context.Context, store db.Store, account string, tasks map[string]*model.ImprovementTask, secret string) error {
	return saveSecure(ctx, store, account, KeyTaskInfo, tasks, secret)
}

// LoadGrantBlocks returns the map of grant sources the account has
// recently collected from, value = expiry time.
func LoadGrantBlocks(ctx context.Context, store db.Store, account, secret string) (map[string]time.Time, error) {
	return loadSecure[map[string]time.Time](ctx, store, account, KeyGrantBlocks, secret)
}

func SaveGrantBlocks(ctx context.Context, store db.Store, account string, blocks map[string]time.Time, secret string) error {
	return saveSecure(ctx, store, account, KeyGrantBlocks, blocks, secret)
}

// LoadRecentlyCaught returns the instance uids the account caught
// most recently, newest last.
func LoadRecentlyCaught(ctx context.Context, store db.Store, account, secret string) ([]string, error) {
	return loadSecure[[]string](ctx, store, account, KeyRecentlyCaught, secret)
}

func SaveRecentlyCaught(ctx context.Context, store db.Store, account string, uids []string, secret string) error {
	return saveSecure(ctx, store, account, KeyRecentlyCaught, uids, secret)
}
