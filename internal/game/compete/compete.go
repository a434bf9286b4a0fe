// Package compete runs the team-area minigame: each Cell8 holds at
// most one placed creature, fed fragments by its team, projecting a
// scouting disc onto the map. A team's score is the area its discs
// cover.
package compete

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/pending"
	"github.com/praxisgo/collector/internal/game/state"
	"github.com/praxisgo/collector/internal/geo"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
	"github.com/praxisgo/collector/internal/tiles"
)

const entryKey = "competeEntry"

// TeamScoreKey is the global counter name for a team's Compete score.
func TeamScoreKey(team int) string { return "competeTeamScore" + strconv.Itoa(team) }

// Engine keeps a process-wide mirror of every live entry plus the
// per-team aggregate geometry, rebuilt from storage at startup.
// Storage writes go under the internal secret so clients cannot forge
// entries.
type Engine struct {
	Store   db.Store
	Locks   *keylock.KeyedLock
	Catalog *catalog.Catalog
	Config  *config.GameConfig
	Tiles   tiles.Expirer
	Pending *pending.Queue
	Secret  string
	Log     *slog.Logger

	mu      sync.RWMutex
	entries map[string]*model.CompeteEntry
	teamGeo [5]geo.Geom
}

// Load rebuilds the entry mirror and team geometry from storage and
// refreshes the persisted scores. Call once at startup before serving.
func (e *Engine) Load(ctx context.Context) error {
	records, err := e.Store.GetAllSecureAreaDataByKey(ctx, entryKey, e.Secret)
	if err != nil {
		return fmt.Errorf("load compete entries: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = make(map[string]*model.CompeteEntry, len(records))
	for _, rec := range records {
		entry, err := db.DecodeJSON[*model.CompeteEntry](rec.Value)
		if err != nil {
			e.Log.Warn("dropping unreadable compete entry", "cell", rec.Cell, "error", err)
			continue
		}
		if entry == nil || entry.TotalFragments <= 0 {
			continue
		}
		e.entries[entry.Cell8] = entry
	}
	for team := 1; team <= 4; team++ {
		if err := e.rebuildTeamLocked(team); err != nil {
			return err
		}
		if err := e.persistScoreLocked(ctx, team); err != nil {
			return err
		}
	}
	e.Log.Info("compete state loaded", "entries", len(e.entries))
	return nil
}

// PlaceResult reports what a placement changed.
type PlaceResult struct {
	Applied bool  `json:"applied"`
	Delta   int64 `json:"delta"` // fragments actually moved, after clamping
}

// Place sets the caller's fragment contribution for a cell to
// newTotal. The request carries a total, not a delta, so replays are
// idempotent. Cross-team placements and creature mismatches are
// silently ignored.
func (e *Engine) Place(ctx context.Context, account, secret, cell8 string, creatureID, newTotal int64) (PlaceResult, error) {
	if !model.ValidCell(cell8) || len(cell8) != model.Cell8Len || !e.Config.InPlayArea(cell8) {
		return PlaceResult{}, nil
	}

	var (
		res PlaceResult
		err error
	)
	e.Locks.WithLock2(account, cell8, func() {
		res, err = e.placeLocked(ctx, account, secret, cell8, creatureID, newTotal)
	})
	if err != nil {
		return PlaceResult{}, err
	}
	if res.Applied {
		e.Tiles.Expire(cell8, tiles.StyleCompete)
	}
	return res, nil
}

func (e *Engine) placeLocked(ctx context.Context, account, secret, cell8 string, creatureID, newTotal int64) (PlaceResult, error) {
	acct, err := state.LoadAccount(ctx, e.Store, account, secret)
	if err != nil || acct == nil {
		return PlaceResult{}, err
	}
	cr, ok := e.Catalog.ByID(creatureID)
	if !ok {
		return PlaceResult{}, nil
	}
	creatures, err := state.LoadCreatures(ctx, e.Store, account, secret)
	if err != nil {
		return PlaceResult{}, err
	}
	info := creatures[creatureID]
	if info == nil {
		return PlaceResult{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	entry := e.entries[cell8]
	if entry != nil && entry.TeamID != acct.Team {
		return PlaceResult{}, nil
	}
	if entry != nil && entry.CreatureID != creatureID {
		return PlaceResult{}, nil
	}
	if entry == nil {
		if newTotal <= 0 {
			return PlaceResult{}, nil
		}
		entry = &model.CompeteEntry{
			CreatureID:     creatureID,
			TeamID:         acct.Team,
			Cell8:          cell8,
			FragmentCounts: make(map[string]int64),
		}
	}

	prev := entry.FragmentCounts[account]
	effective := min(newTotal, prev+info.CurrentAvailableCompete, info.TotalCaught)
	effective = max(effective, 0)
	delta := effective - prev
	if delta == 0 {
		return PlaceResult{}, nil
	}

	oldScouting := entry.Scouting
	if effective == 0 {
		delete(entry.FragmentCounts, account)
	} else {
		entry.FragmentCounts[account] = effective
	}
	entry.TotalFragments += delta
	entry.Scouting = model.ScoutingForFragments(cr.Stats, entry.TotalFragments)

	info.CurrentAvailableCompete -= delta
	if info.CurrentAvailableCompete < 0 {
		info.CurrentAvailableCompete = 0
	}
	if err := state.SaveCreatures(ctx, e.Store, account, creatures, secret); err != nil {
		return PlaceResult{}, err
	}

	competeInfo, err := state.LoadCompeteInfo(ctx, e.Store, account, secret)
	if err != nil {
		return PlaceResult{}, err
	}
	if competeInfo == nil {
		competeInfo = make(map[string]*model.PlayerCompeteEntry)
	}
	if effective == 0 {
		delete(competeInfo, cell8)
	} else {
		competeInfo[cell8] = &model.PlayerCompeteEntry{CreatureID: creatureID, FragmentCount: effective}
	}
	if err := state.SaveCompeteInfo(ctx, e.Store, account, competeInfo, secret); err != nil {
		return PlaceResult{}, err
	}

	if entry.TotalFragments <= 0 {
		if err := e.removeEntryLocked(ctx, entry); err != nil {
			return PlaceResult{}, err
		}
	} else {
		if err := e.saveEntryLocked(ctx, entry, entry.Scouting >= oldScouting); err != nil {
			return PlaceResult{}, err
		}
	}
	if err := e.persistScoreLocked(ctx, entry.TeamID); err != nil {
		return PlaceResult{}, err
	}
	return PlaceResult{Applied: true, Delta: delta}, nil
}

// Attack challenges a cell's entry with the caller's whole available
// fragment pool for one creature. A win deletes the entry and queues
// every contribution back to its owner.
func (e *Engine) Attack(ctx context.Context, account, secret, cell8 string, creatureID int64) (bool, error) {
	if !model.ValidCell(cell8) || len(cell8) != model.Cell8Len {
		return false, nil
	}

	type refund struct {
		account string
		target  string
	}
	var (
		won     bool
		refunds []refund
		retErr  error
	)
	e.Locks.WithLock2(account, cell8, func() {
		creatures, err := state.LoadCreatures(ctx, e.Store, account, secret)
		if err != nil {
			retErr = err
			return
		}
		attacker := creatures[creatureID]
		cr, ok := e.Catalog.ByID(creatureID)
		if attacker == nil || !ok || attacker.CurrentAvailableCompete <= 0 {
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		entry := e.entries[cell8]
		if entry == nil {
			return
		}
		defCr, ok := e.Catalog.ByID(entry.CreatureID)
		if !ok {
			return
		}

		if strengthForFragments(cr.Stats, attacker.CurrentAvailableCompete) <= defenseForFragments(defCr.Stats, entry.TotalFragments) {
			return
		}

		for owner, count := range entry.FragmentCounts {
			refunds = append(refunds, refund{
				account: owner,
				target:  fmt.Sprintf("%d|%d|%s", entry.CreatureID, count, cell8),
			})
		}
		if err := e.removeEntryLocked(ctx, entry); err != nil {
			retErr = err
			return
		}
		if err := e.persistScoreLocked(ctx, entry.TeamID); err != nil {
			retErr = err
			return
		}
		won = true
	})
	if retErr != nil {
		return false, retErr
	}
	for _, r := range refunds {
		if err := e.Pending.Enqueue(ctx, r.account, pending.VerbReturnCompete, r.target); err != nil {
			e.Log.Error("failed to queue compete refund", "account", r.account, "error", err)
		}
	}
	if won {
		e.Tiles.Expire(cell8, tiles.StyleCompete)
	}
	return won, nil
}

// RemoveAccountEntries withdraws every contribution an account has on
// the board, without refunds. Used on team swap and account deletion.
// The caller must already hold the account's lock.
func (e *Engine) RemoveAccountEntries(ctx context.Context, account, secret string) error {
	competeInfo, err := state.LoadCompeteInfo(ctx, e.Store, account, secret)
	if err != nil {
		return err
	}
	for cell8 := range competeInfo {
		var innerErr error
		e.Locks.WithLock(cell8, func() {
			innerErr = e.withdrawLocked(ctx, account, cell8)
		})
		if innerErr != nil {
			return innerErr
		}
		e.Tiles.Expire(cell8, tiles.StyleCompete)
	}
	if len(competeInfo) > 0 {
		if err := state.SaveCompeteInfo(ctx, e.Store, account, map[string]*model.PlayerCompeteEntry{}, secret); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) withdrawLocked(ctx context.Context, account, cell8 string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry := e.entries[cell8]
	if entry == nil {
		return nil
	}
	count, ok := entry.FragmentCounts[account]
	if !ok {
		return nil
	}
	delete(entry.FragmentCounts, account)
	entry.TotalFragments -= count

	if entry.TotalFragments <= 0 {
		if err := e.removeEntryLocked(ctx, entry); err != nil {
			return err
		}
	} else {
		if cr, ok := e.Catalog.ByID(entry.CreatureID); ok {
			entry.Scouting = model.ScoutingForFragments(cr.Stats, entry.TotalFragments)
		}
		if err := e.saveEntryLocked(ctx, entry, false); err != nil {
			return err
		}
	}
	return e.persistScoreLocked(ctx, entry.TeamID)
}

// Entry returns a copy of the live entry for a cell, if any.
func (e *Engine) Entry(cell8 string) (model.CompeteEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry := e.entries[cell8]
	if entry == nil {
		return model.CompeteEntry{}, false
	}
	return *entry, true
}

// TeamGeometry returns the aggregate disc union for one team. The
// read is unlocked against concurrent placements; stale geometry is
// acceptable for rendering.
func (e *Engine) TeamGeometry(team int) geo.Geom {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if team < 1 || team > 4 {
		return geo.Empty()
	}
	return e.teamGeo[team]
}

// Leaderboard returns the four team scores.
func (e *Engine) Leaderboard(ctx context.Context) (map[int]int64, error) {
	out := make(map[int]int64, 4)
	for team := 1; team <= 4; team++ {
		v, err := e.Store.GetGlobalCounter(ctx, TeamScoreKey(team))
		if err != nil {
			return nil, fmt.Errorf("read compete team %d score: %w", team, err)
		}
		out[team] = v
	}
	return out, nil
}

// saveEntryLocked persists the entry and updates the team geometry.
// Growing discs union into the aggregate; shrinking forces a full
// rebuild because neighbors may have covered the lost ring.
func (e *Engine) saveEntryLocked(ctx context.Context, entry *model.CompeteEntry, grew bool) error {
	raw, err := db.EncodeJSON(entry)
	if err != nil {
		return fmt.Errorf("encode compete entry: %w", err)
	}
	if err := e.Store.SetSecureAreaData(ctx, entry.Cell8, entryKey, raw, e.Secret, time.Time{}); err != nil {
		return fmt.Errorf("write compete entry for %s: %w", entry.Cell8, err)
	}
	if e.entries == nil {
		e.entries = make(map[string]*model.CompeteEntry)
	}
	e.entries[entry.Cell8] = entry

	if grew {
		merged, err := geo.Union(e.teamGeo[entry.TeamID], entryDisc(entry))
		if err != nil {
			return fmt.Errorf("union compete geometry for team %d: %w", entry.TeamID, err)
		}
		e.teamGeo[entry.TeamID] = merged
		return nil
	}
	return e.rebuildTeamLocked(entry.TeamID)
}

func (e *Engine) removeEntryLocked(ctx context.Context, entry *model.CompeteEntry) error {
	if err := e.Store.DeleteAreaData(ctx, entry.Cell8, entryKey); err != nil {
		return fmt.Errorf("delete compete entry for %s: %w", entry.Cell8, err)
	}
	delete(e.entries, entry.Cell8)
	return e.rebuildTeamLocked(entry.TeamID)
}

func (e *Engine) rebuildTeamLocked(team int) error {
	discs := make([]geo.Geom, 0, len(e.entries))
	for _, entry := range e.entries {
		if entry.TeamID == team {
			discs = append(discs, entryDisc(entry))
		}
	}
	merged, err := geo.Union(discs...)
	if err != nil {
		return fmt.Errorf("rebuild compete geometry for team %d: %w", team, err)
	}
	e.teamGeo[team] = merged
	return nil
}

// persistScoreLocked stores area divided by the Cell10 reference
// square, so one fully scouted Cell10 is worth one point.
func (e *Engine) persistScoreLocked(ctx context.Context, team int) error {
	score := int64(geo.Area(e.teamGeo[team]) / (model.ResolutionCell10 * model.ResolutionCell10))
	if err := e.Store.SetGlobalCounter(ctx, TeamScoreKey(team), score); err != nil {
		return fmt.Errorf("write compete team %d score: %w", team, err)
	}
	return nil
}

func entryDisc(entry *model.CompeteEntry) geo.Geom {
	lat, lon, err := model.CellCenter(entry.Cell8)
	if err != nil {
		return geo.Empty()
	}
	return geo.Disc(lat, lon, float64(entry.Scouting)*model.ResolutionCell10)
}

func strengthForFragments(stats model.LevelStats, fragments int64) int64 {
	scratch := model.NewPlayerCreatureInfo(0)
	scratch.FastBoost(stats, fragments)
	return scratch.Strength
}

func defenseForFragments(stats model.LevelStats, fragments int64) int64 {
	scratch := model.NewPlayerCreatureInfo(0)
	scratch.FastBoost(stats, fragments)
	return scratch.Defense
}
