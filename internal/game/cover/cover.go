// Package cover runs the solo coverage minigame: a player pins
// creature fragments to Cell10s and tries to blanket the map with the
// resulting scouting discs. Nothing here crosses accounts, so all
// work happens under the account's own lock.
package cover

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/state"
	"github.com/praxisgo/collector/internal/geo"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
)

// Engine mutates one account's placement map and coverage score.
type Engine struct {
	Store   db.Store
	Locks   *keylock.KeyedLock
	Catalog *catalog.Catalog
	Config  *config.GameConfig
	Log     *slog.Logger
}

// LeaderboardEntry is one row of the coverage ranking. Scores are
// stored plain because a number reveals nothing about locations.
type LeaderboardEntry struct {
	Account string `json:"accountId"`
	Score   int64  `json:"score"`
}

// UpdatePlaced sets the fragment count at a Cell10 to fragmentsUsed
// (a new total, not a delta) and returns how many fragments actually
// moved, negative when the placement shrank. The amount is clamped to
// the fragments the player has on hand.
func (e *Engine) UpdatePlaced(ctx context.Context, account, secret, cell10 string, creatureID, fragmentsUsed int64) (int64, error) {
	if !model.ValidCell(cell10) || len(cell10) != model.Cell10Len || !e.Config.InPlayArea(cell10) || fragmentsUsed < 0 {
		return 0, nil
	}
	cr, ok := e.Catalog.ByID(creatureID)
	if !ok {
		return 0, nil
	}

	var (
		moved int64
		err   error
	)
	e.Locks.WithLock(account, func() {
		moved, err = e.updateLocked(ctx, account, secret, cell10, cr, fragmentsUsed)
	})
	return moved, err
}

func (e *Engine) updateLocked(ctx context.Context, account, secret, cell10 string, cr *model.Creature, fragmentsUsed int64) (int64, error) {
	creatures, err := state.LoadCreatures(ctx, e.Store, account, secret)
	if err != nil {
		return 0, err
	}
	info := creatures[cr.ID]
	if info == nil {
		return 0, nil
	}
	placed, err := state.LoadCoverEntries(ctx, e.Store, account, secret)
	if err != nil {
		return 0, err
	}
	if placed == nil {
		placed = make(map[string]*model.CoverEntry)
	}

	entry := placed[cell10]
	var prev int64
	if entry != nil {
		if entry.CreatureID != cr.ID {
			return 0, nil
		}
		prev = entry.FragmentCount
	}

	// Take back whatever was already here, then spend up to the
	// requested amount from the replenished pool.
	info.CurrentAvailable += prev
	fragmentsUsed = min(fragmentsUsed, info.CurrentAvailable)
	info.CurrentAvailable -= fragmentsUsed

	if fragmentsUsed == 0 {
		delete(placed, cell10)
	} else {
		placed[cell10] = &model.CoverEntry{
			CreatureID:    cr.ID,
			FragmentCount: fragmentsUsed,
			Cell10:        cell10,
			Scouting:      model.ScoutingForFragments(cr.Stats, fragmentsUsed),
		}
	}

	score, err := e.coverageScore(placed)
	if err != nil {
		return 0, err
	}
	if err := e.Store.SetPlayerData(ctx, account, state.KeyCoverScore, []byte(strconv.FormatInt(score, 10)), time.Time{}); err != nil {
		return 0, fmt.Errorf("write cover score for %s: %w", account, err)
	}
	if err := state.SaveCoverEntries(ctx, e.Store, account, placed, secret); err != nil {
		return 0, err
	}
	if err := state.SaveCreatures(ctx, e.Store, account, creatures, secret); err != nil {
		return 0, err
	}
	return fragmentsUsed - prev, nil
}

// coverageScore unions every placed disc and counts how many Cell10
// squares the result covers. A full recomputation per change is fine
// at per-player entry counts.
func (e *Engine) coverageScore(placed map[string]*model.CoverEntry) (int64, error) {
	discs := make([]geo.Geom, 0, len(placed))
	for _, entry := range placed {
		if d := entryDisc(entry); len(d) > 0 {
			discs = append(discs, d)
		}
	}
	if len(discs) == 0 {
		return 0, nil
	}
	merged, err := geo.Union(discs...)
	if err != nil {
		return 0, fmt.Errorf("union coverage geometry: %w", err)
	}
	return int64(geo.Area(merged) / model.SquareCell10Area), nil
}

// Placed returns the account's whole placement map.
func (e *Engine) Placed(ctx context.Context, account, secret string) (map[string]*model.CoverEntry, error) {
	return state.LoadCoverEntries(ctx, e.Store, account, secret)
}

// PlacedAt finds the placement whose disc covers the tapped Cell10,
// preferring the smallest covering disc so taps near a small outpost
// select it instead of a huge neighbor.
func (e *Engine) PlacedAt(ctx context.Context, account, secret, cell10 string) (*model.CoverEntry, error) {
	if !model.ValidCell(cell10) || len(cell10) != model.Cell10Len {
		return nil, nil
	}
	placed, err := state.LoadCoverEntries(ctx, e.Store, account, secret)
	if err != nil {
		return nil, err
	}
	tapLat, tapLon, err := model.CellCenter(cell10)
	if err != nil {
		return nil, nil
	}

	var (
		best       *model.CoverEntry
		bestRadius float64
	)
	for _, entry := range placed {
		lat, lon, err := model.CellCenter(entry.Cell10)
		if err != nil {
			continue
		}
		radius := float64(entry.Scouting) * model.ResolutionCell10
		if !discTouchesCell(lat, lon, radius, tapLat, tapLon) {
			continue
		}
		if best == nil || radius < bestRadius {
			best = entry
			bestRadius = radius
		}
	}
	return best, nil
}

// Score returns the account's stored coverage score.
func (e *Engine) Score(ctx context.Context, account string) (int64, error) {
	raw, err := e.Store.GetPlayerData(ctx, account, state.KeyCoverScore)
	if err != nil {
		return 0, fmt.Errorf("read cover score for %s: %w", account, err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	score, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cover score for %s: %w", account, err)
	}
	return score, nil
}

// Leaderboard returns the top 25 coverage scores across all accounts.
func (e *Engine) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	records, err := e.Store.GetAllPlayerDataByKey(ctx, state.KeyCoverScore)
	if err != nil {
		return nil, fmt.Errorf("read cover scores: %w", err)
	}
	entries := make([]LeaderboardEntry, 0, len(records))
	for _, rec := range records {
		score, err := strconv.ParseInt(string(rec.Value), 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{Account: rec.Account, Score: score})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > 25 {
		entries = entries[:25]
	}
	return entries, nil
}

func entryDisc(entry *model.CoverEntry) geo.Geom {
	lat, lon, err := model.CellCenter(entry.Cell10)
	if err != nil {
		return geo.Empty()
	}
	return geo.Disc(lat, lon, float64(entry.Scouting)*model.ResolutionCell10)
}

// discTouchesCell checks whether a disc reaches the Cell10 square
// centered at (cellLat, cellLon).
func discTouchesCell(discLat, discLon, radius, cellLat, cellLon float64) bool {
	half := model.ResolutionCell10 / 2
	dx := math.Max(math.Abs(discLon-cellLon)-half, 0)
	dy := math.Max(math.Abs(discLat-cellLat)-half, 0)
	return dx*dx+dy*dy <= radius*radius
}
