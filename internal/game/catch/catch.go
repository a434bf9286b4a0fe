// Package catch is the moment-to-moment play loop: entering a map
// square, collecting the creatures there, periodic coin grants, and
// the minigame completion reward.
package catch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/account"
	"github.com/praxisgo/collector/internal/game/spawn"
	"github.com/praxisgo/collector/internal/game/state"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
)

// Coin grant bounds per area visit.
const (
	coinGrantMin = 3
	coinGrantMax = 6
)

// recentlyCaughtCap bounds the per-player re-catch filter; the oldest
// entries age out first.
const recentlyCaughtCap = 500

// grantBlockDuration is how long one cell stays dry after paying out.
// Slightly under a day so a daily walk at the same hour still pays.
const grantBlockDuration = 22 * time.Hour

// Engine handles catches. It owns no state of its own; everything
// lives in player storage and the live instance records.
type Engine struct {
	Store     db.Store
	Locks     *keylock.KeyedLock
	Catalog   *catalog.Catalog
	Config    *config.GameConfig
	Populator *spawn.Populator
	Log       *slog.Logger
}

// EnterResult is what one map-square visit produced.
type EnterResult struct {
	Caught       []model.CreatureInstance `json:"caught"`
	CoinsGranted int64                    `json:"coinsGranted"`
	TotalGrants  int64                    `json:"totalGrants"`
}

// Enter processes a player arriving at a Cell10: pays the coin grant
// if this cell is eligible, and catches every uncaught creature in
// the 3x3 Cell10 neighborhood.
func (e *Engine) Enter(ctx context.Context, acctName, secret, cell10 string, now time.Time) (EnterResult, error) {
	if !model.ValidCell(cell10) || len(cell10) != model.Cell10Len || !e.Config.InPlayArea(cell10) {
		return EnterResult{}, nil
	}

	var (
		res EnterResult
		err error
	)
	e.Locks.WithLock(acctName, func() {
		res, err = e.enterLocked(ctx, acctName, secret, cell10, now)
	})
	if err != nil {
		return EnterResult{}, err
	}

	// Catching may have drained the cell; top it back up outside the
	// account lock.
	if err := e.Populator.Populate(ctx, model.Cell8(cell10), now); err != nil {
		e.Log.Error("respawn after catch failed", "cell", model.Cell8(cell10), "error", err)
	}
	return res, nil
}

func (e *Engine) enterLocked(ctx context.Context, acctName, secret, cell10 string, now time.Time) (EnterResult, error) {
	acct, err := state.LoadAccount(ctx, e.Store, acctName, secret)
	if err != nil || acct == nil {
		return EnterResult{}, err
	}
	creatures, err := state.LoadCreatures(ctx, e.Store, acctName, secret)
	if err != nil {
		return EnterResult{}, err
	}
	if creatures == nil {
		creatures = make(map[int64]*model.PlayerCreatureInfo)
	}

	var res EnterResult
	granted, err := e.coinGrantLocked(ctx, acctName, secret, acct, cell10, now)
	if err != nil {
		return EnterResult{}, err
	}
	res.CoinsGranted = granted
	res.TotalGrants = acct.TotalGrants

	caught, recent, err := e.catchCells(ctx, acctName, secret, creatures, model.Neighborhood(cell10), now)
	if err != nil {
		return EnterResult{}, err
	}
	res.Caught = caught

	if len(caught) > 0 {
		if err := state.SaveRecentlyCaught(ctx, e.Store, acctName, recent, secret); err != nil {
			return EnterResult{}, err
		}
	}
	if err := state.SaveCreatures(ctx, e.Store, acctName, creatures, secret); err != nil {
		return EnterResult{}, err
	}
	if err := state.SaveAccount(ctx, e.Store, acct, secret); err != nil {
		return EnterResult{}, err
	}
	return res, nil
}

// coinGrantLocked pays the periodic coin reward when the account's
// grant lockout has lapsed and this cell has not paid out recently.
func (e *Engine) coinGrantLocked(ctx context.Context, acctName, secret string, acct *model.Account, cell10 string, now time.Time) (int64, error) {
	locked, err := e.Store.HasPlayerData(ctx, acctName, state.KeyGrantLock)
	if err != nil {
		return 0, err
	}
	if locked {
		return 0, nil
	}
	blocks, err := state.LoadGrantBlocks(ctx, e.Store, acctName, secret)
	if err != nil {
		return 0, err
	}
	if blocks == nil {
		blocks = make(map[string]time.Time)
	}
	cell8 := model.Cell8(cell10)
	if until, ok := blocks[cell8]; ok && until.After(now) {
		return 0, nil
	}

	coins := int64(coinGrantMin + rand.IntN(coinGrantMax-coinGrantMin+1))
	acct.Currencies.BaseCurrency += coins
	acct.TotalGrants++
	if acct.TotalGrants >= account.GraduateGrantsCount {
		acct.GraduationEligible = true
	}

	blocks[cell8] = now.Add(grantBlockDuration)
	for cell, until := range blocks {
		if !until.After(now) {
			delete(blocks, cell)
		}
	}
	if err := state.SaveGrantBlocks(ctx, e.Store, acctName, blocks, secret); err != nil {
		return 0, err
	}
	lockout := time.Duration(e.Config.CoinGrantLockoutSeconds) * time.Second
	if err := e.Store.SetPlayerData(ctx, acctName, state.KeyGrantLock, []byte("1"), now.Add(lockout)); err != nil {
		return 0, fmt.Errorf("write grant lock for %s: %w", acctName, err)
	}
	return coins, nil
}

// catchCells boosts the player's record for every live instance in
// the given cells that they have not caught recently.
func (e *Engine) catchCells(ctx context.Context, acctName, secret string, creatures map[int64]*model.PlayerCreatureInfo, cells []string, now time.Time) ([]model.CreatureInstance, []string, error) {
	recent, err := state.LoadRecentlyCaught(ctx, e.Store, acctName, secret)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]bool, len(recent))
	for _, uid := range recent {
		seen[uid] = true
	}

	records, err := e.Store.GetAreaDataByCells(ctx, cells, "creature")
	if err != nil {
		return nil, nil, fmt.Errorf("load instances: %w", err)
	}

	var caught []model.CreatureInstance
	for _, rec := range records {
		inst, err := db.DecodeJSON[model.CreatureInstance](rec.Value)
		if err != nil || inst.Expired(now) || seen[inst.UID] {
			continue
		}
		cr, ok := e.Catalog.ByID(inst.ID)
		if !ok {
			continue
		}
		info := creatures[inst.ID]
		if info == nil {
			info = model.NewPlayerCreatureInfo(inst.ID)
			creatures[inst.ID] = info
		}
		info.Boost(cr.Stats)
		seen[inst.UID] = true
		recent = append(recent, inst.UID)
		caught = append(caught, inst)
	}
	if len(caught) == 0 {
		return nil, nil, nil
	}

	if len(recent) > recentlyCaughtCap {
		recent = recent[len(recent)-recentlyCaughtCap:]
	}
	return caught, recent, nil
}

// Wild lists the live creatures in a Cell8 the player can still
// catch, respawning first when the cell has run low.
func (e *Engine) Wild(ctx context.Context, acctName, secret, cell8 string, now time.Time) ([]model.CreatureInstance, error) {
	if !model.ValidCell(cell8) || len(cell8) != model.Cell8Len || !e.Config.InPlayArea(cell8) {
		return nil, nil
	}

	live, err := e.Populator.Live(ctx, cell8, now)
	if err != nil {
		return nil, err
	}
	if len(live) <= e.Config.CreatureCountToRespawn {
		if err := e.Populator.Populate(ctx, cell8, now); err != nil {
			return nil, err
		}
		live, err = e.Populator.Live(ctx, cell8, now)
		if err != nil {
			return nil, err
		}
	}

	var recent []string
	e.Locks.WithLock(acctName, func() {
		recent, err = state.LoadRecentlyCaught(ctx, e.Store, acctName, secret)
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recent))
	for _, uid := range recent {
		seen[uid] = true
	}
	visible := make([]model.CreatureInstance, 0, len(live))
	for _, inst := range live {
		if !seen[inst.UID] {
			visible = append(visible, inst)
		}
	}
	return visible, nil
}

// Vortex spends a vortex token to sweep every catchable creature in
// the 3x3 Cell8 neighborhood at once. Sweeps that catch no more than
// CreatureCountToRespawn creatures are discarded without consuming the
// token, so an accidental tap in a drained area costs nothing.
func (e *Engine) Vortex(ctx context.Context, acctName, secret, cell8 string, now time.Time) ([]model.CreatureInstance, error) {
	if !model.ValidCell(cell8) || len(cell8) != model.Cell8Len || !e.Config.InPlayArea(cell8) {
		return nil, nil
	}

	var (
		caught []model.CreatureInstance
		err    error
	)
	e.Locks.WithLock(acctName, func() {
		var acct *model.Account
		acct, err = state.LoadAccount(ctx, e.Store, acctName, secret)
		if err != nil || acct == nil {
			return
		}
		if acct.Currencies.VortexTokens < 1 {
			return
		}
		var creatures map[int64]*model.PlayerCreatureInfo
		creatures, err = state.LoadCreatures(ctx, e.Store, acctName, secret)
		if err != nil {
			return
		}
		if creatures == nil {
			creatures = make(map[int64]*model.PlayerCreatureInfo)
		}

		var cells []string
		for _, c8 := range model.Neighborhood(cell8) {
			cells = append(cells, model.SubCells10(c8)...)
		}
		var recent []string
		caught, recent, err = e.catchCells(ctx, acctName, secret, creatures, cells, now)
		if err != nil {
			return
		}
		if len(caught) <= e.Config.CreatureCountToRespawn {
			caught = nil
			return
		}

		acct.Currencies.VortexTokens--
		if err = state.SaveRecentlyCaught(ctx, e.Store, acctName, recent, secret); err != nil {
			return
		}
		if err = state.SaveCreatures(ctx, e.Store, acctName, creatures, secret); err != nil {
			return
		}
		err = state.SaveAccount(ctx, e.Store, acct, secret)
	})
	if err != nil {
		return nil, err
	}
	return caught, nil
}

// ChallengeDone records a completed minigame for an instance the
// player caught, granting the creature's elite variant one fragment.
func (e *Engine) ChallengeDone(ctx context.Context, acctName, secret string, creatureID int64) (bool, error) {
	cr, ok := e.Catalog.ByID(creatureID)
	if !ok || cr.EliteID == 0 {
		return false, nil
	}
	elite, ok := e.Catalog.ByID(cr.EliteID)
	if !ok {
		return false, nil
	}

	var (
		done bool
		err  error
	)
	e.Locks.WithLock(acctName, func() {
		var creatures map[int64]*model.PlayerCreatureInfo
		creatures, err = state.LoadCreatures(ctx, e.Store, acctName, secret)
		if err != nil {
			return
		}
		if creatures[creatureID] == nil || creatures[creatureID].TotalCaught < 1 {
			return
		}
		info := creatures[elite.ID]
		if info == nil {
			info = model.NewPlayerCreatureInfo(elite.ID)
			creatures[elite.ID] = info
		}
		info.Boost(elite.Stats)
		err = state.SaveCreatures(ctx, e.Store, acctName, creatures, secret)
		done = err == nil
	})
	return done, err
}

// CreatureData returns the published creature table and its version.
func (e *Engine) CreatureData(ctx context.Context) ([]byte, int64, error) {
	raw, err := e.Store.GetGlobalData(ctx, "creatureData")
	if err != nil {
		return nil, 0, fmt.Errorf("read creature data: %w", err)
	}
	version, err := e.Store.GetGlobalCounter(ctx, "creatureDataVersion")
	if err != nil {
		return nil, 0, fmt.Errorf("read creature data version: %w", err)
	}
	return raw, version, nil
}
