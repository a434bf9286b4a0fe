// Package account owns the player lifecycle: creation, login-time
// maintenance (queued commands, idle tasks, the daily audit), team
// membership, tutorials, and graduation.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/compete"
	"github.com/praxisgo/collector/internal/game/control"
	"github.com/praxisgo/collector/internal/game/pending"
	"github.com/praxisgo/collector/internal/game/spawn"
	"github.com/praxisgo/collector/internal/game/state"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
)

// GraduateGrantsCount is how many coin grants complete the long game.
const GraduateGrantsCount = 10000

// Engine wires the account lifecycle to the minigame engines that
// hold pieces of a player's footprint.
type Engine struct {
	Store   db.Store
	Locks   *keylock.KeyedLock
	Catalog *catalog.Catalog
	Config  *config.GameConfig
	Pending *pending.Queue
	Control *control.Engine
	Compete *compete.Engine
	Log     *slog.Logger
}

// View is what a login returns: the account plus everything the
// client caches about its creatures and tasks.
type View struct {
	Account   *model.Account                      `json:"account"`
	Creatures map[int64]*model.PlayerCreatureInfo `json:"creatures"`
	Tasks     map[string]*model.ImprovementTask   `json:"tasks"`
}

// Create makes a new account with the starter creature. Returns false
// when the name is already taken.
func (e *Engine) Create(ctx context.Context, account, secret string, now time.Time) (bool, error) {
	var (
		created bool
		err     error
	)
	e.Locks.WithLock(account, func() {
		created, err = e.createLocked(ctx, account, secret, now)
	})
	return created, err
}

func (e *Engine) createLocked(ctx context.Context, account, secret string, now time.Time) (bool, error) {
	exists, err := e.Store.HasPlayerData(ctx, account, state.KeyAccount)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	acct := model.NewAccount(account, now)
	if err := state.SaveAccount(ctx, e.Store, acct, secret); err != nil {
		return false, err
	}

	creatures := make(map[int64]*model.PlayerCreatureInfo)
	if starter, ok := e.Catalog.ByID(catalog.StarterID); ok {
		info := model.NewPlayerCreatureInfo(starter.ID)
		info.Boost(starter.Stats)
		creatures[starter.ID] = info
	}
	if err := state.SaveCreatures(ctx, e.Store, account, creatures, secret); err != nil {
		return false, err
	}
	if err := state.SaveTasks(ctx, e.Store, account, model.DefaultImprovementTasks(), secret); err != nil {
		return false, err
	}
	if err := state.SaveGrantBlocks(ctx, e.Store, account, map[string]time.Time{}, secret); err != nil {
		return false, err
	}
	if err := e.Store.SetPlayerData(ctx, account, state.KeyViewedTutorials, []byte("[]"), time.Time{}); err != nil {
		return false, err
	}
	e.Log.Info("account created", "account", account)
	return true, nil
}

// Get loads an account for a session, draining queued commands,
// crediting idle tasks, and running the daily audit first.
func (e *Engine) Get(ctx context.Context, account, secret string, now time.Time) (*View, error) {
	var (
		view *View
		err  error
	)
	e.Locks.WithLock(account, func() {
		view, err = e.getLocked(ctx, account, secret, now)
	})
	return view, err
}

func (e *Engine) getLocked(ctx context.Context, account, secret string, now time.Time) (*View, error) {
	acct, err := state.LoadAccount(ctx, e.Store, account, secret)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, nil
	}
	creatures, err := state.LoadCreatures(ctx, e.Store, account, secret)
	if err != nil {
		return nil, err
	}
	if creatures == nil {
		creatures = make(map[int64]*model.PlayerCreatureInfo)
	}
	tasks, err := state.LoadTasks(ctx, e.Store, account, secret)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = model.DefaultImprovementTasks()
	}

	cmds, err := e.Pending.DrainLocked(ctx, account)
	if err != nil {
		return nil, err
	}
	for _, cmd := range cmds {
		if err := e.applyCommand(ctx, account, secret, acct, creatures, cmd); err != nil {
			e.Log.Error("failed to apply queued command", "account", account, "verb", cmd.Verb, "error", err)
		}
	}

	e.creditTasks(acct, creatures, tasks, now)

	if now.Sub(acct.LastAudit) >= 24*time.Hour {
		if err := e.auditLocked(ctx, account, secret, creatures); err != nil {
			return nil, err
		}
		acct.LastAudit = now
	}

	if err := state.SaveAccount(ctx, e.Store, acct, secret); err != nil {
		return nil, err
	}
	if err := state.SaveCreatures(ctx, e.Store, account, creatures, secret); err != nil {
		return nil, err
	}
	if err := state.SaveTasks(ctx, e.Store, account, tasks, secret); err != nil {
		return nil, err
	}
	return &View{Account: acct, Creatures: creatures, Tasks: tasks}, nil
}

// applyCommand handles one queued notification. Unknown verbs are
// logged and dropped rather than blocking the queue forever.
func (e *Engine) applyCommand(ctx context.Context, account, secret string, acct *model.Account, creatures map[int64]*model.PlayerCreatureInfo, cmd model.UpdateCommand) error {
	switch cmd.Verb {
	case pending.VerbReturn:
		id, err := strconv.ParseInt(cmd.Target, 10, 64)
		if err != nil {
			return fmt.Errorf("bad return target %q: %w", cmd.Target, err)
		}
		if info := creatures[id]; info != nil {
			info.Available = true
			info.AssignedTo = ""
		}
		placed, err := state.LoadPlaced(ctx, e.Store, account, secret)
		if err != nil {
			return err
		}
		for cell, ids := range placed {
			kept := ids[:0]
			for _, placedID := range ids {
				if placedID != id {
					kept = append(kept, placedID)
				}
			}
			if len(kept) == 0 {
				delete(placed, cell)
			} else {
				placed[cell] = kept
			}
		}
		return state.SavePlaced(ctx, e.Store, account, placed, secret)

	case pending.VerbReturnCompete:
		parts := strings.Split(cmd.Target, "|")
		if len(parts) != 3 {
			return fmt.Errorf("bad compete return target %q", cmd.Target)
		}
		id, err1 := strconv.ParseInt(parts[0], 10, 64)
		frags, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("bad compete return target %q", cmd.Target)
		}
		if info := creatures[id]; info != nil {
			info.CurrentAvailableCompete += frags
		}
		competeInfo, err := state.LoadCompeteInfo(ctx, e.Store, account, secret)
		if err != nil {
			return err
		}
		delete(competeInfo, parts[2])
		return state.SaveCompeteInfo(ctx, e.Store, account, competeInfo, secret)

	case pending.VerbGraduate:
		acct.GraduationEligible = true
		return nil

	case pending.VerbReset:
		return e.resetLocked(ctx, account, secret, acct, creatures)

	case pending.VerbGrant, pending.VerbAdminGrant:
		return e.applyGrant(acct, creatures, cmd.Target)

	default:
		e.Log.Warn("dropping unknown queued verb", "account", account, "verb", cmd.Verb)
		return nil
	}
}

func (e *Engine) applyGrant(acct *model.Account, creatures map[int64]*model.PlayerCreatureInfo, target string) error {
	parts := strings.Split(target, "|")
	switch parts[0] {
	case "catch":
		if len(parts) != 3 {
			return fmt.Errorf("bad catch grant %q", target)
		}
		id, err1 := strconv.ParseInt(parts[1], 10, 64)
		amount, err2 := strconv.ParseInt(parts[2], 10, 64)
		if err1 != nil || err2 != nil || amount <= 0 {
			return fmt.Errorf("bad catch grant %q", target)
		}
		cr, ok := e.Catalog.ByID(id)
		if !ok {
			return fmt.Errorf("catch grant for unknown creature %d", id)
		}
		info := creatures[id]
		if info == nil {
			info = model.NewPlayerCreatureInfo(id)
			creatures[id] = info
		}
		info.FastBoost(cr.Stats, amount)
		info.TotalCaught += amount
		return nil
	case "coins":
		return grantCurrency(parts, target, &acct.Currencies.BaseCurrency)
	case "proxytokens":
		return grantCurrency(parts, target, &acct.Currencies.ProxyPlayTokens)
	case "swaptokens":
		return grantCurrency(parts, target, &acct.Currencies.TeamSwapTokens)
	case "vortextokens":
		return grantCurrency(parts, target, &acct.Currencies.VortexTokens)
	}
	return fmt.Errorf("unknown grant %q", target)
}

func grantCurrency(parts []string, target string, balance *int64) error {
	if len(parts) != 2 {
		return fmt.Errorf("bad grant %q", target)
	}
	amount, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || amount <= 0 {
		return fmt.Errorf("bad grant %q", target)
	}
	*balance += amount
	return nil
}

// creditTasks converts elapsed wall time on assigned task slots into
// rewards.
func (e *Engine) creditTasks(acct *model.Account, creatures map[int64]*model.PlayerCreatureInfo, tasks map[string]*model.ImprovementTask, now time.Time) {
	for _, task := range tasks {
		if task.Assigned == 0 {
			task.LastCheck = now
			continue
		}
		if !task.LastCheck.IsZero() {
			task.Accrued += int64(now.Sub(task.LastCheck) / time.Second)
		}
		task.LastCheck = now
		for task.TimePerResult > 0 && task.Accrued >= task.TimePerResult {
			task.Accrued -= task.TimePerResult
			e.awardTask(acct, creatures, task)
		}
	}
}

func (e *Engine) awardTask(acct *model.Account, creatures map[int64]*model.PlayerCreatureInfo, task *model.ImprovementTask) {
	switch task.ID {
	case "clone":
		if info := creatures[task.Assigned]; info != nil {
			if cr, ok := e.Catalog.ByID(task.Assigned); ok {
				info.FastBoost(cr.Stats, 1)
				info.TotalCaught++
			}
		}
	case "ppt":
		acct.Currencies.ProxyPlayTokens++
	case "hint":
		for _, cr := range e.Catalog.Visible() {
			if creatures[cr.ID] == nil {
				info := model.NewPlayerCreatureInfo(cr.ID)
				info.HintUnlocked = true
				info.Available = false
				creatures[cr.ID] = info
				break
			}
		}
	case "tst":
		acct.Currencies.TeamSwapTokens++
	case "vortex":
		acct.Currencies.VortexTokens++
	}
}

// auditLocked reconciles fragment pools against actual placements, so
// client-side races can never mint fragments. Runs at most daily.
func (e *Engine) auditLocked(ctx context.Context, account, secret string, creatures map[int64]*model.PlayerCreatureInfo) error {
	coverUsed := make(map[int64]int64)
	coverPlaced, err := state.LoadCoverEntries(ctx, e.Store, account, secret)
	if err != nil {
		return err
	}
	for _, entry := range coverPlaced {
		coverUsed[entry.CreatureID] += entry.FragmentCount
	}

	competeUsed := make(map[int64]int64)
	competeInfo, err := state.LoadCompeteInfo(ctx, e.Store, account, secret)
	if err != nil {
		return err
	}
	for _, entry := range competeInfo {
		competeUsed[entry.CreatureID] += entry.FragmentCount
	}

	for id, info := range creatures {
		if want := info.TotalCaught - coverUsed[id]; want >= 0 && info.CurrentAvailable > want {
			info.CurrentAvailable = want
		}
		if want := info.TotalCaught - competeUsed[id]; want >= 0 && info.CurrentAvailableCompete > want {
			info.CurrentAvailableCompete = want
		}
	}
	return nil
}

// SetTeam assigns or changes the account's team. The first pick is
// free; changing costs a swap token and withdraws the player's whole
// Control and Compete footprint.
func (e *Engine) SetTeam(ctx context.Context, account, secret string, team int) (bool, error) {
	if team < 1 || team > 4 {
		return false, nil
	}

	var (
		picked  bool
		cells   map[string][]int64
		acct    *model.Account
		retErr  error
		swapped bool
	)
	e.Locks.WithLock(account, func() {
		acct, retErr = state.LoadAccount(ctx, e.Store, account, secret)
		if retErr != nil || acct == nil || acct.Team == team {
			return
		}
		if acct.Team != 0 {
			if acct.Currencies.TeamSwapTokens < 1 {
				return
			}
			acct.Currencies.TeamSwapTokens--
			swapped = true
			var placed map[string][]int64
			placed, retErr = state.LoadPlaced(ctx, e.Store, account, secret)
			if retErr != nil {
				return
			}
			cells = placed
			if retErr = state.SavePlaced(ctx, e.Store, account, map[string][]int64{}, secret); retErr != nil {
				return
			}
			if retErr = e.Compete.RemoveAccountEntries(ctx, account, secret); retErr != nil {
				return
			}
		}
		acct.Team = team
		if retErr = state.SaveAccount(ctx, e.Store, acct, secret); retErr != nil {
			return
		}
		if swapped {
			var creatures map[int64]*model.PlayerCreatureInfo
			creatures, retErr = state.LoadCreatures(ctx, e.Store, account, secret)
			if retErr != nil {
				return
			}
			for _, info := range creatures {
				info.Available = true
				info.AssignedTo = ""
				info.CurrentAvailableCompete = info.TotalCaught
			}
			if retErr = state.SaveCreatures(ctx, e.Store, account, creatures, secret); retErr != nil {
				return
			}
		}
		picked = true
	})
	if retErr != nil {
		return false, retErr
	}
	// Pull Control claims after releasing the account lock; the
	// control engine takes cell locks itself.
	for cell8 := range cells {
		if _, err := e.Control.RemoveAccountClaims(ctx, account, cell8); err != nil {
			return picked, err
		}
	}
	return picked, nil
}

// SetProxyPlay spends a proxy-play token to set a remote play point.
func (e *Engine) SetProxyPlay(ctx context.Context, account, secret string, lat, lon float64) (bool, error) {
	var (
		ok  bool
		err error
	)
	e.Locks.WithLock(account, func() {
		var acct *model.Account
		acct, err = state.LoadAccount(ctx, e.Store, account, secret)
		if err != nil || acct == nil {
			return
		}
		if acct.Currencies.ProxyPlayTokens < 1 {
			return
		}
		acct.Currencies.ProxyPlayTokens--
		acct.ProxyPlayPoint = &model.ProxyPoint{Lat: lat, Lon: lon}
		err = state.SaveAccount(ctx, e.Store, acct, secret)
		ok = err == nil
	})
	return ok, err
}

// Tutorials returns the tutorial ids the account has viewed.
func (e *Engine) Tutorials(ctx context.Context, account string) ([]string, error) {
	raw, err := e.Store.GetPlayerData(ctx, account, state.KeyViewedTutorials)
	if err != nil {
		return nil, err
	}
	return db.DecodeJSON[[]string](raw)
}

// MarkTutorial records one tutorial as viewed.
func (e *Engine) MarkTutorial(ctx context.Context, account, tutorial string) error {
	var err error
	e.Locks.WithLock(account, func() {
		var viewed []string
		viewed, err = e.Tutorials(ctx, account)
		if err != nil {
			return
		}
		for _, v := range viewed {
			if v == tutorial {
				return
			}
		}
		viewed = append(viewed, tutorial)
		var raw []byte
		raw, err = db.EncodeJSON(viewed)
		if err != nil {
			return
		}
		err = e.Store.SetPlayerData(ctx, account, state.KeyViewedTutorials, raw, time.Time{})
	})
	return err
}

// ChangePassword re-encrypts every secure blob under a new secret.
func (e *Engine) ChangePassword(ctx context.Context, account, oldSecret, newSecret string) (bool, error) {
	keys := []string{
		state.KeyAccount, state.KeyCreatureInfo, state.KeyCompeteInfo,
		state.KeyPlacedCreature, state.KeyControlClaims, state.KeyTaskInfo,
		state.KeyGrantBlocks, state.KeyRecentlyCaught,
	}
	var (
		changed bool
		err     error
	)
	e.Locks.WithLock(account, func() {
		for _, key := range keys {
			var raw []byte
			raw, err = e.Store.GetSecurePlayerData(ctx, account, key, oldSecret)
			if err != nil {
				err = fmt.Errorf("re-encrypt %s for %s: %w", key, account, err)
				return
			}
			if raw == nil {
				continue
			}
			if err = e.Store.SetSecurePlayerData(ctx, account, key, raw, newSecret, time.Time{}); err != nil {
				err = fmt.Errorf("re-encrypt %s for %s: %w", key, account, err)
				return
			}
		}
		changed = true
	})
	return changed, err
}

// Delete removes the account and its whole footprint.
func (e *Engine) Delete(ctx context.Context, account, secret string) error {
	var (
		cells  map[string][]int64
		retErr error
	)
	e.Locks.WithLock(account, func() {
		cells, retErr = state.LoadPlaced(ctx, e.Store, account, secret)
		if retErr != nil {
			return
		}
		if retErr = e.Compete.RemoveAccountEntries(ctx, account, secret); retErr != nil {
			return
		}
		retErr = e.Store.DeletePlayerData(ctx, account)
	})
	if retErr != nil {
		return retErr
	}
	for cell8 := range cells {
		if _, err := e.Control.RemoveAccountClaims(ctx, account, cell8); err != nil {
			return err
		}
	}
	e.Log.Info("account deleted", "account", account)
	return nil
}

// Graduate lets an eligible player add one of their creatures to an
// area's spawn table forever, then starts their collection over.
func (e *Engine) Graduate(ctx context.Context, account, secret string, creatureID int64, area string) (bool, error) {
	if !model.ValidCell(area) {
		return false, nil
	}

	var (
		done   bool
		retErr error
	)
	e.Locks.WithLock(account, func() {
		acct, err := state.LoadAccount(ctx, e.Store, account, secret)
		if err != nil || acct == nil {
			retErr = err
			return
		}
		creatures, err := state.LoadCreatures(ctx, e.Store, account, secret)
		if err != nil {
			retErr = err
			return
		}
		if !acct.GraduationEligible || creatures[creatureID] == nil || creatures[creatureID].TotalCaught < 1 {
			return
		}

		// Spawn table writes race with the populator, so take the
		// area's spawn gate while the catalog and its published copy
		// change.
		e.Locks.WithLock(spawn.SpawnLockKey(area), func() {
			if err := e.Catalog.Graduate(creatureID, area); err != nil {
				retErr = err
				return
			}
			retErr = PublishCatalog(ctx, e.Store, e.Catalog)
		})
		if retErr != nil {
			return
		}

		acct.GraduationEligible = false
		acct.TotalGrants = 0
		if err := state.SaveAccount(ctx, e.Store, acct, secret); err != nil {
			retErr = err
			return
		}
		retErr = e.resetLocked(ctx, account, secret, acct, creatures)
		if retErr == nil {
			done = true
			e.Log.Info("player graduated", "account", account, "creature", creatureID, "area", area)
		}
	})
	return done, retErr
}

// resetLocked wipes progress back to a fresh collection, keeping the
// account row, team, and currency balances.
func (e *Engine) resetLocked(ctx context.Context, account, secret string, acct *model.Account, creatures map[int64]*model.PlayerCreatureInfo) error {
	for id := range creatures {
		delete(creatures, id)
	}
	if starter, ok := e.Catalog.ByID(catalog.StarterID); ok {
		info := model.NewPlayerCreatureInfo(starter.ID)
		info.Boost(starter.Stats)
		creatures[starter.ID] = info
	}
	acct.TotalGrants = 0
	if err := state.SaveCreatures(ctx, e.Store, account, creatures, secret); err != nil {
		return err
	}
	if err := state.SaveCoverEntries(ctx, e.Store, account, map[string]*model.CoverEntry{}, secret); err != nil {
		return err
	}
	if err := state.SaveCompeteInfo(ctx, e.Store, account, map[string]*model.PlayerCompeteEntry{}, secret); err != nil {
		return err
	}
	if err := state.SavePlaced(ctx, e.Store, account, map[string][]int64{}, secret); err != nil {
		return err
	}
	return e.Store.SetPlayerData(ctx, account, state.KeyCoverScore, []byte("0"), time.Time{})
}

// PublishCatalog writes the catalog and its version to global data,
// where clients fetch the creature table from.
func PublishCatalog(ctx context.Context, store db.Store, cat *catalog.Catalog) error {
	raw, version, err := cat.Snapshot()
	if err != nil {
		return fmt.Errorf("encode creature data: %w", err)
	}
	if err := store.SetGlobalData(ctx, "creatureData", raw); err != nil {
		return fmt.Errorf("publish creature data: %w", err)
	}
	return store.SetGlobalCounter(ctx, "creatureDataVersion", version)
}
