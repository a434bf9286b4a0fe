// Package control runs the pyramid minigame: each cell holds up to
// fifteen committed creatures sorted by level, the strongest team
// owns the cell, and attackers knock defenders out from the top or
// the bottom.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/pending"
	"github.com/praxisgo/collector/internal/game/state"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
	"github.com/praxisgo/collector/internal/tiles"
)

// Capacity is the most creatures one cell's pyramid can hold.
const Capacity = 15

// SharesPerSpot weights each pyramid slot's contribution to the
// cell's score, top slot first.
var SharesPerSpot = [Capacity]int64{16, 8, 8, 4, 4, 4, 2, 2, 2, 2, 1, 1, 1, 1, 1}

// Cell data keys.
const (
	claimsKey = "creatures"
	ownerKey  = "teamOwner"
	scoreKey  = "score"
)

// TeamScoreKey is the global counter name for a team's Control score.
func TeamScoreKey(team int) string { return "team" + strconv.Itoa(team) + "Score" }

// Engine mutates cell pyramids under the account-then-cell lock
// order. Evicted players are notified through the pending queue after
// all locks are released.
type Engine struct {
	Store   db.Store
	Locks   *keylock.KeyedLock
	Catalog *catalog.Catalog
	Config  *config.GameConfig
	Tiles   tiles.Expirer
	Pending *pending.Queue
	Log     *slog.Logger
}

// CellInfo is the public view of one cell's pyramid.
type CellInfo struct {
	Claims []model.ClaimData `json:"claims"`
	Owner  int               `json:"owner"`
	Score  int64             `json:"score"`
}

// note is a pending command to deliver once locks are dropped.
type note struct {
	account string
	verb    string
	target  string
}

// CalculateScores distributes a pyramid's share-weighted points over
// the five teams. Index 0 is the unclaimed team and always stays
// zero for scoring purposes; it participates here only so deltas can
// be computed uniformly.
func CalculateScores(claims []model.ClaimData) [5]int64 {
	var scores [5]int64
	var totalShares int64
	for i := range claims {
		if i >= Capacity {
			break
		}
		totalShares += SharesPerSpot[i]
	}
	pointsPerShare := totalShares / 5
	for i, claim := range claims {
		if i >= Capacity {
			break
		}
		if claim.Team >= 1 && claim.Team <= 4 {
			scores[claim.Team] += SharesPerSpot[i] * pointsPerShare
		}
	}
	return scores
}

// Claim commits one of the player's creatures to a cell. It returns
// false without error when the cell is full, the creature is not
// available, or the cell is out of bounds.
func (e *Engine) Claim(ctx context.Context, account, secret, cell8 string, creatureID int64) (bool, error) {
	if !model.ValidCell(cell8) || !e.Config.InPlayArea(cell8) {
		return false, nil
	}
	cr, ok := e.Catalog.ByID(creatureID)
	if !ok {
		return false, nil
	}

	var (
		claimed bool
		err     error
		notes   []note
	)
	e.Locks.WithLock2(account, cell8, func() {
		claimed, notes, err = e.claimLocked(ctx, account, secret, cell8, cr)
	})
	if err != nil {
		return false, err
	}
	e.deliver(ctx, notes)
	if claimed {
		e.Tiles.Expire(cell8, tiles.StyleControl)
	}
	return claimed, err
}

func (e *Engine) claimLocked(ctx context.Context, account, secret, cell8 string, cr *model.Creature) (bool, []note, error) {
	acct, err := state.LoadAccount(ctx, e.Store, account, secret)
	if err != nil || acct == nil {
		return false, nil, err
	}
	creatures, err := state.LoadCreatures(ctx, e.Store, account, secret)
	if err != nil {
		return false, nil, err
	}
	info := creatures[cr.ID]
	if info == nil || !info.Available || info.Level < 1 {
		return false, nil, nil
	}

	claims, err := e.loadClaims(ctx, cell8)
	if err != nil {
		return false, nil, err
	}
	if len(claims) >= Capacity {
		return false, nil, nil
	}

	claim := model.ClaimData{
		Team:       acct.Team,
		Owner:      account,
		Level:      info.Level,
		CreatureID: cr.ID,
		Name:       cr.Name,
	}
	// Committing inside a regional-form range swaps the claim to the
	// local variant and records it in the player's collection.
	if formID := cr.RegionalFormFor(cell8); formID != 0 {
		if form, ok := e.Catalog.ByID(formID); ok {
			claim.CreatureID = form.ID
			claim.Name = form.Name
			if creatures[form.ID] == nil {
				formInfo := model.NewPlayerCreatureInfo(form.ID)
				formInfo.SetToLevel(form.Stats, info.Level)
				formInfo.TotalCaught = info.TotalCaught
				formInfo.Available = false
				creatures[form.ID] = formInfo
			}
		}
	}

	oldScores := CalculateScores(claims)
	claims = append(claims, claim)

	if zodiacComplete(claims) {
		notes := make([]note, 0, 2*len(claims))
		for _, c := range claims {
			grant := fmt.Sprintf("catch|%d|%d", catalog.ZodiacRewardID, catalog.ZodiacRewardFragments)
			notes = append(notes,
				note{account: c.Owner, verb: pending.VerbGrant, target: grant},
				note{account: c.Owner, verb: pending.VerbReturn, target: strconv.FormatInt(c.CreatureID, 10)})
		}
		// The just-claimed creature flips straight back, so the
		// player record never marks it as committed.
		if err := state.SaveCreatures(ctx, e.Store, account, creatures, secret); err != nil {
			return false, nil, err
		}
		if err := e.saveFlip(ctx, cell8, oldScores); err != nil {
			return false, nil, err
		}
		return true, notes, nil
	}

	info.Available = false
	info.AssignedTo = cell8
	if err := state.SaveCreatures(ctx, e.Store, account, creatures, secret); err != nil {
		return false, nil, err
	}
	placed, err := state.LoadPlaced(ctx, e.Store, account, secret)
	if err != nil {
		return false, nil, err
	}
	if placed == nil {
		placed = make(map[string][]int64)
	}
	placed[cell8] = append(placed[cell8], claim.CreatureID)
	if err := state.SavePlaced(ctx, e.Store, account, placed, secret); err != nil {
		return false, nil, err
	}

	sortClaims(claims)
	if err := e.saveClaims(ctx, cell8, claims, oldScores); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// CombatResult tells the attacker what their attempt did.
type CombatResult int

const (
	CombatNoEffect CombatResult = iota
	CombatRemovedWeakest
	CombatFlippedCell
)

// Combat challenges a cell with one of the player's creatures. The
// attacker's creature is never consumed; a failed attempt just does
// nothing.
func (e *Engine) Combat(ctx context.Context, account, secret, cell8 string, creatureID int64) (CombatResult, error) {
	if !model.ValidCell(cell8) || !e.Config.InPlayArea(cell8) {
		return CombatNoEffect, nil
	}

	var (
		result CombatResult
		notes  []note
		err    error
	)
	e.Locks.WithLock2(account, cell8, func() {
		result, notes, err = e.combatLocked(ctx, account, secret, cell8, creatureID)
	})
	if err != nil {
		return CombatNoEffect, err
	}
	e.deliver(ctx, notes)
	if result != CombatNoEffect {
		e.Tiles.Expire(cell8, tiles.StyleControl)
	}
	return result, nil
}

func (e *Engine) combatLocked(ctx context.Context, account, secret, cell8 string, creatureID int64) (CombatResult, []note, error) {
	creatures, err := state.LoadCreatures(ctx, e.Store, account, secret)
	if err != nil {
		return CombatNoEffect, nil, err
	}
	attacker := creatures[creatureID]
	if attacker == nil || attacker.Level < 1 {
		return CombatNoEffect, nil, nil
	}

	claims, err := e.loadClaims(ctx, cell8)
	if err != nil {
		return CombatNoEffect, nil, err
	}
	if len(claims) == 0 {
		return CombatNoEffect, nil, nil
	}
	oldScores := CalculateScores(claims)

	if attacker.Strength > e.claimDefense(claims[0]) {
		notes := e.returnNotes(claims)
		if err := e.saveFlip(ctx, cell8, oldScores); err != nil {
			return CombatNoEffect, nil, err
		}
		return CombatFlippedCell, notes, nil
	}

	weakest := claims[len(claims)-1]
	if attacker.Strength <= e.claimDefense(weakest) {
		return CombatNoEffect, nil, nil
	}

	remaining := claims[:len(claims)-1]
	notes := []note{{account: weakest.Owner, verb: pending.VerbReturn, target: strconv.FormatInt(weakest.CreatureID, 10)}}

	// Knocking out the last creature of a completed pyramid row
	// destabilizes the whole stack.
	if e.collapseBoundary(len(remaining)) {
		notes = append(notes, e.returnNotes(remaining)...)
		if err := e.saveFlip(ctx, cell8, oldScores); err != nil {
			return CombatNoEffect, nil, err
		}
		return CombatFlippedCell, notes, nil
	}

	if err := e.saveClaims(ctx, cell8, remaining, oldScores); err != nil {
		return CombatNoEffect, nil, err
	}
	return CombatRemovedWeakest, notes, nil
}

// FlipArea evicts every creature from a cell and zeroes its scores.
// Used by operators and by account deletion.
func (e *Engine) FlipArea(ctx context.Context, cell8 string) error {
	var (
		notes []note
		err   error
	)
	e.Locks.WithLock(cell8, func() {
		var claims []model.ClaimData
		claims, err = e.loadClaims(ctx, cell8)
		if err != nil || len(claims) == 0 {
			return
		}
		notes = e.returnNotes(claims)
		err = e.saveFlip(ctx, cell8, CalculateScores(claims))
	})
	if err != nil {
		return err
	}
	e.deliver(ctx, notes)
	if len(notes) > 0 {
		e.Tiles.Expire(cell8, tiles.StyleControl)
	}
	return nil
}

// RemoveAccountClaims pulls one account's creatures out of a single
// cell without notifying, used when a player changes team or deletes
// their account. Returns the removed creature ids.
func (e *Engine) RemoveAccountClaims(ctx context.Context, account, cell8 string) ([]int64, error) {
	var (
		removed []int64
		err     error
	)
	e.Locks.WithLock(cell8, func() {
		var claims []model.ClaimData
		claims, err = e.loadClaims(ctx, cell8)
		if err != nil {
			return
		}
		oldScores := CalculateScores(claims)
		kept := claims[:0]
		for _, c := range claims {
			if c.Owner == account {
				removed = append(removed, c.CreatureID)
				continue
			}
			kept = append(kept, c)
		}
		if len(removed) == 0 {
			return
		}
		err = e.saveClaims(ctx, cell8, kept, oldScores)
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		e.Tiles.Expire(cell8, tiles.StyleControl)
	}
	return removed, nil
}

// Info returns the current pyramid without locking; a stale read is
// fine for display.
func (e *Engine) Info(ctx context.Context, cell8 string) (CellInfo, error) {
	claims, err := e.loadClaims(ctx, cell8)
	if err != nil {
		return CellInfo{}, err
	}
	owner := 0
	if raw, err := e.Store.GetPlaceData(ctx, cell8, ownerKey); err == nil && len(raw) > 0 {
		owner, _ = strconv.Atoi(string(raw))
	}
	var score int64
	if raw, err := e.Store.GetPlaceData(ctx, cell8, scoreKey); err == nil && len(raw) > 0 {
		score, _ = strconv.ParseInt(string(raw), 10, 64)
	}
	return CellInfo{Claims: claims, Owner: owner, Score: score}, nil
}

// Leaderboard returns the four team score counters.
func (e *Engine) Leaderboard(ctx context.Context) (map[int]int64, error) {
	out := make(map[int]int64, 4)
	for team := 1; team <= 4; team++ {
		v, err := e.Store.GetGlobalCounter(ctx, TeamScoreKey(team))
		if err != nil {
			return nil, fmt.Errorf("read team %d score: %w", team, err)
		}
		out[team] = v
	}
	return out, nil
}

func (e *Engine) loadClaims(ctx context.Context, cell8 string) ([]model.ClaimData, error) {
	raw, err := e.Store.GetPlaceData(ctx, cell8, claimsKey)
	if err != nil {
		return nil, fmt.Errorf("read claims for %s: %w", cell8, err)
	}
	claims, err := db.DecodeJSON[[]model.ClaimData](raw)
	if err != nil {
		return nil, fmt.Errorf("decode claims for %s: %w", cell8, err)
	}
	return claims, nil
}

// saveClaims persists the new pyramid, updates the owner, and applies
// the score delta to the team counters.
func (e *Engine) saveClaims(ctx context.Context, cell8 string, claims []model.ClaimData, oldScores [5]int64) error {
	sortClaims(claims)
	newScores := CalculateScores(claims)

	raw, err := db.EncodeJSON(claims)
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}
	if err := e.Store.SetPlaceData(ctx, cell8, claimsKey, raw); err != nil {
		return fmt.Errorf("write claims for %s: %w", cell8, err)
	}

	owner := 0
	var total int64
	if len(claims) > 0 {
		owner = claims[0].Team
	}
	for _, s := range newScores {
		total += s
	}
	if err := e.Store.SetPlaceData(ctx, cell8, ownerKey, []byte(strconv.Itoa(owner))); err != nil {
		return fmt.Errorf("write owner for %s: %w", cell8, err)
	}
	if err := e.Store.SetPlaceData(ctx, cell8, scoreKey, []byte(strconv.FormatInt(total, 10))); err != nil {
		return fmt.Errorf("write score for %s: %w", cell8, err)
	}
	return e.applyScoreChange(ctx, oldScores, newScores)
}

func (e *Engine) saveFlip(ctx context.Context, cell8 string, oldScores [5]int64) error {
	return e.saveClaims(ctx, cell8, []model.ClaimData{}, oldScores)
}

func (e *Engine) applyScoreChange(ctx context.Context, oldScores, newScores [5]int64) error {
	for team := 1; team <= 4; team++ {
		delta := newScores[team] - oldScores[team]
		if delta == 0 {
			continue
		}
		if _, err := e.Store.IncrementGlobalCounter(ctx, TeamScoreKey(team), delta); err != nil {
			return fmt.Errorf("apply team %d score delta: %w", team, err)
		}
	}
	return nil
}

// claimDefense derives a defender's defense from its own catalog
// entry and committed level.
func (e *Engine) claimDefense(claim model.ClaimData) int64 {
	cr, ok := e.Catalog.ByID(claim.CreatureID)
	if !ok {
		return 0
	}
	return int64(float64(claim.Level) * cr.Stats.DefensePerLevel)
}

func (e *Engine) collapseBoundary(remaining int) bool {
	switch remaining {
	case 3, 6, 10:
		return true
	case 1:
		return e.Config.CollapseOnSingleDefender
	}
	return false
}

func (e *Engine) returnNotes(claims []model.ClaimData) []note {
	notes := make([]note, 0, len(claims))
	for _, c := range claims {
		notes = append(notes, note{account: c.Owner, verb: pending.VerbReturn, target: strconv.FormatInt(c.CreatureID, 10)})
	}
	return notes
}

func (e *Engine) deliver(ctx context.Context, notes []note) {
	for _, n := range notes {
		if err := e.Pending.Enqueue(ctx, n.account, n.verb, n.target); err != nil {
			e.Log.Error("failed to queue update", "account", n.account, "verb", n.verb, "error", err)
		}
	}
}

func sortClaims(claims []model.ClaimData) {
	sort.SliceStable(claims, func(i, j int) bool { return claims[i].Level > claims[j].Level })
}

func zodiacComplete(claims []model.ClaimData) bool {
	present := make(map[int64]bool, len(claims))
	for _, c := range claims {
		present[c.CreatureID] = true
	}
	for _, id := range catalog.ZodiacIDs {
		if !present[id] {
			return false
		}
	}
	return true
}
