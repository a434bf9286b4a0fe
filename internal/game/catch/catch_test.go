package catch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/spawn"
	"github.com/praxisgo/collector/internal/game/state"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
	"github.com/praxisgo/collector/internal/places"
)

const (
	testCell8  = "86HTGG2C"
	testCell10 = "86HTGG2C22"
)

func secretFor(account string) string { return "pw-" + account }

func testCatalog() *catalog.Catalog {
	stats := model.LevelStats{StrengthPerLevel: 1, DefensePerLevel: 1, ScoutingPerLevel: 1, AddedPerLevel: 1, MultiplierPerLevel: 1}
	return catalog.New([]*model.Creature{
		{ID: 1, Name: "meadow sprite", IsWild: true, Stats: stats, EliteID: 9},
		{ID: 2, Name: "river sprite", IsWild: true, Stats: stats},
		{ID: 9, Name: "gilded sprite", Stats: stats},
	})
}

// newEngine builds a catch engine whose populator has nothing to
// spawn, so respawns after catching stay empty unless a test wires a
// spawn table itself.
func newEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.DefaultGameServer().Game
	cfg.NestsEnabled = false
	store := db.NewMemory()
	locks := keylock.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := testCatalog()
	return &Engine{
		Store:   store,
		Locks:   locks,
		Catalog: cat,
		Config:  &cfg,
		Populator: &spawn.Populator{
			Store:   store,
			Locks:   locks,
			Builder: &spawn.TableBuilder{Catalog: cat, Places: &places.Static{}, Config: &cfg},
			Config:  &cfg,
			Log:     log,
		},
		Log: log,
	}
}

func seedPlayer(t *testing.T, e *Engine, account string) {
	t.Helper()
	ctx := context.Background()
	acct := model.NewAccount(account, time.Now().UTC())
	require.NoError(t, state.SaveAccount(ctx, e.Store, acct, secretFor(account)))
}

func seedInstance(t *testing.T, e *Engine, cell10 string, id int64, uid string, now time.Time) {
	t.Helper()
	raw, err := db.EncodeJSON(model.CreatureInstance{
		ID: id, UID: uid, Cell10: cell10, ActiveGame: model.ChallengeOptions[0],
		Expiration: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, e.Store.SetAreaData(context.Background(), cell10, "creature", raw, now.Add(time.Hour)))
}

func playerCreatures(t *testing.T, e *Engine, account string) map[int64]*model.PlayerCreatureInfo {
	t.Helper()
	creatures, err := state.LoadCreatures(context.Background(), e.Store, account, secretFor(account))
	require.NoError(t, err)
	return creatures
}

func TestEnterCatchesNeighborhoodOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	seedPlayer(t, e, "alice")

	hood := model.Neighborhood(testCell10)
	seedInstance(t, e, hood[0], 1, "uid-a", now)
	seedInstance(t, e, hood[1], 2, "uid-b", now)
	// Same Cell8 but not adjacent to the visited square.
	seedInstance(t, e, testCell8+"XX", 1, "uid-far", now)

	res, err := e.Enter(ctx, "alice", secretFor("alice"), testCell10, now)
	require.NoError(t, err)
	require.Len(t, res.Caught, 2)

	creatures := playerCreatures(t, e, "alice")
	require.NotNil(t, creatures[1])
	assert.Equal(t, int64(1), creatures[1].TotalCaught)
	assert.Equal(t, int64(1), creatures[2].TotalCaught)
	assert.Nil(t, creatures[9], "elites only come from minigames")

	// The instances are still in the world, but cannot be caught twice.
	res, err = e.Enter(ctx, "alice", secretFor("alice"), testCell10, now)
	require.NoError(t, err)
	assert.Empty(t, res.Caught)
	assert.Equal(t, int64(1), playerCreatures(t, e, "alice")[1].TotalCaught)
}

func TestEnterCoinGrant(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	seedPlayer(t, e, "alice")

	res, err := e.Enter(ctx, "alice", secretFor("alice"), testCell10, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.CoinsGranted, int64(coinGrantMin))
	assert.LessOrEqual(t, res.CoinsGranted, int64(coinGrantMax))
	assert.Equal(t, int64(1), res.TotalGrants)

	acct, err := state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Equal(t, res.CoinsGranted, acct.Currencies.BaseCurrency)

	// Account-wide lockout: a different cell pays nothing either.
	res, err = e.Enter(ctx, "alice", secretFor("alice"), "86HTGG2FXX", now)
	require.NoError(t, err)
	assert.Zero(t, res.CoinsGranted)
	assert.Equal(t, int64(1), res.TotalGrants)
}

func TestEnterCellBlockOutlivesLockout(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	e.Config.CoinGrantLockoutSeconds = 0
	seedPlayer(t, e, "alice")

	res, err := e.Enter(ctx, "alice", secretFor("alice"), testCell10, now)
	require.NoError(t, err)
	require.NotZero(t, res.CoinsGranted)

	// The account lockout expired instantly, but this cell already
	// paid out today.
	res, err = e.Enter(ctx, "alice", secretFor("alice"), testCell10, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, res.CoinsGranted)

	// A different Cell8 still pays.
	res, err = e.Enter(ctx, "alice", secretFor("alice"), "86HTGG2FXX", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.NotZero(t, res.CoinsGranted)
}

func TestEnterMarksGraduationEligible(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)

	acct := model.NewAccount("alice", now)
	acct.TotalGrants = 9999
	require.NoError(t, state.SaveAccount(ctx, e.Store, acct, secretFor("alice")))

	res, err := e.Enter(ctx, "alice", secretFor("alice"), testCell10, now)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.TotalGrants)

	acct, err = state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.True(t, acct.GraduationEligible)
}

func TestEnterRejectsBadCells(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	e.Config.PlayAreas = []string{"87HT"}
	seedPlayer(t, e, "alice")

	for _, cell := range []string{testCell10, testCell8, "not a cell", ""} {
		res, err := e.Enter(ctx, "alice", secretFor("alice"), cell, now)
		require.NoError(t, err)
		assert.Zero(t, res.TotalGrants, "cell %q", cell)
	}
}

func TestEnterRespawnsDrainedCell(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	seedPlayer(t, e, "alice")

	// Give the populator a real spawn table for this cell.
	wild, _ := e.Catalog.ByID(1)
	wild.TerrainSpawns = map[string]int64{"park": 1}
	facts := make([]places.CellFact, 0, 400)
	for _, s := range model.SubCells10(testCell8) {
		facts = append(facts, places.CellFact{Cell10: s, Terrain: "park"})
	}
	e.Populator.Builder.Places = &places.Static{
		ByCell8: map[string][]places.Place{testCell8: {{Style: "park"}}},
		Terrain: map[string][]places.CellFact{testCell8: facts},
	}

	seedInstance(t, e, testCell10, 1, "uid-a", now)
	_, err := e.Enter(ctx, "alice", secretFor("alice"), testCell10, now)
	require.NoError(t, err)

	live, err := e.Populator.Live(ctx, testCell8, now)
	require.NoError(t, err)
	assert.Len(t, live, e.Config.CreaturesPerCell8)
}

func TestWildFiltersRecentlyCaught(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	seedPlayer(t, e, "alice")

	subs := model.SubCells10(testCell8)
	for i := 0; i < 10; i++ {
		seedInstance(t, e, subs[len(subs)-1-i], 2, fmt.Sprintf("uid-%d", i), now)
	}
	hood := model.Neighborhood(testCell10)
	seedInstance(t, e, hood[0], 1, "uid-caught", now)

	_, err := e.Enter(ctx, "alice", secretFor("alice"), testCell10, now)
	require.NoError(t, err)

	visible, err := e.Wild(ctx, "alice", secretFor("alice"), testCell8, now)
	require.NoError(t, err)
	for _, inst := range visible {
		assert.NotEqual(t, "uid-caught", inst.UID)
	}
	// Another player still sees everything.
	seedPlayer(t, e, "bob")
	visibleBob, err := e.Wild(ctx, "bob", secretFor("bob"), testCell8, now)
	require.NoError(t, err)
	assert.Len(t, visibleBob, len(visible)+1)
}

func TestVortexSweepsNeighborhood(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)

	acct := model.NewAccount("alice", now)
	acct.Currencies.VortexTokens = 2
	require.NoError(t, state.SaveAccount(ctx, e.Store, acct, secretFor("alice")))

	// Scatter more creatures than the respawn threshold across the
	// center cell and a neighboring Cell8.
	subs := model.SubCells10(testCell8)
	neighbor := model.Neighborhood(testCell8)[1]
	total := e.Config.CreatureCountToRespawn + 1
	for i := 0; i < total-1; i++ {
		seedInstance(t, e, subs[i], 1, fmt.Sprintf("uid-%d", i), now)
	}
	seedInstance(t, e, neighbor+"22", 2, "uid-n", now)

	caught, err := e.Vortex(ctx, "alice", secretFor("alice"), testCell8, now)
	require.NoError(t, err)
	assert.Len(t, caught, total)

	acct, err = state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.Currencies.VortexTokens)

	// Nothing left to catch: the second token is not burned.
	caught, err = e.Vortex(ctx, "alice", secretFor("alice"), testCell8, now)
	require.NoError(t, err)
	assert.Empty(t, caught)
	acct, err = state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.Currencies.VortexTokens)
}

func TestVortexKeepsTokenBelowThreshold(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)

	acct := model.NewAccount("alice", now)
	acct.Currencies.VortexTokens = 1
	require.NoError(t, state.SaveAccount(ctx, e.Store, acct, secretFor("alice")))

	// Exactly the threshold is not enough to justify the token.
	subs := model.SubCells10(testCell8)
	for i := 0; i < e.Config.CreatureCountToRespawn; i++ {
		seedInstance(t, e, subs[i], 1, fmt.Sprintf("uid-%d", i), now)
	}

	caught, err := e.Vortex(ctx, "alice", secretFor("alice"), testCell8, now)
	require.NoError(t, err)
	assert.Empty(t, caught)

	// The sweep left no trace: token, creatures, and recently-caught
	// history are all untouched.
	acct, err = state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.Currencies.VortexTokens)
	assert.Empty(t, playerCreatures(t, e, "alice"))

	recent, err := state.LoadRecentlyCaught(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestVortexRequiresToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	seedPlayer(t, e, "alice")
	seedInstance(t, e, testCell10, 1, "uid-a", now)

	caught, err := e.Vortex(ctx, "alice", secretFor("alice"), testCell8, now)
	require.NoError(t, err)
	assert.Empty(t, caught)
	assert.Nil(t, playerCreatures(t, e, "alice")[1])
}

func TestChallengeDoneGrantsElite(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	seedPlayer(t, e, "alice")

	// Not caught yet: no elite.
	done, err := e.ChallengeDone(ctx, "alice", secretFor("alice"), 1)
	require.NoError(t, err)
	assert.False(t, done)

	cr, _ := e.Catalog.ByID(1)
	creatures := map[int64]*model.PlayerCreatureInfo{1: model.NewPlayerCreatureInfo(1)}
	creatures[1].Boost(cr.Stats)
	require.NoError(t, state.SaveCreatures(ctx, e.Store, "alice", creatures, secretFor("alice")))

	done, err = e.ChallengeDone(ctx, "alice", secretFor("alice"), 1)
	require.NoError(t, err)
	assert.True(t, done)

	got := playerCreatures(t, e, "alice")
	require.NotNil(t, got[9])
	assert.Equal(t, int64(1), got[9].Level)

	// A creature with no elite variant is a noop.
	done, err = e.ChallengeDone(ctx, "alice", secretFor("alice"), 2)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCreatureData(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	require.NoError(t, e.Store.SetGlobalData(ctx, "creatureData", []byte(`[{"id":1}]`)))
	require.NoError(t, e.Store.SetGlobalCounter(ctx, "creatureDataVersion", 4))

	raw, version, err := e.CreatureData(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(raw))
	assert.Equal(t, int64(4), version)
}
