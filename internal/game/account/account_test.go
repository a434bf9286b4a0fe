package account

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/compete"
	"github.com/praxisgo/collector/internal/game/control"
	"github.com/praxisgo/collector/internal/game/pending"
	"github.com/praxisgo/collector/internal/game/state"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
	"github.com/praxisgo/collector/internal/tiles"
)

const testCell8 = "86HTGG2C"

func secretFor(account string) string { return "pw-" + account }

func testCatalog() *catalog.Catalog {
	stats := model.LevelStats{StrengthPerLevel: 1, DefensePerLevel: 1, ScoutingPerLevel: 1, AddedPerLevel: 1, MultiplierPerLevel: 1}
	return catalog.New([]*model.Creature{
		{ID: catalog.StarterID, Name: "meadow sprite", IsWild: true, Stats: stats},
		{ID: 2, Name: "river sprite", IsWild: true, Stats: stats},
		{ID: 3, Name: "cliff sprite", IsWild: true, Stats: stats},
	})
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.DefaultGameServer().Game
	store := db.NewMemory()
	locks := keylock.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := testCatalog()
	queue := &pending.Queue{Store: store, Locks: locks, Secret: "internal", Log: log}
	cmp := &compete.Engine{
		Store: store, Locks: locks, Catalog: cat, Config: &cfg,
		Tiles: tiles.Noop{}, Pending: queue, Secret: "internal", Log: log,
	}
	require.NoError(t, cmp.Load(context.Background()))
	return &Engine{
		Store:   store,
		Locks:   locks,
		Catalog: cat,
		Config:  &cfg,
		Pending: queue,
		Control: &control.Engine{
			Store: store, Locks: locks, Catalog: cat, Config: &cfg,
			Tiles: tiles.Noop{}, Pending: queue, Log: log,
		},
		Compete: cmp,
		Log:     log,
	}
}

func mustCreate(t *testing.T, e *Engine, account string) {
	t.Helper()
	created, err := e.Create(context.Background(), account, secretFor(account), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, created)
}

func creaturesFor(t *testing.T, e *Engine, account string) map[int64]*model.PlayerCreatureInfo {
	t.Helper()
	creatures, err := state.LoadCreatures(context.Background(), e.Store, account, secretFor(account))
	require.NoError(t, err)
	return creatures
}

func TestCreateStarterAndNameGuard(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	creatures := creaturesFor(t, e, "alice")
	require.NotNil(t, creatures[catalog.StarterID])
	assert.Equal(t, int64(1), creatures[catalog.StarterID].TotalCaught)
	assert.Equal(t, int64(1), creatures[catalog.StarterID].Level)

	tasks, err := state.LoadTasks(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Len(t, tasks, 5)

	viewed, err := e.Tutorials(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, viewed)

	// Second create under any secret is rejected.
	created, err := e.Create(ctx, "alice", "other", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestGetAppliesQueuedCommands(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	// Simulate a committed Control creature coming home.
	creatures := creaturesFor(t, e, "alice")
	info := model.NewPlayerCreatureInfo(2)
	info.Available = false
	info.AssignedTo = testCell8
	creatures[2] = info
	require.NoError(t, state.SaveCreatures(ctx, e.Store, "alice", creatures, secretFor("alice")))
	require.NoError(t, state.SavePlaced(ctx, e.Store, "alice", map[string][]int64{testCell8: {2}}, secretFor("alice")))

	require.NoError(t, e.Pending.Enqueue(ctx, "alice", pending.VerbReturn, "2"))
	require.NoError(t, e.Pending.Enqueue(ctx, "alice", pending.VerbGrant, "coins|25"))
	require.NoError(t, e.Pending.Enqueue(ctx, "alice", pending.VerbGrant, "catch|3|3"))

	view, err := e.Get(ctx, "alice", secretFor("alice"), now)
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.True(t, view.Creatures[2].Available)
	assert.Empty(t, view.Creatures[2].AssignedTo)
	assert.Equal(t, int64(25), view.Account.Currencies.BaseCurrency)
	require.NotNil(t, view.Creatures[3])
	assert.Equal(t, int64(3), view.Creatures[3].TotalCaught)
	assert.Equal(t, int64(2), view.Creatures[3].Level, "three fragments reach level 2")

	placed, err := state.LoadPlaced(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Empty(t, placed)

	// Queue is drained; a second login changes nothing.
	view2, err := e.Get(ctx, "alice", secretFor("alice"), now)
	require.NoError(t, err)
	assert.Equal(t, int64(25), view2.Account.Currencies.BaseCurrency)
	assert.Equal(t, int64(3), view2.Creatures[3].TotalCaught)
}

func TestGetAppliesCompeteReturn(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	creatures := creaturesFor(t, e, "alice")
	info := model.NewPlayerCreatureInfo(2)
	info.TotalCaught = 10
	info.CurrentAvailableCompete = 4
	creatures[2] = info
	require.NoError(t, state.SaveCreatures(ctx, e.Store, "alice", creatures, secretFor("alice")))
	require.NoError(t, state.SaveCompeteInfo(ctx, e.Store, "alice",
		map[string]*model.PlayerCompeteEntry{testCell8: {CreatureID: 2, FragmentCount: 6}}, secretFor("alice")))

	require.NoError(t, e.Pending.Enqueue(ctx, "alice", pending.VerbReturnCompete, "2|6|"+testCell8))

	view, err := e.Get(ctx, "alice", secretFor("alice"), now)
	require.NoError(t, err)
	assert.Equal(t, int64(10), view.Creatures[2].CurrentAvailableCompete)

	competeInfo, err := state.LoadCompeteInfo(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Empty(t, competeInfo)
}

func TestGetCreditsIdleTasks(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	tasks, err := state.LoadTasks(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	tasks["vortex"].Assigned = catalog.StarterID
	tasks["vortex"].LastCheck = now.Add(-49 * time.Hour)
	tasks["clone"].Assigned = catalog.StarterID
	tasks["clone"].LastCheck = now.Add(-13 * time.Hour)
	require.NoError(t, state.SaveTasks(ctx, e.Store, "alice", tasks, secretFor("alice")))

	view, err := e.Get(ctx, "alice", secretFor("alice"), now)
	require.NoError(t, err)

	assert.Equal(t, int64(2), view.Account.Currencies.VortexTokens, "two full days accrued")
	assert.Equal(t, int64(1*3600), view.Tasks["vortex"].Accrued)
	assert.Equal(t, int64(2), view.Creatures[catalog.StarterID].TotalCaught, "clone task caught one more")

	// Unassigned slots never accrue.
	assert.Zero(t, view.Tasks["ppt"].Accrued)
	assert.Equal(t, int64(1), view.Account.Currencies.ProxyPlayTokens)
}

func TestGetAuditClampsPools(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	creatures := creaturesFor(t, e, "alice")
	info := model.NewPlayerCreatureInfo(2)
	info.TotalCaught = 10
	info.CurrentAvailable = 10
	info.CurrentAvailableCompete = 10
	creatures[2] = info
	require.NoError(t, state.SaveCreatures(ctx, e.Store, "alice", creatures, secretFor("alice")))

	// 4 fragments are down on a Cover square, so only 6 may be on hand.
	require.NoError(t, state.SaveCoverEntries(ctx, e.Store, "alice",
		map[string]*model.CoverEntry{testCell8 + "22": {CreatureID: 2, FragmentCount: 4, Cell10: testCell8 + "22"}}, secretFor("alice")))
	require.NoError(t, state.SaveCompeteInfo(ctx, e.Store, "alice",
		map[string]*model.PlayerCompeteEntry{testCell8: {CreatureID: 2, FragmentCount: 7}}, secretFor("alice")))

	view, err := e.Get(ctx, "alice", secretFor("alice"), now)
	require.NoError(t, err)
	assert.Equal(t, int64(6), view.Creatures[2].CurrentAvailable)
	assert.Equal(t, int64(3), view.Creatures[2].CurrentAvailableCompete)

	// Within 24h the audit does not run again.
	view.Creatures[2].CurrentAvailable = 10
	require.NoError(t, state.SaveCreatures(ctx, e.Store, "alice", view.Creatures, secretFor("alice")))
	view, err = e.Get(ctx, "alice", secretFor("alice"), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(10), view.Creatures[2].CurrentAvailable)
}

func TestSetTeamFirstPickFree(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	picked, err := e.SetTeam(ctx, "alice", secretFor("alice"), 3)
	require.NoError(t, err)
	assert.True(t, picked)

	acct, err := state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Equal(t, 3, acct.Team)

	// Out of range teams are rejected.
	for _, team := range []int{0, 5, -1} {
		picked, err = e.SetTeam(ctx, "alice", secretFor("alice"), team)
		require.NoError(t, err)
		assert.False(t, picked)
	}
}

func TestSetTeamSwapWithdrawsFootprint(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	_, err := e.SetTeam(ctx, "alice", secretFor("alice"), 1)
	require.NoError(t, err)

	// No token yet: the swap is refused.
	picked, err := e.SetTeam(ctx, "alice", secretFor("alice"), 2)
	require.NoError(t, err)
	assert.False(t, picked)

	// Put real presence on the board: a Control claim and a Compete
	// entry.
	creatures := creaturesFor(t, e, "alice")
	info := model.NewPlayerCreatureInfo(2)
	cr, _ := e.Catalog.ByID(2)
	info.SetToLevel(cr.Stats, 3)
	info.TotalCaught = 10
	info.CurrentAvailableCompete = 10
	creatures[2] = info
	require.NoError(t, state.SaveCreatures(ctx, e.Store, "alice", creatures, secretFor("alice")))

	committed, err := e.Control.Claim(ctx, "alice", secretFor("alice"), testCell8, 2)
	require.NoError(t, err)
	require.True(t, committed)
	res, err := e.Compete.Place(ctx, "alice", secretFor("alice"), "86HTGG2F", 2, 5)
	require.NoError(t, err)
	require.True(t, res.Applied)

	acct, err := state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	acct.Currencies.TeamSwapTokens = 1
	require.NoError(t, state.SaveAccount(ctx, e.Store, acct, secretFor("alice")))

	picked, err = e.SetTeam(ctx, "alice", secretFor("alice"), 2)
	require.NoError(t, err)
	assert.True(t, picked)

	acct, err = state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.Equal(t, 2, acct.Team)
	assert.Zero(t, acct.Currencies.TeamSwapTokens)

	// The board is clean on both modes.
	cellInfo, err := e.Control.Info(ctx, testCell8)
	require.NoError(t, err)
	assert.Empty(t, cellInfo.Claims)
	_, held := e.Compete.Entry("86HTGG2F")
	assert.False(t, held)

	// And the creature is whole again.
	creatures = creaturesFor(t, e, "alice")
	assert.True(t, creatures[2].Available)
	assert.Empty(t, creatures[2].AssignedTo)
	assert.Equal(t, creatures[2].TotalCaught, creatures[2].CurrentAvailableCompete)
}

func TestSetProxyPlaySpendsToken(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	ok, err := e.SetProxyPlay(ctx, "alice", secretFor("alice"), 40.0, -105.0)
	require.NoError(t, err)
	assert.True(t, ok)

	acct, err := state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	require.NotNil(t, acct.ProxyPlayPoint)
	assert.Equal(t, 40.0, acct.ProxyPlayPoint.Lat)
	assert.Zero(t, acct.Currencies.ProxyPlayTokens)

	// The starter token is gone, no second point.
	ok, err = e.SetProxyPlay(ctx, "alice", secretFor("alice"), 41.0, -106.0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkTutorialIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	require.NoError(t, e.MarkTutorial(ctx, "alice", "first-catch"))
	require.NoError(t, e.MarkTutorial(ctx, "alice", "first-catch"))
	require.NoError(t, e.MarkTutorial(ctx, "alice", "team-pick"))

	viewed, err := e.Tutorials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"first-catch", "team-pick"}, viewed)
}

func TestChangePasswordReencrypts(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	changed, err := e.ChangePassword(ctx, "alice", secretFor("alice"), "new-secret")
	require.NoError(t, err)
	assert.True(t, changed)

	acct, err := state.LoadAccount(ctx, e.Store, "alice", "new-secret")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "alice", acct.Name)

	creatures, err := state.LoadCreatures(ctx, e.Store, "alice", "new-secret")
	require.NoError(t, err)
	assert.NotNil(t, creatures[catalog.StarterID])

	_, err = state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	assert.ErrorIs(t, err, db.ErrBadSecret)
}

func TestDeleteRemovesFootprint(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	_, err := e.SetTeam(ctx, "alice", secretFor("alice"), 1)
	require.NoError(t, err)

	creatures := creaturesFor(t, e, "alice")
	info := model.NewPlayerCreatureInfo(2)
	cr, _ := e.Catalog.ByID(2)
	info.SetToLevel(cr.Stats, 3)
	creatures[2] = info
	require.NoError(t, state.SaveCreatures(ctx, e.Store, "alice", creatures, secretFor("alice")))

	committed, err := e.Control.Claim(ctx, "alice", secretFor("alice"), testCell8, 2)
	require.NoError(t, err)
	require.True(t, committed)

	require.NoError(t, e.Delete(ctx, "alice", secretFor("alice")))

	exists, err := e.Store.HasPlayerData(ctx, "alice", state.KeyAccount)
	require.NoError(t, err)
	assert.False(t, exists)

	cellInfo, err := e.Control.Info(ctx, testCell8)
	require.NoError(t, err)
	assert.Empty(t, cellInfo.Claims)

	// The name is free again.
	created, err := e.Create(ctx, "alice", "fresh", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGraduateResetsCollection(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "alice")

	// Not eligible: refused.
	done, err := e.Graduate(ctx, "alice", secretFor("alice"), 2, testCell8[:4])
	require.NoError(t, err)
	assert.False(t, done)

	creatures := creaturesFor(t, e, "alice")
	info := model.NewPlayerCreatureInfo(2)
	info.TotalCaught = 5
	creatures[2] = info
	require.NoError(t, state.SaveCreatures(ctx, e.Store, "alice", creatures, secretFor("alice")))

	acct, err := state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	acct.GraduationEligible = true
	acct.TotalGrants = GraduateGrantsCount
	require.NoError(t, state.SaveAccount(ctx, e.Store, acct, secretFor("alice")))

	versionBefore, err := e.Store.GetGlobalCounter(ctx, "creatureDataVersion")
	require.NoError(t, err)

	done, err = e.Graduate(ctx, "alice", secretFor("alice"), 2, testCell8[:4])
	require.NoError(t, err)
	assert.True(t, done)

	// The creature now spawns in the chosen area and the published
	// catalog moved forward.
	cr, _ := e.Catalog.ByID(2)
	assert.NotZero(t, cr.AreaSpawns[testCell8[:4]])
	versionAfter, err := e.Store.GetGlobalCounter(ctx, "creatureDataVersion")
	require.NoError(t, err)
	assert.Greater(t, versionAfter, versionBefore)

	// Collection is back to the starter only.
	creatures = creaturesFor(t, e, "alice")
	assert.Len(t, creatures, 1)
	assert.NotNil(t, creatures[catalog.StarterID])

	acct, err = state.LoadAccount(ctx, e.Store, "alice", secretFor("alice"))
	require.NoError(t, err)
	assert.False(t, acct.GraduationEligible)
	assert.Zero(t, acct.TotalGrants)

	raw, err := e.Store.GetPlayerData(ctx, "alice", state.KeyCoverScore)
	require.NoError(t, err)
	assert.Equal(t, "0", string(raw))
}
