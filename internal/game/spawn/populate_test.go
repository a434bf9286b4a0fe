package spawn

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
	"github.com/praxisgo/collector/internal/places"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mixedFacts marks the first walkableCount sub-cells as trail and the
// rest as park.
func mixedFacts(cell8 string, walkableCount int) []places.CellFact {
	subs := model.SubCells10(cell8)
	out := make([]places.CellFact, len(subs))
	for i, s := range subs {
		terrain := "park"
		if i < walkableCount {
			terrain = "trail"
		}
		out[i] = places.CellFact{Cell10: s, Terrain: terrain}
	}
	return out
}

func testPopulator(t *testing.T, cfg *config.GameConfig, facts []places.CellFact) (*Populator, *db.Memory) {
	t.Helper()
	cr := wildCreature(1, "park dweller")
	cr.TerrainSpawns = map[string]int64{"park": 1, "trail": 1}
	store := db.NewMemory()
	p := &Populator{
		Store: store,
		Locks: keylock.New(),
		Builder: &TableBuilder{
			Catalog: catalog.New([]*model.Creature{cr}),
			Places: &places.Static{
				ByCell8: map[string][]places.Place{testCell8: {{Style: "park"}, {Style: "trail"}}},
				Terrain: map[string][]places.CellFact{testCell8: facts},
			},
			Config: cfg,
		},
		Config: cfg,
		Log:    discardLog(),
	}
	return p, store
}

func TestPopulateFillsToCapacity(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	now := time.Now().UTC()

	p, _ := testPopulator(t, cfg, mixedFacts(testCell8, 40))
	require.NoError(t, p.Populate(ctx, testCell8, now))

	live, err := p.Live(ctx, testCell8, now)
	require.NoError(t, err)
	assert.Len(t, live, cfg.CreaturesPerCell8)

	walkable := 0
	seen := make(map[string]bool)
	for _, inst := range live {
		assert.False(t, seen[inst.Cell10], "two instances on one sub-cell")
		seen[inst.Cell10] = true
		assert.Contains(t, model.ChallengeOptions, inst.ActiveGame)
		assert.True(t, inst.Expiration.After(now.Add(time.Duration(cfg.CreatureDurationMin-1)*time.Second)))
		assert.False(t, inst.Expiration.After(now.Add(time.Duration(cfg.CreatureDurationMax)*time.Second)))
	}
	for _, f := range mixedFacts(testCell8, 40) {
		if seen[f.Cell10] && Walkable(f.Terrain) {
			walkable++
		}
	}
	assert.GreaterOrEqual(t, walkable, cfg.MinWalkableSpacesOnSpawn)
	assert.GreaterOrEqual(t, len(live)-walkable, cfg.MinOtherSpacesOnSpawn)
}

func TestPopulateSkipsWhenAboveThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	now := time.Now().UTC()

	p, _ := testPopulator(t, cfg, mixedFacts(testCell8, 40))
	require.NoError(t, p.Populate(ctx, testCell8, now))
	before, err := p.Live(ctx, testCell8, now)
	require.NoError(t, err)

	// A full cell is far above the respawn threshold; nothing new may
	// appear.
	require.NoError(t, p.Populate(ctx, testCell8, now))
	after, err := p.Live(ctx, testCell8, now)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestPopulatePartialWalkableFulfillment(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MinWalkableSpacesOnSpawn = 6
	now := time.Now().UTC()

	// Only two walkable sub-cells exist in the whole cell.
	p, _ := testPopulator(t, cfg, mixedFacts(testCell8, 2))
	require.NoError(t, p.Populate(ctx, testCell8, now))

	live, err := p.Live(ctx, testCell8, now)
	require.NoError(t, err)
	assert.Len(t, live, cfg.CreaturesPerCell8, "shortfall in one bucket fills from the other")
}

func TestPopulateOutsidePlayAreaIsNoop(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.PlayAreas = []string{"87HT"}

	p, _ := testPopulator(t, cfg, mixedFacts(testCell8, 40))
	require.NoError(t, p.Populate(ctx, testCell8, time.Now().UTC()))

	live, err := p.Live(ctx, testCell8, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestPopulateConcurrentCallersNeverOverfill(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	now := time.Now().UTC()

	p, _ := testPopulator(t, cfg, mixedFacts(testCell8, 40))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Populate(ctx, testCell8, now))
		}()
	}
	wg.Wait()

	live, err := p.Live(ctx, testCell8, now)
	require.NoError(t, err)
	assert.Len(t, live, cfg.CreaturesPerCell8)
}

func TestPlacePermanents(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	now := time.Now().UTC()

	perm := wildCreature(12, "granite warden")
	perm.IsPermanent = true
	perm.SpecificSpawns = []string{testCell8 + "22", testCell8 + "23"}

	store := db.NewMemory()
	p := &Populator{
		Store:   store,
		Locks:   keylock.New(),
		Builder: &TableBuilder{Catalog: catalog.New([]*model.Creature{perm}), Places: &places.Static{}, Config: cfg},
		Config:  cfg,
		Log:     discardLog(),
	}

	require.NoError(t, p.PlacePermanents(ctx, now))

	placed := 0
	var uid string
	for _, cell10 := range perm.SpecificSpawns {
		raw, err := store.GetAreaData(ctx, cell10, "creature")
		require.NoError(t, err)
		if len(raw) == 0 {
			continue
		}
		inst, err := db.DecodeJSON[model.CreatureInstance](raw)
		require.NoError(t, err)
		assert.Equal(t, int64(12), inst.ID)
		uid = inst.UID
		placed++
	}
	assert.Equal(t, 1, placed)

	// A live placement is left alone on the next pass.
	require.NoError(t, p.PlacePermanents(ctx, now))
	for _, cell10 := range perm.SpecificSpawns {
		raw, err := store.GetAreaData(ctx, cell10, "creature")
		require.NoError(t, err)
		if len(raw) == 0 {
			continue
		}
		inst, err := db.DecodeJSON[model.CreatureInstance](raw)
		require.NoError(t, err)
		assert.Equal(t, uid, inst.UID)
	}
}
