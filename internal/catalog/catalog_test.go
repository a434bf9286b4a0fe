package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisgo/collector/internal/model"
)

func TestDefaultCatalogIndexes(t *testing.T) {
	c := Default()

	starter, ok := c.ByID(StarterID)
	require.True(t, ok)
	assert.Equal(t, "Meadow Strider", starter.Name)

	// Weight 4 on trail means four entries in the trail table.
	trail := c.TerrainTable("trail")
	count := 0
	for _, cr := range trail {
		if cr.ID == 2 {
			count++
		}
	}
	assert.Equal(t, 4, count)

	// The global area table carries every "" entry.
	global := c.AreaTables()[""]
	assert.NotEmpty(t, global)
}

func TestHiddenAndTameCreaturesStayOutOfSpawnIndexes(t *testing.T) {
	c := New([]*model.Creature{
		{ID: 1, Name: "wild", IsWild: true, TerrainSpawns: map[string]int64{"park": 1}},
		{ID: 2, Name: "tame", IsWild: false, TerrainSpawns: map[string]int64{"park": 5}},
		{ID: 3, Name: "hidden", IsWild: true, IsHidden: true, TerrainSpawns: map[string]int64{"park": 5}},
	})

	park := c.TerrainTable("park")
	require.Len(t, park, 1)
	assert.Equal(t, int64(1), park[0].ID)
}

func TestPermanentsAndWanderers(t *testing.T) {
	c := Default()

	perms := c.Permanents()
	require.NotEmpty(t, perms)
	for _, p := range perms {
		assert.NotEmpty(t, p.SpecificSpawns, "permanent creature needs fixed cells")
	}

	for _, w := range c.Wanderers() {
		assert.Positive(t, w.WanderOdds)
		assert.Positive(t, w.WanderSpawnEntries)
	}
}

func TestZodiacSetShape(t *testing.T) {
	c := Default()

	require.Len(t, ZodiacIDs, 13)
	for _, id := range ZodiacIDs {
		cr, ok := c.ByID(id)
		require.True(t, ok, "zodiac member %d missing", id)
		assert.Len(t, cr.SpawnDates, 1)
	}

	reward, ok := c.ByID(ZodiacRewardID)
	require.True(t, ok)
	assert.True(t, reward.IsHidden)
}

func TestGraduateAddsAreaEntryAndBumpsVersion(t *testing.T) {
	c := Default()
	before := c.Version()

	require.NoError(t, c.Graduate(2, "86HTGG"))
	assert.Equal(t, before+1, c.Version())

	cr, _ := c.ByID(2)
	assert.Equal(t, int64(1), cr.AreaSpawns["86HTGG"])

	found := false
	for _, entry := range c.AreaTables()["86HTGG"] {
		if entry.ID == 2 {
			found = true
		}
	}
	assert.True(t, found)

	// A second graduation stacks weight.
	require.NoError(t, c.Graduate(2, "86HTGG"))
	cr, _ = c.ByID(2)
	assert.Equal(t, int64(2), cr.AreaSpawns["86HTGG"])
}

func TestSnapshotPairsTableWithVersion(t *testing.T) {
	c := Default()

	raw, version, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, c.Version(), version)

	var creatures []*model.Creature
	require.NoError(t, json.Unmarshal(raw, &creatures))
	assert.Len(t, creatures, len(c.All()))

	require.NoError(t, c.Graduate(2, "86HTGG"))
	_, after, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, version+1, after)
}

func TestSnapshotSafeDuringGraduate(t *testing.T) {
	c := Default()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = c.Graduate(2, "86HTGG")
		}
	}()
	for i := 0; i < 200; i++ {
		_, _, err := c.Snapshot()
		require.NoError(t, err)
	}
	<-done
}

func TestGraduateRejectsBadInput(t *testing.T) {
	c := Default()

	assert.Error(t, c.Graduate(9999, "86HTGG"))
	assert.Error(t, c.Graduate(2, "not-a-cell"))
	assert.Error(t, c.Graduate(2, ""), "global spawns cannot be player-added")
}
