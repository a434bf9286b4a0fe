// Package spawn decides which creatures appear where. The table
// builder turns a cell's terrain and place facts into a weighted
// candidate bag, and the populator assigns instances from that bag to
// free sub-cells.
package spawn

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/model"
	"github.com/praxisgo/collector/internal/places"
)

// Terrain styles a creature instance can occupy on foot. Everything
// else counts as "other" for the populator's minimum buckets.
var walkableTerrains = map[string]bool{
	"tertiary": true,
	"trail":    true,
}

// Walkable reports whether a terrain style belongs to the walkable
// spawn bucket.
func Walkable(terrain string) bool { return walkableTerrains[terrain] }

// TableBuilder produces the weighted candidate list for a cell. The
// output list contains repeats: drawing uniformly from it is a
// weighted draw.
type TableBuilder struct {
	Catalog *catalog.Catalog
	Places  places.Source
	Config  *config.GameConfig
}

// NestInfo describes the nest draw for a cell this week. The seeded
// stream is consumed in a fixed order (active check, terrain index,
// size) so diagnostics reproduce the same draws the builder made.
type NestInfo struct {
	Active  bool
	Terrain string
	Size    int
}

// Build returns the candidate bag for a Cell8 at the given UTC time,
// plus the per-sub-cell terrain facts it looked up, which callers
// reuse for placement. An empty bag means nothing can spawn here now.
func (b *TableBuilder) Build(cell8 string, now time.Time) ([]*model.Creature, []places.CellFact) {
	shifted := model.ShiftedTime(cell8, now)
	facts := b.Places.Facts(cell8)
	cellPlaces := b.Places.Places(cell8)

	var table []*model.Creature

	// Terrain weight repeats once per occurrence of that terrain in
	// the cell, so a cell that is mostly park leans toward park
	// spawns.
	terrainCounts := make(map[string]int)
	for _, p := range cellPlaces {
		if p.Style != places.DefaultStyle {
			terrainCounts[p.Style]++
		}
	}
	perTerrain := make(map[string][]*model.Creature, len(terrainCounts))
	for terrain, count := range terrainCounts {
		entries := spawnableNow(b.Catalog.TerrainTable(terrain), shifted)
		perTerrain[terrain] = entries
		for i := 0; i < count; i++ {
			table = append(table, entries...)
		}
	}

	for prefix, entries := range b.Catalog.AreaTables() {
		if strings.HasPrefix(cell8, prefix) {
			table = append(table, spawnableNow(entries, shifted)...)
		}
	}

	for _, p := range cellPlaces {
		if p.Name == "" {
			continue
		}
		table = append(table, spawnableNow(b.Catalog.PlaceTable(p.Name), shifted)...)
	}

	// A nest whose terrain does not occur in this cell adds nothing.
	if nest := b.Nest(cell8, now); nest.Active {
		entries := perTerrain[nest.Terrain]
		for i := 0; i < nest.Size; i++ {
			table = append(table, entries...)
		}
	}

	// Wanderers use true UTC: the presence test already encodes its
	// own notion of time and must agree across cells.
	for _, cr := range b.Catalog.Wanderers() {
		if Wanders(cell8, cr, now) {
			for i := 0; i < cr.WanderSpawnEntries; i++ {
				table = append(table, cr)
			}
		}
	}

	return table, facts
}

// Nest evaluates the weekly nest draw for a cell. Nests are active
// about one week-block in 26 per cell, roughly twice a year, and pile
// extra copies of a single terrain's candidates into the bag. The
// terrain is drawn from the full gameplay list whether or not it
// occurs in this cell.
func (b *TableBuilder) Nest(cell8 string, now time.Time) NestInfo {
	h := fnv.New64a()
	h.Write([]byte(cell8))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed))

	_, week := now.ISOWeek()
	active := rng.IntN(26)+1 == week%26
	terrain := places.GameplayTerrains[rng.IntN(len(places.GameplayTerrains))]
	size := 25 + rng.IntN(200)

	if !b.Config.NestsEnabled || !active {
		return NestInfo{}
	}
	return NestInfo{Active: true, Terrain: terrain, Size: size}
}

// Odds summarizes a cell's bag as per-creature draw probabilities,
// for the spawn-chance diagnostics endpoint.
func (b *TableBuilder) Odds(cell8 string, now time.Time) map[string]float64 {
	table, _ := b.Build(cell8, now)
	if len(table) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, cr := range table {
		counts[cr.Name]++
	}
	odds := make(map[string]float64, len(counts))
	for name, n := range counts {
		odds[name] = float64(n) / float64(len(table))
	}
	return odds
}

func spawnableNow(entries []*model.Creature, shifted time.Time) []*model.Creature {
	out := make([]*model.Creature, 0, len(entries))
	for _, cr := range entries {
		if cr.CanSpawnAt(shifted) {
			out = append(out, cr)
		}
	}
	return out
}
