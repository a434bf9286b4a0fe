// Package catalog holds the creature content table and the spawn
// indexes derived from it. The catalog is immutable at runtime except
// for area spawn additions made when a player graduates.
package catalog

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/praxisgo/collector/internal/model"
)

// Catalog indexes creatures by the ways the spawn builder looks them
// up. Weighted lists are pre-expanded: a creature with weight 3 in a
// terrain appears three times in that terrain's list, so a uniform
// draw over the list is a weighted draw.
type Catalog struct {
	mu sync.RWMutex

	creatures []*model.Creature
	byID      map[int64]*model.Creature

	terrain map[string][]*model.Creature
	area    map[string][]*model.Creature
	place   map[string][]*model.Creature

	wanderers  []*model.Creature
	permanents []*model.Creature

	version int64
}

// New builds a catalog from a creature list. Only wild, non-hidden
// creatures enter the spawn indexes; permanents and wanderers are
// tracked regardless of visibility.
func New(creatures []*model.Creature) *Catalog {
	c := &Catalog{
		creatures: creatures,
		byID:      make(map[int64]*model.Creature, len(creatures)),
		terrain:   make(map[string][]*model.Creature),
		area:      make(map[string][]*model.Creature),
		place:     make(map[string][]*model.Creature),
		version:   1,
	}
	for _, cr := range creatures {
		c.byID[cr.ID] = cr
		if cr.IsPermanent {
			c.permanents = append(c.permanents, cr)
		}
		if cr.WanderOdds > 0 && cr.WanderSpawnEntries > 0 {
			c.wanderers = append(c.wanderers, cr)
		}
		if !cr.IsWild || cr.IsHidden {
			continue
		}
		for terrain, weight := range cr.TerrainSpawns {
			c.terrain[terrain] = appendRepeated(c.terrain[terrain], cr, weight)
		}
		for area, weight := range cr.AreaSpawns {
			c.area[area] = appendRepeated(c.area[area], cr, weight)
		}
		for place, weight := range cr.PlaceSpawns {
			c.place[place] = appendRepeated(c.place[place], cr, weight)
		}
	}
	return c
}

func appendRepeated(list []*model.Creature, cr *model.Creature, weight int64) []*model.Creature {
	for i := int64(0); i < weight; i++ {
		list = append(list, cr)
	}
	return list
}

// ByID looks a creature up by catalog id.
func (c *Catalog) ByID(id int64) (*model.Creature, bool) {
	cr, ok := c.byID[id]
	return cr, ok
}

// All returns every creature in the catalog.
func (c *Catalog) All() []*model.Creature {
	return c.creatures
}

// Visible returns the creatures a player's collection list may show.
func (c *Catalog) Visible() []*model.Creature {
	out := make([]*model.Creature, 0, len(c.creatures))
	for _, cr := range c.creatures {
		if !cr.IsHidden {
			out = append(out, cr)
		}
	}
	return out
}

// TerrainTable returns the weighted list for one terrain type.
func (c *Catalog) TerrainTable(terrain string) []*model.Creature {
	return c.terrain[terrain]
}

// AreaTables returns every area prefix with its weighted list. The
// caller filters by prefix match against a concrete cell.
func (c *Catalog) AreaTables() map[string][]*model.Creature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]*model.Creature, len(c.area))
	for k, v := range c.area {
		out[k] = v
	}
	return out
}

// PlaceTable returns the weighted list for one named place.
func (c *Catalog) PlaceTable(name string) []*model.Creature {
	return c.place[name]
}

// Wanderers returns the creatures with a wander presence test.
func (c *Catalog) Wanderers() []*model.Creature {
	return c.wanderers
}

// Permanents returns the creatures force-placed at fixed cells.
func (c *Catalog) Permanents() []*model.Creature {
	return c.permanents
}

// Snapshot marshals the full creature table and returns it with the
// matching content version. Both are read under one lock, so a
// concurrent Graduate can neither mutate a creature mid-encode nor
// tear the table apart from its version.
func (c *Catalog) Snapshot() ([]byte, int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, err := json.Marshal(c.creatures)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding creature table: %w", err)
	}
	return raw, c.version, nil
}

// Version is bumped whenever catalog content changes, so clients know
// to re-fetch the creature table.
func (c *Catalog) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Graduate adds one spawn table entry for the chosen creature in the
// given area and bumps the content version. The area must be a valid
// cell code so a player cannot make something spawn globally.
func (c *Catalog) Graduate(creatureID int64, area string) error {
	cr, ok := c.byID[creatureID]
	if !ok {
		return fmt.Errorf("graduate: unknown creature %d", creatureID)
	}
	if !model.ValidCell(area) {
		return fmt.Errorf("graduate: invalid area %q", area)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cr.AreaSpawns == nil {
		cr.AreaSpawns = make(map[string]int64)
	}
	cr.AreaSpawns[area]++
	c.area[area] = append(c.area[area], cr)
	c.version++
	return nil
}
