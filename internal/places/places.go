// Package places is the boundary to the map's place and terrain data.
// The game only needs two questions answered per Cell8: which styled
// places overlap it, and what terrain each Cell10 inside it carries.
package places

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/praxisgo/collector/internal/model"
)

// DefaultStyle marks map elements with no gameplay meaning; sources
// must not return it from Places.
const DefaultStyle = "unmatched"

// GameplayTerrains is every terrain style that carries gameplay
// meaning, in map-style match order. Seeded draws index into this
// list, so the order is part of the game data and must not change.
var GameplayTerrains = []string{
	"university",
	"retail",
	"tourism",
	"historical",
	"artsCulture",
	"namedBuilding",
	"water",
	"wetland",
	"park",
	"beach",
	"natureReserve",
	"cemetery",
	"trail",
}

// Place is one named or styled map element overlapping a cell.
type Place struct {
	Name  string `json:"name"`
	Style string `json:"style"`
}

// CellFact classifies a single Cell10 by terrain type.
type CellFact struct {
	Cell10  string `json:"cell10"`
	Terrain string `json:"terrain"`
}

// Source answers terrain and place queries for the spawn system.
type Source interface {
	// Places lists gameplay-styled places overlapping a Cell8.
	Places(cell8 string) []Place
	// Facts classifies every mapped Cell10 inside a Cell8. Cells with
	// no mapped terrain are omitted.
	Facts(cell8 string) []CellFact
}

// Static serves place data from fixed in-memory tables, keyed by
// Cell8. Used for tests and for single-region deployments that ship
// their map extract as data.
type Static struct {
	ByCell8 map[string][]Place    `json:"places"`
	Terrain map[string][]CellFact `json:"terrain"`
}

func (s *Static) Places(cell8 string) []Place {
	out := make([]Place, 0, len(s.ByCell8[cell8]))
	for _, p := range s.ByCell8[cell8] {
		if p.Style == DefaultStyle {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Static) Facts(cell8 string) []CellFact {
	return s.Terrain[cell8]
}

// LoadFile reads a map extract into a Static source. The extract is
// the JSON form of the two Static tables, produced by the offline map
// pipeline.
func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map extract %s: %w", path, err)
	}
	var s Static
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing map extract %s: %w", path, err)
	}
	return &s, nil
}

// UniformFacts builds facts assigning one terrain to every Cell10 in
// a Cell8. Convenient for fixtures.
func UniformFacts(cell8, terrain string) []CellFact {
	subs := model.SubCells10(cell8)
	out := make([]CellFact, len(subs))
	for i, s := range subs {
		out[i] = CellFact{Cell10: s, Terrain: terrain}
	}
	return out
}
