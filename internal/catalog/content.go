package catalog

import "github.com/praxisgo/collector/internal/model"

// StarterID is the creature every new account begins with.
const StarterID = 1

// ZodiacIDs are the thirteen creatures that, gathered as distinct
// occupants of one Control pyramid, complete the zodiac set. Each
// spawns during its own slice of the year.
var ZodiacIDs = []int64{40, 41, 42, 43, 44, 45, 46, 47, 48, 49, 50, 51, 52}

// ZodiacRewardID and ZodiacRewardFragments define the grant every
// occupant's owner receives when the set completes.
const (
	ZodiacRewardID        = 53
	ZodiacRewardFragments = 10
)

// Default returns the built-in creature content table.
func Default() *Catalog {
	return New(defaultCreatures())
}

func defaultCreatures() []*model.Creature {
	list := []*model.Creature{
		{
			ID:    StarterID,
			Name:  "Meadow Strider",
			Stats: model.LevelStats{StrengthPerLevel: 1.5, DefensePerLevel: 1.5, ScoutingPerLevel: 2, AddedPerLevel: 1, MultiplierPerLevel: 2},
			AreaSpawns: map[string]int64{
				"": 20, // everywhere
			},
			TerrainSpawns: map[string]int64{"park": 2},
			IsWild:        true,
			FlavorText:    "Follows anyone holding a sandwich.",
			HintText:      "Common, found nearly everywhere.",
		},
		{
			ID:            2,
			Name:          "Trail Hopper",
			Stats:         model.LevelStats{StrengthPerLevel: 2, DefensePerLevel: 1.5, ScoutingPerLevel: 1.5, AddedPerLevel: 1, MultiplierPerLevel: 2.4},
			TerrainSpawns: map[string]int64{"trail": 4, "tertiary": 2},
			WanderOdds:    120, WanderSpawnEntries: 2, WandersAfterDays: 7,
			EliteID:    14,
			IsWild:     true,
			FlavorText: "Refuses to walk on pavement wider than two lanes.",
			HintText:   "Keeps to trails and back roads.",
		},
		{
			ID:            3,
			Name:          "Pond Lurker",
			Stats:         model.LevelStats{StrengthPerLevel: 3, DefensePerLevel: 3, ScoutingPerLevel: 4, AddedPerLevel: 2, MultiplierPerLevel: 1.5},
			TerrainSpawns: map[string]int64{"water": 3, "wetlands": 2},
			WanderOdds:    160, WanderSpawnEntries: 1, WandersAfterDays: 7,
			IsWild:   true,
			HintText: "Anywhere the ground squishes.",
		},
		{
			ID:            4,
			Name:          "Harvest Wisp",
			Stats:         model.LevelStats{StrengthPerLevel: 1.5, DefensePerLevel: 2, ScoutingPerLevel: 1.5, AddedPerLevel: 2, MultiplierPerLevel: 1.9},
			TerrainSpawns: map[string]int64{"park": 3, "cemetery": 2},
			SpawnDates:    []model.DateWindow{{Start: "09-15", End: "11-30"}},
			IsWild:        true,
			HintText:      "Only seen in the fall.",
		},
		{
			ID:         5,
			Name:       "Night Moth",
			Stats:      model.LevelStats{StrengthPerLevel: 1.5, DefensePerLevel: 1.5, ScoutingPerLevel: 2, AddedPerLevel: 1, MultiplierPerLevel: 2},
			AreaSpawns: map[string]int64{"": 1},
			SpawnTimes: []model.TimeWindow{{Start: "21:00", End: "23:59"}, {Start: "00:00", End: "05:00"}},
			IsWild:     true,
			HintText:   "Comes out after dark, anywhere.",
		},
		{
			ID:          6,
			Name:        "Corner Sentinel",
			Stats:       model.LevelStats{StrengthPerLevel: 4, DefensePerLevel: 4, ScoutingPerLevel: 2, AddedPerLevel: 3, MultiplierPerLevel: 2.8},
			PlaceSpawns: map[string]int64{"Main Street": 2, "High Street": 2},
			IsWild:      true,
			HintText:    "Watches the busiest street in town.",
		},
		{
			ID:         7,
			Name:       "Lake Serpent",
			Stats:      model.LevelStats{StrengthPerLevel: 6, DefensePerLevel: 6, ScoutingPerLevel: 3, AddedPerLevel: 2, MultiplierPerLevel: 1.8},
			AreaSpawns: map[string]int64{"86HW": 3, "86JW": 3},
			WanderOdds: 300, WanderSpawnEntries: 1, WandersAfterDays: 14,
			IsWild:         true,
			PassportReward: true,
			HintText:       "Reported by sailors along the north coast.",
		},
		{
			ID:            8,
			Name:          "Dune Racer",
			Stats:         model.LevelStats{StrengthPerLevel: 5, DefensePerLevel: 4, ScoutingPerLevel: 1, AddedPerLevel: 1, MultiplierPerLevel: 2.6},
			TerrainSpawns: map[string]int64{"beach": 5},
			IsWild:        true,
			HintText:      "Sprints where sand meets water.",
		},
		{
			ID:            9,
			Name:          "Old Growth Shade",
			Stats:         model.LevelStats{StrengthPerLevel: 3.5, DefensePerLevel: 8, ScoutingPerLevel: 3.5, AddedPerLevel: 1, MultiplierPerLevel: 1.1},
			TerrainSpawns: map[string]int64{"natureReserve": 3},
			WanderOdds:    200, WanderSpawnEntries: 2, WandersAfterDays: 7,
			IsWild:   true,
			HintText: "Deep in protected woods.",
		},
		{
			ID:            10,
			Name:          "Cavern Bat",
			Stats:         model.LevelStats{StrengthPerLevel: 2.4, DefensePerLevel: 2.6, ScoutingPerLevel: 5, AddedPerLevel: 1, MultiplierPerLevel: 1},
			TerrainSpawns: map[string]int64{"historical": 2, "cemetery": 1},
			SpawnTimes:    []model.TimeWindow{{Start: "19:00", End: "23:59"}, {Start: "00:00", End: "06:00"}},
			RegionalForms: []model.RegionalForm{
				{CellPrefixes: []string{"86GQ", "86HQ", "86HR"}, FormID: 11},
			},
			IsWild:   true,
			HintText: "Old stones at night.",
		},
		{
			ID:         11,
			Name:       "Twin Cavern Bat",
			Stats:      model.LevelStats{StrengthPerLevel: 4, DefensePerLevel: 3.5, ScoutingPerLevel: 7.5, AddedPerLevel: 1, MultiplierPerLevel: 1.1},
			IsWild:     false,
			FlavorText: "Two heads, one set of opinions.",
			HintText:   "A Cavern Bat changed by the northwest caves.",
		},
		{
			ID:             12,
			Name:           "Granite Warden",
			Stats:          model.LevelStats{StrengthPerLevel: 5, DefensePerLevel: 8, ScoutingPerLevel: 2, AddedPerLevel: 2, MultiplierPerLevel: 1.1},
			SpecificSpawns: []string{"86HTGG2C22", "86HTGG2C23", "86HTGG2C32"},
			IsPermanent:    true,
			IsWild:         false,
			HintText:       "Never leaves its plaza.",
		},
		{
			ID:            13,
			Name:          "Gallery Imp",
			Stats:         model.LevelStats{StrengthPerLevel: 3, DefensePerLevel: 2.5, ScoutingPerLevel: 4.5, AddedPerLevel: 1, MultiplierPerLevel: 1.33},
			TerrainSpawns: map[string]int64{"artsCulture": 3, "tourism": 2, "university": 1},
			IsWild:        true,
			HintText:      "Anywhere people stop to look at things.",
		},
		{
			ID:         14,
			Name:       "Blazed Hopper",
			Stats:      model.LevelStats{StrengthPerLevel: 4, DefensePerLevel: 3, ScoutingPerLevel: 3, AddedPerLevel: 1, MultiplierPerLevel: 1.6},
			IsWild:     false,
			FlavorText: "A Trail Hopper that finally won something.",
		},
		{
			ID:             15,
			Name:           "Archivist Owl",
			Stats:          model.LevelStats{StrengthPerLevel: 2, DefensePerLevel: 6, ScoutingPerLevel: 2, AddedPerLevel: 1, MultiplierPerLevel: 1},
			TerrainSpawns:  map[string]int64{"namedBuilding": 2},
			PassportReward: true,
			IsWild:         true,
			HintText:       "Roosts on buildings with names.",
		},
	}

	list = append(list, zodiacCreatures()...)
	return list
}

// zodiacCreatures builds the thirteen set members plus the hidden
// reward. Each member spawns in a four-week slice of the year so the
// full set takes a year of play (or trading territory) to assemble.
func zodiacCreatures() []*model.Creature {
	names := []string{
		"Sign of Embers", "Sign of Thaw", "Sign of Rain", "Sign of Blossom",
		"Sign of Meadow", "Sign of Sun", "Sign of Thunder", "Sign of Wheat",
		"Sign of Cinder", "Sign of Mist", "Sign of Frost", "Sign of Stillness",
		"Sign of Turning",
	}
	windows := []model.DateWindow{
		{Start: "01-01", End: "01-28"}, {Start: "01-29", End: "02-25"},
		{Start: "02-26", End: "03-25"}, {Start: "03-26", End: "04-22"},
		{Start: "04-23", End: "05-20"}, {Start: "05-21", End: "06-17"},
		{Start: "06-18", End: "07-15"}, {Start: "07-16", End: "08-12"},
		{Start: "08-13", End: "09-09"}, {Start: "09-10", End: "10-07"},
		{Start: "10-08", End: "11-04"}, {Start: "11-05", End: "12-02"},
		{Start: "12-03", End: "12-31"},
	}

	out := make([]*model.Creature, 0, len(ZodiacIDs)+1)
	for i, id := range ZodiacIDs {
		out = append(out, &model.Creature{
			ID:         id,
			Name:       names[i],
			Stats:      model.LevelStats{StrengthPerLevel: 3, DefensePerLevel: 3, ScoutingPerLevel: 4, AddedPerLevel: 2, MultiplierPerLevel: 1.2},
			AreaSpawns: map[string]int64{"": 1},
			SpawnDates: []model.DateWindow{windows[i]},
			IsWild:     true,
			HintText:   "One of thirteen. Appears in its own season.",
		})
	}
	out = append(out, &model.Creature{
		ID:         ZodiacRewardID,
		Name:       "Ourovore",
		Stats:      model.LevelStats{StrengthPerLevel: 8, DefensePerLevel: 5, ScoutingPerLevel: 2, AddedPerLevel: 1, MultiplierPerLevel: 1.5},
		IsWild:     false,
		IsHidden:   true,
		FlavorText: "Eats calendars.",
	})
	return out
}
