package model

import (
	"strings"
	"time"
)

// LevelStats defines how one catalog creature's numbers scale.
type LevelStats struct {
	StrengthPerLevel   float64 `json:"strengthPerLevel"`
	DefensePerLevel    float64 `json:"defensePerLevel"`
	ScoutingPerLevel   float64 `json:"scoutingPerLevel"`
	AddedPerLevel      int64   `json:"addedPerLevel"`
	MultiplierPerLevel float64 `json:"multiplierPerLevel"`
}

// TimeWindow is a daily spawn window in shifted local time. Windows
// crossing midnight need two entries.
type TimeWindow struct {
	Start string `json:"start"` // "15:04"
	End   string `json:"end"`
}

// DateWindow is a yearly spawn window, compared by day-of-year.
type DateWindow struct {
	Start string `json:"start"` // "01-02" month-day
	End   string `json:"end"`
}

// RegionalForm swaps a creature for a region-specific variant when it
// is committed inside any of the listed cell prefixes.
type RegionalForm struct {
	CellPrefixes []string `json:"cellPrefixes"`
	FormID       int64    `json:"formId"`
}

// Creature is one immutable catalog entry. Only AreaSpawns is ever
// mutated at runtime, when a player graduates.
type Creature struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Stats LevelStats `json:"stats"`

	TerrainSpawns  map[string]int64 `json:"terrainSpawns"`
	AreaSpawns     map[string]int64 `json:"areaSpawns"` // "" key spawns everywhere
	PlaceSpawns    map[string]int64 `json:"placeSpawns"`
	SpecificSpawns []string         `json:"specificSpawns"` // Cell10s

	SpawnTimes []TimeWindow `json:"spawnTimes"`
	SpawnDates []DateWindow `json:"spawnDates"`

	WanderOdds         int   `json:"wanderOdds"` // 1-in-N per cell per epoch, 0 = never wanders
	WanderSpawnEntries int   `json:"wanderSpawnEntries"`
	WandersAfterDays   int   `json:"wandersAfterDays"`
	EliteID            int64 `json:"eliteId"` // granted on minigame completion, 0 = none

	IsWild         bool `json:"isWild"`
	IsHidden       bool `json:"isHidden"`
	IsPermanent    bool `json:"isPermanent"`
	PassportReward bool `json:"passportReward"`

	CatchDifficulty int `json:"catchDifficulty"`

	RegionalForms []RegionalForm `json:"regionalForms,omitempty"`

	FlavorText string `json:"flavorText,omitempty"`
	HintText   string `json:"hintText,omitempty"`
}

// TierRating is a rough one-number strength estimate: 5 stat points
// per level equals one tier. Used for shop pricing.
func (c *Creature) TierRating() int {
	return int(c.Stats.StrengthPerLevel+c.Stats.DefensePerLevel+c.Stats.ScoutingPerLevel) / 5
}

// CanSpawnAt checks the creature's time and date windows against an
// already-shifted local time. Empty windows always pass.
func (c *Creature) CanSpawnAt(t time.Time) bool {
	if len(c.SpawnTimes) > 0 {
		hm := t.Format("15:04")
		ok := false
		for _, w := range c.SpawnTimes {
			if w.Start <= hm && hm <= w.End {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(c.SpawnDates) > 0 {
		doy := t.YearDay()
		ok := false
		for _, w := range c.SpawnDates {
			if dayOfYear(w.Start) <= doy && doy <= dayOfYear(w.End) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// RegionalFormFor returns the variant id for a cell, or 0 when the
// creature has no form there.
func (c *Creature) RegionalFormFor(cell string) int64 {
	for _, f := range c.RegionalForms {
		for _, p := range f.CellPrefixes {
			if strings.HasPrefix(cell, p) {
				return f.FormID
			}
		}
	}
	return 0
}

func dayOfYear(monthDay string) int {
	t, err := time.Parse("01-02", monthDay)
	if err != nil {
		return 0
	}
	return t.YearDay()
}
