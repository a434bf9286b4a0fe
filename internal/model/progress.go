package model

// PlayerCreatureInfo is one account's lifetime progress with a single
// catalog creature. Derived stats are recomputed whenever the level
// changes, from the catalog entry's LevelStats.
type PlayerCreatureInfo struct {
	ID    int64 `json:"id"`
	Level int64 `json:"level"`

	// Control mode uses the whole creature at full strength in one
	// place at a time.
	Available  bool   `json:"available"`
	AssignedTo string `json:"assignedTo"`

	TotalCaught             int64 `json:"totalCaught"`
	CurrentAvailable        int64 `json:"currentAvailable"`        // Cover fragments on hand
	CurrentAvailableCompete int64 `json:"currentAvailableCompete"` // Compete fragments on hand
	ToNextLevel             int64 `json:"toNextLevel"`

	HintUnlocked bool `json:"hintUnlocked"`

	Strength int64 `json:"strength"`
	Defense  int64 `json:"defense"`
	Scouting int64 `json:"scouting"`
}

// NewPlayerCreatureInfo returns a zero-progress record for a creature.
func NewPlayerCreatureInfo(id int64) *PlayerCreatureInfo {
	return &PlayerCreatureInfo{ID: id, Available: true, ToNextLevel: 1}
}

// Boost records one freshly caught fragment, leveling up if it was the
// last one needed.
func (p *PlayerCreatureInfo) Boost(stats LevelStats) {
	p.ToNextLevel--
	p.TotalCaught++
	p.CurrentAvailable++
	p.CurrentAvailableCompete++
	if p.ToNextLevel < 1 {
		p.LevelUp(stats)
	}
}

// FastBoost applies many fragments at once, consuming whole levels
// before adjusting the remainder.
func (p *PlayerCreatureInfo) FastBoost(stats LevelStats, fragments int64) {
	p.CurrentAvailable += fragments
	p.CurrentAvailableCompete += fragments
	for fragments >= p.ToNextLevel {
		fragments -= p.ToNextLevel
		p.LevelUp(stats)
	}
	p.ToNextLevel -= fragments
}

// LevelUp advances one level and recomputes derived stats.
func (p *PlayerCreatureInfo) LevelUp(stats LevelStats) {
	p.SetToLevel(stats, p.Level+1)
}

// SetToLevel forces the record to a level and recomputes everything
// derived from it.
func (p *PlayerCreatureInfo) SetToLevel(stats LevelStats, level int64) {
	p.Level = level
	p.Strength = int64(float64(level) * stats.StrengthPerLevel)
	p.Defense = int64(float64(level) * stats.DefensePerLevel)
	p.Scouting = int64(float64(level) * stats.ScoutingPerLevel)
	p.ToNextLevel = int64(float64(level)*stats.MultiplierPerLevel) + stats.AddedPerLevel*level
	if p.ToNextLevel < 1 {
		p.ToNextLevel = 1
	}
}

// ScoutingForFragments computes the scouting stat a hypothetical
// record would have after absorbing the given fragment count. Compete
// and Cover derive disc radii this way without touching stored data.
func ScoutingForFragments(stats LevelStats, fragments int64) int64 {
	scratch := NewPlayerCreatureInfo(0)
	scratch.FastBoost(stats, fragments)
	return scratch.Scouting
}
