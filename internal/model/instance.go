package model

import "time"

// Minigame challenge identifiers a spawned creature can carry.
var ChallengeOptions = []string{"A", "B", "C", "D", "E"}

// CreatureInstance is one live spawn on the map, pinned to a single
// Cell10 until it expires or gets caught.
type CreatureInstance struct {
	ID         int64     `json:"id"`
	UID        string    `json:"uid"`
	Name       string    `json:"name"`
	ActiveGame string    `json:"activeGame"`
	Difficulty int       `json:"difficulty"`
	Cell10     string    `json:"cell10"`
	Expiration time.Time `json:"expiration"`
}

// Expired reports whether the instance should no longer be served.
func (c *CreatureInstance) Expired(now time.Time) bool {
	return !c.Expiration.After(now)
}
