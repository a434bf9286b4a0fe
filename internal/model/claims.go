package model

// ClaimData is one creature committed to a cell's Control pyramid.
type ClaimData struct {
	Team       int    `json:"team"`
	Owner      string `json:"owner"`
	Level      int64  `json:"level"`
	CreatureID int64  `json:"creatureId"`
	Name       string `json:"creatureName"`
}

// CompeteEntry is the shared state of one contested Cell8 in Compete
// mode. FragmentCounts maps account id to that account's contribution,
// so fragments can be returned when the entry falls. These live in a
// process-wide mirror of storage, so keep them small.
type CompeteEntry struct {
	CreatureID     int64            `json:"creatureId"`
	TeamID         int              `json:"teamId"`
	Cell8          string           `json:"locationCell8"`
	FragmentCounts map[string]int64 `json:"creatureFragmentCounts"`
	TotalFragments int64            `json:"totalFragments"`
	Scouting       int64            `json:"scouting"`
}

// PlayerCompeteEntry is the account-side record of one Compete
// placement, kept so audits and team swaps can find everything a
// player has on the board.
type PlayerCompeteEntry struct {
	CreatureID    int64 `json:"creatureId"`
	FragmentCount int64 `json:"fragmentCount"`
}

// CoverEntry is one solo coverage placement at a Cell10.
type CoverEntry struct {
	CreatureID    int64  `json:"creatureId"`
	FragmentCount int64  `json:"creatureFragmentCount"`
	Cell10        string `json:"locationCell10"`
	Scouting      int64  `json:"scouting"`
}
