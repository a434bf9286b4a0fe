package model

import "time"

// Account is the core player record. Created on first login, touched
// by nearly every operation.
type Account struct {
	Name               string      `json:"name"`
	Team               int         `json:"team"`
	ProxyPlayPoint     *ProxyPoint `json:"proxyPlayPoint,omitempty"`
	Currencies         Currencies  `json:"currencies"`
	TotalGrants        int64       `json:"totalGrants"`
	DateCreated        time.Time   `json:"dateCreated"`
	GraduationEligible bool        `json:"graduationEligible"`
	LastAudit          time.Time   `json:"lastAudit"`
}

// NewAccount returns a fresh account record for a player name.
func NewAccount(name string, now time.Time) *Account {
	return &Account{
		Name:        name,
		DateCreated: now,
		Currencies:  Currencies{ProxyPlayTokens: 1},
	}
}

// ProxyPoint is an alternate play location a player set with a token.
type ProxyPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Currencies holds every token balance an account can carry.
type Currencies struct {
	BaseCurrency    int64 `json:"baseCurrency"`
	ProxyPlayTokens int64 `json:"proxyPlayTokens"`
	TeamSwapTokens  int64 `json:"teamSwapTokens"`
	VortexTokens    int64 `json:"vortexTokens"`
}

// UpdateCommand is one queued asynchronous notification for an
// account, processed the next time that account loads.
type UpdateCommand struct {
	Verb   string `json:"verb"`
	Target string `json:"target"`
}

// ImprovementTask is one idle-progress slot a player can assign a
// creature to. Accrued seconds convert to rewards at TimePerResult.
type ImprovementTask struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TimePerResult int64     `json:"timePerResult"` // seconds
	Accrued       int64     `json:"accrued"`
	Assigned      int64     `json:"assigned"` // creature id, 0 = idle
	LastCheck     time.Time `json:"lastCheck"`
	Desc          string    `json:"desc"`
}

// DefaultImprovementTasks returns the task slots every account starts
// with.
func DefaultImprovementTasks() map[string]*ImprovementTask {
	tasks := []*ImprovementTask{
		{ID: "clone", Name: "Find Creature", TimePerResult: 60 * 60 * 12, Desc: "Level up assigned creature slowly."},
		{ID: "ppt", Name: "ProxyPlay Token", TimePerResult: 60 * 60 * 24 * 7, Desc: "Choose a different place to explore remotely."},
		{ID: "hint", Name: "Creature Hint", TimePerResult: 60 * 60 * 60 * 24, Desc: "A clue for the next unfound creature."},
		{ID: "tst", Name: "Team Swap Token", TimePerResult: 60 * 60 * 24 * 14, Desc: "Change which team you're part of."},
		{ID: "vortex", Name: "Vortex Token", TimePerResult: 60 * 60 * 24, Desc: "Collect all creature fragments in current map tile and neighbors."},
	}
	out := make(map[string]*ImprovementTask, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out
}
