package spawn

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/praxisgo/collector/internal/model"
)

// Wanders reports whether a wandering creature is present in a cell
// right now. The answer is derived, not stored: the day count divided
// by the creature's move interval gives an epoch that stays constant
// for the whole interval, and cell, epoch and creature id seed a
// deterministic generator. Every server answers the same for the same
// inputs, and the answer only changes when the epoch advances.
func Wanders(cell string, cr *model.Creature, now time.Time) bool {
	if cr.WanderOdds <= 0 {
		return false
	}
	interval := int64(cr.WandersAfterDays)
	if interval <= 0 {
		interval = 1
	}
	epoch := (now.Unix() / 86400) / interval

	h := fnv.New64a()
	h.Write([]byte(cell))
	seed := h.Sum64() ^ uint64(epoch) ^ uint64(cr.ID)

	rng := rand.New(rand.NewPCG(seed, seed))
	return rng.IntN(cr.WanderOdds) <= 1
}
