package spawn

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
)

const instanceKey = "creature"

// Populator refills a Cell8 with creature instances when its live
// count drops to the respawn threshold. All work for one cell runs
// under a spawn lock so concurrent triggers never overfill it.
type Populator struct {
	Store   db.Store
	Locks   *keylock.KeyedLock
	Builder *TableBuilder
	Config  *config.GameConfig
	Log     *slog.Logger
}

// SpawnLockKey is the keyed-lock name guarding spawn work for a cell.
func SpawnLockKey(cell8 string) string { return "spawn:" + cell8 }

// Live returns the unexpired instances currently placed in a Cell8.
func (p *Populator) Live(ctx context.Context, cell8 string, now time.Time) ([]model.CreatureInstance, error) {
	records, err := p.Store.GetAreaDataByPrefix(ctx, cell8, instanceKey)
	if err != nil {
		return nil, fmt.Errorf("load instances for %s: %w", cell8, err)
	}
	out := make([]model.CreatureInstance, 0, len(records))
	for _, rec := range records {
		inst, err := db.DecodeJSON[model.CreatureInstance](rec.Value)
		if err != nil {
			p.Log.Warn("dropping unreadable creature instance", "cell", rec.Cell, "error", err)
			continue
		}
		if inst.Expired(now) {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// Populate tops the cell up to CreaturesPerCell8. It is a no-op when
// the cell still holds more than the respawn threshold, when the cell
// is outside the play area, or when nothing can spawn there now.
func (p *Populator) Populate(ctx context.Context, cell8 string, now time.Time) error {
	if !model.ValidCell(cell8) || len(cell8) != model.Cell8Len || !p.Config.InPlayArea(cell8) {
		return nil
	}

	var err error
	p.Locks.WithLock(SpawnLockKey(cell8), func() {
		err = p.populateLocked(ctx, cell8, now)
	})
	return err
}

func (p *Populator) populateLocked(ctx context.Context, cell8 string, now time.Time) error {
	live, err := p.Live(ctx, cell8, now)
	if err != nil {
		return err
	}
	if len(live) > p.Config.CreatureCountToRespawn {
		return nil
	}
	needed := p.Config.CreaturesPerCell8 - len(live)
	if needed <= 0 {
		return nil
	}

	table, facts := p.Builder.Build(cell8, now)
	if len(table) == 0 {
		return nil
	}

	occupied := make(map[string]bool, len(live))
	for _, inst := range live {
		occupied[inst.Cell10] = true
	}
	terrainOf := make(map[string]string, len(facts))
	for _, f := range facts {
		terrainOf[f.Cell10] = f.Terrain
	}

	chosen := p.chooseCells(cell8, occupied, terrainOf, needed)
	if len(chosen) == 0 {
		return nil
	}

	batch := make([]db.AreaRecord, 0, len(chosen))
	for _, cell10 := range chosen {
		inst := p.newInstance(table[rand.IntN(len(table))], cell10, now)
		value, err := db.EncodeJSON(inst)
		if err != nil {
			return fmt.Errorf("encode instance: %w", err)
		}
		batch = append(batch, db.AreaRecord{Cell: cell10, Key: instanceKey, Value: value, Expires: inst.Expiration})
	}
	if err := p.Store.SetAreaDataBatch(ctx, batch); err != nil {
		return fmt.Errorf("write spawn batch for %s: %w", cell8, err)
	}
	p.Log.Debug("populated cell", "cell", cell8, "spawned", len(batch), "live", len(live))
	return nil
}

// chooseCells partitions the free sub-cells in one randomized pass,
// guaranteeing the walkable and other minimums before filling the
// remainder from whatever is left. Fewer free cells than the
// minimums means partial fulfillment, not an error.
func (p *Populator) chooseCells(cell8 string, occupied map[string]bool, terrainOf map[string]string, needed int) []string {
	subCells := model.SubCells10(cell8)
	rand.Shuffle(len(subCells), func(i, j int) {
		subCells[i], subCells[j] = subCells[j], subCells[i]
	})

	chosen := make([]string, 0, needed)
	var spare []string
	walkableTaken, otherTaken := 0, 0
	for _, cell10 := range subCells {
		if occupied[cell10] {
			continue
		}
		switch {
		case Walkable(terrainOf[cell10]) && walkableTaken < p.Config.MinWalkableSpacesOnSpawn:
			chosen = append(chosen, cell10)
			walkableTaken++
		case !Walkable(terrainOf[cell10]) && otherTaken < p.Config.MinOtherSpacesOnSpawn:
			chosen = append(chosen, cell10)
			otherTaken++
		default:
			spare = append(spare, cell10)
		}
	}
	if len(chosen) > needed {
		return chosen[:needed]
	}
	for _, cell10 := range spare {
		if len(chosen) == needed {
			break
		}
		chosen = append(chosen, cell10)
	}
	return chosen
}

func (p *Populator) newInstance(cr *model.Creature, cell10 string, now time.Time) model.CreatureInstance {
	lifespan := p.Config.CreatureDurationMin
	if spread := p.Config.CreatureDurationMax - p.Config.CreatureDurationMin; spread > 0 {
		lifespan += rand.IntN(spread)
	}
	return model.CreatureInstance{
		ID:         cr.ID,
		UID:        uuid.NewString(),
		Name:       cr.Name,
		ActiveGame: model.ChallengeOptions[rand.IntN(len(model.ChallengeOptions))],
		Difficulty: cr.CatchDifficulty,
		Cell10:     cell10,
		Expiration: now.Add(time.Duration(lifespan) * time.Second),
	}
}

// PlacePermanents force-places every permanent creature at one of its
// fixed cells, replacing stale placements. Run at startup and on a
// slow timer.
func (p *Populator) PlacePermanents(ctx context.Context, now time.Time) error {
	for _, cr := range p.Builder.Catalog.Permanents() {
		if len(cr.SpecificSpawns) == 0 {
			continue
		}
		alive := false
		for _, cell10 := range cr.SpecificSpawns {
			raw, err := p.Store.GetAreaData(ctx, cell10, instanceKey)
			if err != nil {
				return fmt.Errorf("check permanent %d at %s: %w", cr.ID, cell10, err)
			}
			if len(raw) == 0 {
				continue
			}
			inst, err := db.DecodeJSON[model.CreatureInstance](raw)
			if err == nil && inst.ID == cr.ID && !inst.Expired(now) {
				alive = true
				break
			}
		}
		if alive {
			continue
		}

		cell10 := cr.SpecificSpawns[rand.IntN(len(cr.SpecificSpawns))]
		inst := model.CreatureInstance{
			ID:         cr.ID,
			UID:        uuid.NewString(),
			Name:       cr.Name,
			ActiveGame: model.ChallengeOptions[rand.IntN(len(model.ChallengeOptions))],
			Difficulty: cr.CatchDifficulty,
			Cell10:     cell10,
			Expiration: now.Add(time.Duration(p.Config.CreatureDurationMax) * time.Second),
		}
		value, err := db.EncodeJSON(inst)
		if err != nil {
			return fmt.Errorf("encode permanent instance: %w", err)
		}
		if err := p.Store.SetAreaData(ctx, cell10, instanceKey, value, inst.Expiration); err != nil {
			return fmt.Errorf("place permanent %d at %s: %w", cr.ID, cell10, err)
		}
		p.Log.Debug("placed permanent creature", "creature", cr.Name, "cell", cell10)
	}
	return nil
}

// Catalog exposes the content table behind the builder.
func (p *Populator) Catalog() *catalog.Catalog { return p.Builder.Catalog }
