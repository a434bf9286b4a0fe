// Package pending is the asynchronous notification queue between
// engines and offline players. When a cell flip evicts a creature or
// a reward lands while its owner is away, the engine enqueues a
// command here; the account engine drains and applies the queue the
// next time the player loads.
package pending

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/model"
)

// Queued command verbs.
const (
	VerbReturn        = "RETURN"        // target: creature id, fragments came back from a Control cell
	VerbReturnCompete = "RETURNCOMPETE" // target: "creatureId|fragments|cell8"
	VerbGraduate      = "GRADUATE"      // account finished the long game
	VerbReset         = "RESET"         // wipe progress, used after graduation
	VerbGrant         = "GRANT"         // target: "catch|id|n", "coins|n", "proxytokens|n", "swaptokens|n"
	VerbAdminGrant    = "ADMINGRANT"    // same payloads as GRANT, operator initiated
)

const updatesKey = "Updates"

// Queue persists per-account command lists under the server's
// internal secret, so a player cannot forge grants by writing their
// own storage.
type Queue struct {
	Store  db.Store
	Locks  *keylock.KeyedLock
	Secret string
	Log    *slog.Logger
}

// Enqueue appends one command to an account's queue. It takes the
// target account's lock itself; callers must not hold any account or
// cell lock when calling, per the global lock order.
func (q *Queue) Enqueue(ctx context.Context, account, verb, target string) error {
	var err error
	q.Locks.WithLock(account, func() {
		err = q.appendLocked(ctx, account, model.UpdateCommand{Verb: verb, Target: target})
	})
	return err
}

// EnqueueLocked appends one command while the caller already holds
// the account's lock.
func (q *Queue) EnqueueLocked(ctx context.Context, account, verb, target string) error {
	return q.appendLocked(ctx, account, model.UpdateCommand{Verb: verb, Target: target})
}

func (q *Queue) appendLocked(ctx context.Context, account string, cmd model.UpdateCommand) error {
	queue, err := q.loadLocked(ctx, account)
	if err != nil {
		return err
	}
	queue = append(queue, cmd)
	value, err := db.EncodeJSON(queue)
	if err != nil {
		return fmt.Errorf("encode update queue: %w", err)
	}
	if err := q.Store.SetSecurePlayerData(ctx, account, updatesKey, value, q.Secret, time.Time{}); err != nil {
		return fmt.Errorf("write update queue for %s: %w", account, err)
	}
	q.Log.Debug("queued update", "account", account, "verb", cmd.Verb, "target", cmd.Target)
	return nil
}

// DrainLocked removes and returns every queued command. The caller
// must hold the account's lock and apply the commands before
// releasing it, so a crash loses at most the in-flight batch once.
func (q *Queue) DrainLocked(ctx context.Context, account string) ([]model.UpdateCommand, error) {
	queue, err := q.loadLocked(ctx, account)
	if err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		return nil, nil
	}
	empty, err := db.EncodeJSON([]model.UpdateCommand{})
	if err != nil {
		return nil, fmt.Errorf("encode update queue: %w", err)
	}
	if err := q.Store.SetSecurePlayerData(ctx, account, updatesKey, empty, q.Secret, time.Time{}); err != nil {
		return nil, fmt.Errorf("clear update queue for %s: %w", account, err)
	}
	return queue, nil
}

func (q *Queue) loadLocked(ctx context.Context, account string) ([]model.UpdateCommand, error) {
	raw, err := q.Store.GetSecurePlayerData(ctx, account, updatesKey, q.Secret)
	if err != nil {
		return nil, fmt.Errorf("read update queue for %s: %w", account, err)
	}
	queue, err := db.DecodeJSON[[]model.UpdateCommand](raw)
	if err != nil {
		return nil, fmt.Errorf("decode update queue for %s: %w", account, err)
	}
	return queue, nil
}
