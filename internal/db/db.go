package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production Store, backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to PostgreSQL and returns a Store handle.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the database connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Pool returns the underlying pgx pool.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

func scanValue(row pgx.Row) ([]byte, error) {
	var value []byte
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (p *Postgres) GetPlayerData(ctx context.Context, account, key string) ([]byte, error) {
	value, err := scanValue(p.pool.QueryRow(ctx,
		`SELECT value FROM player_data
		 WHERE account = $1 AND data_key = $2 AND (expires IS NULL OR expires > now())`,
		account, key))
	if err != nil {
		return nil, fmt.Errorf("reading player data %s/%s: %w", account, key, err)
	}
	return value, nil
}

func (p *Postgres) SetPlayerData(ctx context.Context, account, key string, value []byte, expires time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO player_data (account, data_key, value, expires)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account, data_key) DO UPDATE SET value = $3, expires = $4`,
		account, key, value, nullTime(expires))
	if err != nil {
		return fmt.Errorf("writing player data %s/%s: %w", account, key, err)
	}
	return nil
}

func (p *Postgres) HasPlayerData(ctx context.Context, account, key string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM player_data
		   WHERE account = $1 AND data_key = $2
		     AND octet_length(value) > 0
		     AND (expires IS NULL OR expires > now()))`,
		account, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking player data %s/%s: %w", account, key, err)
	}
	return exists, nil
}

func (p *Postgres) GetSecurePlayerData(ctx context.Context, account, key, secret string) ([]byte, error) {
	raw, err := p.GetPlayerData(ctx, account, key)
	if err != nil || raw == nil {
		return nil, err
	}
	return decryptValue(raw, secret)
}

func (p *Postgres) SetSecurePlayerData(ctx context.Context, account, key string, value []byte, secret string, expires time.Time) error {
	sealed, err := encryptValue(value, secret)
	if err != nil {
		return err
	}
	return p.SetPlayerData(ctx, account, key, sealed, expires)
}

func (p *Postgres) GetAllPlayerDataByKey(ctx context.Context, key string) ([]PlayerRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT account, value FROM player_data
		 WHERE data_key = $1 AND (expires IS NULL OR expires > now())
		 ORDER BY account`, key)
	if err != nil {
		return nil, fmt.Errorf("reading all player data %q: %w", key, err)
	}
	defer rows.Close()

	var out []PlayerRecord
	for rows.Next() {
		rec := PlayerRecord{Key: key}
		if err := rows.Scan(&rec.Account, &rec.Value); err != nil {
			return nil, fmt.Errorf("scanning player data %q: %w", key, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) DeletePlayerData(ctx context.Context, account string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM player_data WHERE account = $1`, account)
	if err != nil {
		return fmt.Errorf("deleting player data for %s: %w", account, err)
	}
	return nil
}

func (p *Postgres) GetPlaceData(ctx context.Context, placeID, key string) ([]byte, error) {
	value, err := scanValue(p.pool.QueryRow(ctx,
		`SELECT value FROM place_data WHERE place_id = $1 AND data_key = $2`,
		placeID, key))
	if err != nil {
		return nil, fmt.Errorf("reading place data %s/%s: %w", placeID, key, err)
	}
	return value, nil
}

func (p *Postgres) SetPlaceData(ctx context.Context, placeID, key string, value []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO place_data (place_id, data_key, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (place_id, data_key) DO UPDATE SET value = $3`,
		placeID, key, value)
	if err != nil {
		return fmt.Errorf("writing place data %s/%s: %w", placeID, key, err)
	}
	return nil
}

func (p *Postgres) GetAreaData(ctx context.Context, cell, key string) ([]byte, error) {
	value, err := scanValue(p.pool.QueryRow(ctx,
		`SELECT value FROM area_data
		 WHERE cell = $1 AND data_key = $2 AND (expires IS NULL OR expires > now())`,
		cell, key))
	if err != nil {
		return nil, fmt.Errorf("reading area data %s/%s: %w", cell, key, err)
	}
	return value, nil
}

func (p *Postgres) SetAreaData(ctx context.Context, cell, key string, value []byte, expires time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO area_data (cell, data_key, value, expires)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cell, data_key) DO UPDATE SET value = $3, expires = $4`,
		cell, key, value, nullTime(expires))
	if err != nil {
		return fmt.Errorf("writing area data %s/%s: %w", cell, key, err)
	}
	return nil
}

func (p *Postgres) SetAreaDataBatch(ctx context.Context, records []AreaRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(
			`INSERT INTO area_data (cell, data_key, value, expires)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (cell, data_key) DO UPDATE SET value = $3, expires = $4`,
			r.Cell, r.Key, r.Value, nullTime(r.Expires))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing %d area records: %w", len(records), err)
	}
	return nil
}

func (p *Postgres) DeleteAreaData(ctx context.Context, cell, key string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM area_data WHERE cell = $1 AND data_key = $2`, cell, key)
	if err != nil {
		return fmt.Errorf("deleting area data %s/%s: %w", cell, key, err)
	}
	return nil
}

func (p *Postgres) GetAreaDataByCells(ctx context.Context, cells []string, key string) ([]AreaRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT cell, value, expires FROM area_data
		 WHERE cell = ANY($1) AND data_key = $2 AND (expires IS NULL OR expires > now())`,
		cells, key)
	if err != nil {
		return nil, fmt.Errorf("reading area data by cells: %w", err)
	}
	return collectAreaRows(rows, key)
}

func (p *Postgres) GetAreaDataByPrefix(ctx context.Context, cellPrefix, key string) ([]AreaRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT cell, value, expires FROM area_data
		 WHERE cell LIKE $1 || '%' AND data_key = $2 AND (expires IS NULL OR expires > now())
		 ORDER BY cell`,
		cellPrefix, key)
	if err != nil {
		return nil, fmt.Errorf("reading area data by prefix %q: %w", cellPrefix, err)
	}
	return collectAreaRows(rows, key)
}

func collectAreaRows(rows pgx.Rows, key string) ([]AreaRecord, error) {
	defer rows.Close()
	var out []AreaRecord
	for rows.Next() {
		rec := AreaRecord{Key: key}
		var expires *time.Time
		if err := rows.Scan(&rec.Cell, &rec.Value, &expires); err != nil {
			return nil, fmt.Errorf("scanning area data: %w", err)
		}
		if expires != nil {
			rec.Expires = *expires
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSecureAreaData(ctx context.Context, cell, key, secret string) ([]byte, error) {
	raw, err := p.GetAreaData(ctx, cell, key)
	if err != nil || raw == nil {
		return nil, err
	}
	return decryptValue(raw, secret)
}

func (p *Postgres) SetSecureAreaData(ctx context.Context, cell, key string, value []byte, secret string, expires time.Time) error {
	sealed, err := encryptValue(value, secret)
	if err != nil {
		return err
	}
	return p.SetAreaData(ctx, cell, key, sealed, expires)
}

func (p *Postgres) GetAllSecureAreaDataByKey(ctx context.Context, key, secret string) ([]AreaRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT cell, value, expires FROM area_data
		 WHERE data_key = $1 AND (expires IS NULL OR expires > now())
		 ORDER BY cell`, key)
	if err != nil {
		return nil, fmt.Errorf("reading all area data %q: %w", key, err)
	}
	records, err := collectAreaRows(rows, key)
	if err != nil {
		return nil, err
	}
	for i := range records {
		plain, err := decryptValue(records[i].Value, secret)
		if err != nil {
			return nil, fmt.Errorf("decrypting area data %s/%s: %w", records[i].Cell, key, err)
		}
		records[i].Value = plain
	}
	return records, nil
}

func (p *Postgres) GetGlobalData(ctx context.Context, key string) ([]byte, error) {
	value, err := scanValue(p.pool.QueryRow(ctx,
		`SELECT value FROM global_data WHERE data_key = $1`, key))
	if err != nil {
		return nil, fmt.Errorf("reading global data %q: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) SetGlobalData(ctx context.Context, key string, value []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO global_data (data_key, value)
		 VALUES ($1, $2)
		 ON CONFLICT (data_key) DO UPDATE SET value = $2`,
		key, value)
	if err != nil {
		return fmt.Errorf("writing global data %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) GetGlobalCounter(ctx context.Context, key string) (int64, error) {
	var value int64
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM global_counters WHERE data_key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading counter %q: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) IncrementGlobalCounter(ctx context.Context, key string, delta int64) (int64, error) {
	var value int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO global_counters (data_key, value)
		 VALUES ($1, $2)
		 ON CONFLICT (data_key) DO UPDATE SET value = global_counters.value + $2
		 RETURNING value`,
		key, delta).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("incrementing counter %q: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) SetGlobalCounter(ctx context.Context, key string, value int64) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO global_counters (data_key, value)
		 VALUES ($1, $2)
		 ON CONFLICT (data_key) DO UPDATE SET value = $2`,
		key, value)
	if err != nil {
		return fmt.Errorf("setting counter %q: %w", key, err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
