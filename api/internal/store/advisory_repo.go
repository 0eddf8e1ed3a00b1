package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"nutriscan/api/internal/advisory"
)

type AdvisoryRepo struct{ DB *sql.DB }

func NewAdvisoryRepo(db *sql.DB) *AdvisoryRepo { return &AdvisoryRepo{DB: db} }

// Find возвращает закэшированный ответ для (prompt_hash, engine, model).
// Если maxAge > 0 и запись старше, вернёт sql.ErrNoRows.
func (r *AdvisoryRepo) Find(ctx context.Context, promptHash, engine, model string, maxAge time.Duration) (advisory.Record, error) {
	const q = `select advisory_json, created_at
	           from advisory_cache
	           where prompt_hash=$1 and engine=$2 and model=$3`
	var (
		js []byte
		ts time.Time
	)
	if err := r.DB.QueryRowContext(ctx, q, promptHash, engine, model).Scan(&js, &ts); err != nil {
		return advisory.Record{}, err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return advisory.Record{}, sql.ErrNoRows
	}
	var rec advisory.Record
	if err := json.Unmarshal(js, &rec); err != nil {
		// битый кэш = нет записи
		return advisory.Record{}, sql.ErrNoRows
	}
	return rec, nil
}

// Upsert сохраняет ответ модели. PK: (prompt_hash, engine, model).
func (r *AdvisoryRepo) Upsert(ctx context.Context, promptHash, engine, model string, rec advisory.Record) error {
	js, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	const q = `
insert into advisory_cache(prompt_hash, engine, model, advisory_json)
values ($1,$2,$3,$4)
on conflict (prompt_hash, engine, model)
do update set advisory_json=excluded.advisory_json, created_at=now()`
	_, err = r.DB.ExecContext(ctx, q, promptHash, engine, model, js)
	return err
}
