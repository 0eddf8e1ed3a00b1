package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"nutriscan/api/internal/advisory"
	"nutriscan/api/internal/session"
)

var ErrNotFound = sql.ErrNoRows

type ScanRepo struct{ DB *sql.DB }

func NewScanRepo(db *sql.DB) *ScanRepo { return &ScanRepo{DB: db} }

// ScanRow is one completed analysis from the history.
type ScanRow struct {
	ID           uuid.UUID       `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	UserKey      string          `json:"-"`
	Barcode      string          `json:"barcode"`
	ProductName  string          `json:"product_name"`
	Advisability string          `json:"advisability"`
	Advisory     advisory.Record `json:"analysis"`
}

// Add implements session.ScanLog.
func (r *ScanRepo) Add(ctx context.Context, e session.LogEntry) error {
	js, err := json.Marshal(e.Advisory)
	if err != nil {
		return err
	}
	const q = `
insert into product_scans (id, user_key, barcode, product_name, advisability, analysis_json)
values ($1,$2,$3,$4,$5,$6)`
	_, err = r.DB.ExecContext(ctx, q,
		uuid.New(), e.UserKey, e.Barcode, e.ProductName, e.Advisory.Advisability, js,
	)
	return err
}

// Recent возвращает последние limit записей пользователя, новые первыми.
func (r *ScanRepo) Recent(ctx context.Context, userKey string, limit int) ([]ScanRow, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
select id, created_at, user_key, barcode,
       coalesce(product_name,'') as product_name,
       coalesce(advisability,'') as advisability,
       analysis_json
from product_scans
where user_key = $1
order by created_at desc
limit $2`
	rows, err := r.DB.QueryContext(ctx, q, userKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanRow
	for rows.Next() {
		var (
			row ScanRow
			js  []byte
		)
		if err := rows.Scan(&row.ID, &row.CreatedAt, &row.UserKey, &row.Barcode,
			&row.ProductName, &row.Advisability, &js); err != nil {
			return nil, err
		}
		// старые строки могут быть без JSON; показываем то, что есть
		_ = json.Unmarshal(js, &row.Advisory)
		out = append(out, row)
	}
	return out, rows.Err()
}

// PurgeOlderThan удаляет старую историю, чтобы не раздувать БД.
func (r *ScanRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from product_scans where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
