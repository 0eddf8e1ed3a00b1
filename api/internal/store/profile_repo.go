package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/profile"
)

type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

// Get returns the stored profile; a user without one gets an empty profile
// and apperr.ErrNotFound.
func (r *ProfileRepo) Get(ctx context.Context, userKey string) (profile.Profile, error) {
	const q = `select profile_json from user_profiles where user_key=$1`
	var js []byte
	if err := r.DB.QueryRowContext(ctx, q, userKey).Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile.Profile{}, fmt.Errorf("profile %s: %w", userKey, apperr.ErrNotFound)
		}
		return profile.Profile{}, err
	}
	var p profile.Profile
	if err := json.Unmarshal(js, &p); err != nil {
		return profile.Profile{}, fmt.Errorf("profile %s: %v: %w", userKey, err, apperr.ErrParse)
	}
	return p, nil
}

func (r *ProfileRepo) Put(ctx context.Context, userKey string, p profile.Profile) error {
	js, err := json.Marshal(p)
	if err != nil {
		return err
	}
	const q = `
insert into user_profiles(user_key, profile_json)
values ($1,$2)
on conflict (user_key)
do update set profile_json=excluded.profile_json, updated_at=now()`
	_, err = r.DB.ExecContext(ctx, q, userKey, js)
	return err
}
