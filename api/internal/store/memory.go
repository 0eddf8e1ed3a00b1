package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/profile"
	"nutriscan/api/internal/session"
)

// MemoryProfileRepo is used when no database is configured.
type MemoryProfileRepo struct {
	mu       sync.RWMutex
	profiles map[string]profile.Profile
}

func NewMemoryProfileRepo() *MemoryProfileRepo {
	return &MemoryProfileRepo{profiles: make(map[string]profile.Profile)}
}

func (r *MemoryProfileRepo) Get(_ context.Context, userKey string) (profile.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userKey]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", userKey, apperr.ErrNotFound)
	}
	return p, nil
}

func (r *MemoryProfileRepo) Put(_ context.Context, userKey string, p profile.Profile) error {
	r.mu.Lock()
	r.profiles[userKey] = p
	r.mu.Unlock()
	return nil
}

// MemoryScanRepo keeps at most keep entries per user.
type MemoryScanRepo struct {
	mu   sync.Mutex
	keep int
	rows map[string][]ScanRow
	now  func() time.Time
}

func NewMemoryScanRepo(keep int) *MemoryScanRepo {
	if keep <= 0 {
		keep = 50
	}
	return &MemoryScanRepo{keep: keep, rows: make(map[string][]ScanRow), now: time.Now}
}

func (r *MemoryScanRepo) Add(_ context.Context, e session.LogEntry) error {
	row := ScanRow{
		ID:           uuid.New(),
		CreatedAt:    r.now(),
		UserKey:      e.UserKey,
		Barcode:      e.Barcode,
		ProductName:  e.ProductName,
		Advisability: e.Advisory.Advisability,
		Advisory:     e.Advisory,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.rows[e.UserKey], row)
	if len(list) > r.keep {
		list = list[len(list)-r.keep:]
	}
	r.rows[e.UserKey] = list
	return nil
}

func (r *MemoryScanRepo) Recent(_ context.Context, userKey string, limit int) ([]ScanRow, error) {
	if limit <= 0 {
		limit = 10
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.rows[userKey]
	out := make([]ScanRow, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
