// Package repo implements the data persistence layer for mirrored entities,
// backed by GORM. This file provides small aggregate queries behind the
// /stats endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/domain"
)

// KindStats summarizes one entity table.
type KindStats struct {
	Kind         string     `json:"kind"`
	Total        int64      `json:"total"`
	Found        int64      `json:"found"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// EntityStats returns row counts and the most recent synced_at per kind.
func EntityStats(ctx context.Context, db *gorm.DB) ([]KindStats, error) {
	kinds := []struct {
		name  string
		model any
	}{
		{"curseforge_mod", &domain.CFMod{}},
		{"curseforge_file", &domain.CFFile{}},
		{"curseforge_fingerprint", &domain.CFFingerprint{}},
		{"modrinth_project", &domain.MRProject{}},
		{"modrinth_version", &domain.MRVersion{}},
		{"modrinth_file", &domain.MRFile{}},
	}
	out := make([]KindStats, 0, len(kinds))
	for _, k := range kinds {
		st, err := tableStats(ctx, db, k.model)
		if err != nil {
			return nil, err
		}
		st.Kind = k.name
		out = append(out, st)
	}
	return out, nil
}

func tableStats(ctx context.Context, db *gorm.DB, model any) (KindStats, error) {
	var st KindStats
	q := func() *gorm.DB { return db.WithContext(ctx).Model(model) }

	if err := q().Count(&st.Total).Error; err != nil {
		return st, err
	}
	if st.Total == 0 {
		return st, nil
	}
	if err := q().Where("found = ?", true).Count(&st.Found).Error; err != nil {
		return st, err
	}

	// Latest synced_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		SyncedAt time.Time
	}
	if err := q().Select("synced_at").Order("synced_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return st, err
	}
	st.LastSyncedAt = &row.SyncedAt
	return st, nil
}
