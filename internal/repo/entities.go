// Package repo implements the data persistence layer for mirrored entities,
// backed by GORM. This file holds the per-kind lookups and upserts used by the
// lookup services and the refresh actors.
//
// Write semantics:
//   - Every upsert is keyed by primary key and applies only when the incoming
//     synced_at is not older than the stored one (last writer by timestamp).
//   - Negative records overwrite only found/synced_at, so a stale payload is
//     kept but never served.
//   - Fingerprint mappings are immutable once found.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mod-mirror/internal/domain"
)

const (
	batchSize = 200
	inChunk   = 500
)

// newerWins builds an ON CONFLICT clause that only replaces cols when the
// incoming row is at least as recent as the stored one.
func newerWins(table, pk string, cols ...string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: pk}},
		DoUpdates: clause.AssignmentColumns(cols),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.synced_at >= " + table + ".synced_at"},
		}},
	}
}

func upsert[T any](ctx context.Context, db *gorm.DB, rows []T, oc clause.OnConflict) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(oc).CreateInBatches(&rows, batchSize).Error
}

func findIn[T any, K any](ctx context.Context, db *gorm.DB, col string, keys []K) ([]T, error) {
	out := make([]T, 0, len(keys))
	for start := 0; start < len(keys); start += inChunk {
		end := min(start+inChunk, len(keys))
		var part []T
		if err := db.WithContext(ctx).Where(col+" IN ?", keys[start:end]).Find(&part).Error; err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

func take[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var out T
	err := db.WithContext(ctx).Where(query, args...).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func negative(at time.Time) domain.SyncMeta {
	return domain.SyncMeta{Found: false, SyncedAt: at}
}

//
// CurseForge
//

// GetCFMods returns the stored mods among ids, in no particular order.
func GetCFMods(ctx context.Context, db *gorm.DB, ids []int64) ([]domain.CFMod, error) {
	return findIn[domain.CFMod](ctx, db, "id", ids)
}

// UpsertCFMods writes found mods.
func UpsertCFMods(ctx context.Context, db *gorm.DB, mods []domain.CFMod) error {
	return upsert(ctx, db, mods, newerWins("cf_mods", "id", "slug", "name", "payload", "found", "synced_at"))
}

// MarkCFModsMissing writes negative records for ids.
func MarkCFModsMissing(ctx context.Context, db *gorm.DB, ids []int64, at time.Time) error {
	rows := make([]domain.CFMod, len(ids))
	for i, id := range ids {
		rows[i] = domain.CFMod{ID: id, SyncMeta: negative(at)}
	}
	return upsert(ctx, db, rows, newerWins("cf_mods", "id", "found", "synced_at"))
}

// GetCFFiles returns the stored files among ids.
func GetCFFiles(ctx context.Context, db *gorm.DB, ids []int64) ([]domain.CFFile, error) {
	return findIn[domain.CFFile](ctx, db, "id", ids)
}

// GetCFFile returns one file or ErrNotFound.
func GetCFFile(ctx context.Context, db *gorm.DB, id int64) (*domain.CFFile, error) {
	return take[domain.CFFile](ctx, db, "id = ?", id)
}

// ListCFFilesByMod returns a page of found files of a mod, newest id first,
// together with the total number of found files.
func ListCFFilesByMod(ctx context.Context, db *gorm.DB, modID int64, offset, limit int) ([]domain.CFFile, int64, error) {
	q := db.WithContext(ctx).Model(&domain.CFFile{}).Where("mod_id = ? AND found = ?", modID, true)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []domain.CFFile{}
	if total == 0 {
		return out, 0, nil
	}
	err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// UpsertCFFiles writes found files.
func UpsertCFFiles(ctx context.Context, db *gorm.DB, files []domain.CFFile) error {
	return upsert(ctx, db, files, newerWins("cf_files", "id",
		"mod_id", "file_name", "file_length", "sha1", "download_url", "fingerprint", "payload", "found", "synced_at"))
}

// MarkCFFilesMissing writes negative records for file ids.
func MarkCFFilesMissing(ctx context.Context, db *gorm.DB, ids []int64, at time.Time) error {
	rows := make([]domain.CFFile, len(ids))
	for i, id := range ids {
		rows[i] = domain.CFFile{ID: id, SyncMeta: negative(at)}
	}
	return upsert(ctx, db, rows, newerWins("cf_files", "id", "found", "synced_at"))
}

// GetCFFingerprints returns the stored mappings among fingerprints.
func GetCFFingerprints(ctx context.Context, db *gorm.DB, fps []int64) ([]domain.CFFingerprint, error) {
	return findIn[domain.CFFingerprint](ctx, db, "fingerprint", fps)
}

func fingerprintClause(cols ...string) clause.OnConflict {
	oc := newerWins("cf_fingerprints", "fingerprint", cols...)
	oc.Where.Exprs = append(oc.Where.Exprs, clause.Expr{SQL: "cf_fingerprints.found = ?", Vars: []any{false}})
	return oc
}

// UpsertCFFingerprints writes found mappings. A mapping that is already
// found is left untouched.
func UpsertCFFingerprints(ctx context.Context, db *gorm.DB, fps []domain.CFFingerprint) error {
	return upsert(ctx, db, fps, fingerprintClause("file_id", "mod_id", "payload", "found", "synced_at"))
}

// MarkCFFingerprintsMissing writes negative records for unmatched
// fingerprints.
func MarkCFFingerprintsMissing(ctx context.Context, db *gorm.DB, fps []int64, at time.Time) error {
	rows := make([]domain.CFFingerprint, len(fps))
	for i, fp := range fps {
		rows[i] = domain.CFFingerprint{Fingerprint: fp, SyncMeta: negative(at)}
	}
	return upsert(ctx, db, rows, fingerprintClause("found", "synced_at"))
}

//
// Modrinth
//

// GetMRProjects returns the stored projects whose id or folded slug is among
// keys.
func GetMRProjects(ctx context.Context, db *gorm.DB, keys []string) ([]domain.MRProject, error) {
	out := make([]domain.MRProject, 0, len(keys))
	for start := 0; start < len(keys); start += inChunk {
		end := min(start+inChunk, len(keys))
		slugs := make([]string, 0, end-start)
		for _, k := range keys[start:end] {
			slugs = append(slugs, domain.FoldSlug(k))
		}
		var part []domain.MRProject
		err := db.WithContext(ctx).
			Where("id IN ? OR slug IN ?", keys[start:end], slugs).
			Find(&part).Error
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

// GetMRProject returns a project by id or slug. A found record wins over a
// negative one, then an id match wins over a slug match.
func GetMRProject(ctx context.Context, db *gorm.DB, key string) (*domain.MRProject, error) {
	byID, err := take[domain.MRProject](ctx, db, "id = ?", key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if byID != nil && byID.Found {
		return byID, nil
	}
	bySlug, err := take[domain.MRProject](ctx, db, "slug = ? AND found = ?", domain.FoldSlug(key), true)
	switch {
	case err == nil:
		return bySlug, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	case byID != nil:
		return byID, nil
	}
	return take[domain.MRProject](ctx, db, "slug = ?", domain.FoldSlug(key))
}

// UpsertMRProjects writes found projects.
func UpsertMRProjects(ctx context.Context, db *gorm.DB, projects []domain.MRProject) error {
	return upsert(ctx, db, projects, newerWins("mr_projects", "id", "slug", "title", "versions", "payload", "found", "synced_at"))
}

// MarkMRProjectsMissing writes negative records. Keys may be ids or slugs, so
// each negative row carries the key in both columns.
func MarkMRProjectsMissing(ctx context.Context, db *gorm.DB, keys []string, at time.Time) error {
	rows := make([]domain.MRProject, len(keys))
	for i, k := range keys {
		rows[i] = domain.MRProject{ID: k, Slug: domain.FoldSlug(k), SyncMeta: negative(at)}
	}
	return upsert(ctx, db, rows, newerWins("mr_projects", "id", "found", "synced_at"))
}

// GetMRVersions returns the stored versions among ids.
func GetMRVersions(ctx context.Context, db *gorm.DB, ids []string) ([]domain.MRVersion, error) {
	return findIn[domain.MRVersion](ctx, db, "id", ids)
}

// ListMRVersionsByProject returns every found version of a project.
func ListMRVersionsByProject(ctx context.Context, db *gorm.DB, projectID string) ([]domain.MRVersion, error) {
	out := []domain.MRVersion{}
	err := db.WithContext(ctx).
		Where("project_id = ? AND found = ?", projectID, true).
		Find(&out).Error
	return out, err
}

// SaveMRVersions writes versions and their hash-addressed file projection in
// one transaction so both views agree.
func SaveMRVersions(ctx context.Context, db *gorm.DB, versions []domain.MRVersion) error {
	if len(versions) == 0 {
		return nil
	}
	var files []domain.MRFile
	for _, v := range versions {
		files = append(files, v.HashFiles(v.SyncMeta)...)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsert(ctx, tx, versions, newerWins("mr_versions", "id", "project_id", "files", "payload", "found", "synced_at")); err != nil {
			return err
		}
		return upsert(ctx, tx, files, newerWins("mr_files", "sha1",
			"sha512", "version_id", "project_id", "filename", "url", "size", "is_primary", "found", "synced_at"))
	})
}

// MarkMRVersionsMissing writes negative records for version ids.
func MarkMRVersionsMissing(ctx context.Context, db *gorm.DB, ids []string, at time.Time) error {
	rows := make([]domain.MRVersion, len(ids))
	for i, id := range ids {
		rows[i] = domain.MRVersion{ID: id, SyncMeta: negative(at)}
	}
	return upsert(ctx, db, rows, newerWins("mr_versions", "id", "found", "synced_at"))
}

// GetMRFiles returns stored files by sha1 or sha512.
func GetMRFiles(ctx context.Context, db *gorm.DB, algorithm string, hashes []string) ([]domain.MRFile, error) {
	col := "sha1"
	if algorithm == "sha512" {
		col = "sha512"
	}
	return findIn[domain.MRFile](ctx, db, col, hashes)
}

// GetMRFileByName resolves the file of a version by its filename.
func GetMRFileByName(ctx context.Context, db *gorm.DB, versionID, filename string) (*domain.MRFile, error) {
	return take[domain.MRFile](ctx, db, "version_id = ? AND filename = ?", versionID, filename)
}

// MarkMRFilesMissing writes negative records for hashes upstream does not
// know. Negative sha512 rows reuse the hash as primary key; the lengths of
// the two digests never collide.
func MarkMRFilesMissing(ctx context.Context, db *gorm.DB, algorithm string, hashes []string, at time.Time) error {
	rows := make([]domain.MRFile, len(hashes))
	for i, h := range hashes {
		rows[i] = domain.MRFile{SHA1: h, SyncMeta: negative(at)}
		if algorithm == "sha512" {
			rows[i].SHA512 = h
		}
	}
	return upsert(ctx, db, rows, newerWins("mr_files", "sha1", "found", "synced_at"))
}
