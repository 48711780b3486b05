package services

import (
	"context"
	"net/url"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/config"
	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/repo"
)

// ModrinthService answers Modrinth lookups from the entity store and
// schedules refreshes for whatever is missing or stale.
type ModrinthService struct {
	DB         *gorm.DB
	Dispatcher jobs.Dispatcher
	Upstream   Searcher
	TTL        config.TTLConfig

	Now func() time.Time
	Log zerolog.Logger
}

// NewModrinthService constructs a ModrinthService.
func NewModrinthService(db *gorm.DB, d jobs.Dispatcher, up Searcher, ttl config.TTLConfig, log zerolog.Logger) *ModrinthService {
	return &ModrinthService{DB: db, Dispatcher: d, Upstream: up, TTL: ttl, Log: log}
}

func (s *ModrinthService) sched() scheduler {
	return scheduler{dispatcher: s.Dispatcher, now: s.Now, log: s.Log}
}

// projectIndex resolves a key by exact id, then by folded slug. A found
// record beats a negative one on either path, so a slug that once missed
// upstream cannot hide a project later stored under that slug.
func projectIndex(projects []domain.MRProject) func(string) (domain.MRProject, bool) {
	byID := Index(projects, func(p domain.MRProject) string { return p.ID })
	bySlug := Index(projects, func(p domain.MRProject) string { return p.Slug })
	return func(k string) (domain.MRProject, bool) {
		idHit, okID := byID[k]
		if okID && idHit.Found {
			return idHit, true
		}
		if p, ok := bySlug[domain.FoldSlug(k)]; ok && (p.Found || !okID) {
			return p, true
		}
		return idHit, okID
	}
}

// Project looks up one project by id or slug.
func (s *ModrinthService) Project(ctx context.Context, key string, force bool) (Result[domain.MRProject], error) {
	if err := ValidateModrinthKey(key); err != nil {
		return Result[domain.MRProject]{}, err
	}
	job := jobs.NewJob(jobs.KindMRProjects, []string{key}, nil)
	return point(ctx, s.sched(), job, force, s.TTL.MRProject, func() (*domain.MRProject, error) {
		rows, err := repo.GetMRProjects(ctx, s.DB, []string{key})
		if err != nil {
			return nil, err
		}
		if p, ok := projectIndex(rows)(key); ok {
			return &p, nil
		}
		return nil, nil
	})
}

// Projects looks up a batch of projects by id or slug.
func (s *ModrinthService) Projects(ctx context.Context, keys []string, force bool) (Results[domain.MRProject], error) {
	if err := validateAll(keys, ValidateModrinthKey); err != nil {
		return Results[domain.MRProject]{}, err
	}
	sc := s.sched()
	if force {
		sc.submit(ctx, jobs.NewJob(jobs.KindMRProjects, keys, nil))
		return Results[domain.MRProject]{Items: []domain.MRProject{}, Accepted: true}, nil
	}
	rows, err := repo.GetMRProjects(ctx, s.DB, keys)
	if err != nil {
		return Results[domain.MRProject]{}, err
	}
	rc := Reconcile(keys, projectIndex(rows), s.TTL.MRProject, sc.clock())
	sc.submit(ctx, jobs.NewJob(jobs.KindMRProjects, rc.Refresh, nil))
	return Results[domain.MRProject]{Items: uniqueBy(rc.Items, func(p domain.MRProject) string { return p.ID }), Trustable: rc.Trustable}, nil
}

// ProjectVersions lists the versions of a project in upstream order. An
// unknown project is refreshed as a whole, which expands into its versions.
func (s *ModrinthService) ProjectVersions(ctx context.Context, key string, force bool) (Listing[domain.MRVersion], error) {
	if err := ValidateModrinthKey(key); err != nil {
		return Listing[domain.MRVersion]{}, err
	}
	sc := s.sched()
	if force {
		sc.submit(ctx, jobs.NewJob(jobs.KindMRProjects, []string{key}, nil))
		return Listing[domain.MRVersion]{Items: []domain.MRVersion{}, Accepted: true}, nil
	}

	pr, err := s.Project(ctx, key, false)
	if err != nil {
		return Listing[domain.MRVersion]{}, err
	}
	out := Listing[domain.MRVersion]{Items: []domain.MRVersion{}, Status: pr.Status, Trustable: pr.Trustable}
	if pr.Item == nil {
		return out, nil
	}

	p := pr.Item
	versions, err := repo.ListMRVersionsByProject(ctx, s.DB, p.ID)
	if err != nil {
		return Listing[domain.MRVersion]{}, err
	}
	sortByOrder(versions, p.Versions)
	out.Items, out.Total = versions, int64(len(versions))

	fresh := len(versions) >= len(p.Versions)
	now := sc.clock()
	for _, v := range versions {
		meta := v.SyncMeta
		if domain.Classify(&meta, s.TTL.MRVersion, now) != domain.StatusFresh {
			fresh = false
			break
		}
	}
	if !fresh {
		out.Trustable = false
		if out.Status == domain.StatusFresh {
			out.Status = domain.StatusStale
		}
		sc.submit(ctx, jobs.NewJob(jobs.KindMRProjectVersions, []string{p.ID}, nil))
	}
	return out, nil
}

// Version looks up one version.
func (s *ModrinthService) Version(ctx context.Context, id string, force bool) (Result[domain.MRVersion], error) {
	if err := ValidateModrinthKey(id); err != nil {
		return Result[domain.MRVersion]{}, err
	}
	job := jobs.NewJob(jobs.KindMRVersions, []string{id}, nil)
	return point(ctx, s.sched(), job, force, s.TTL.MRVersion, func() (*domain.MRVersion, error) {
		rows, err := repo.GetMRVersions(ctx, s.DB, []string{id})
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return &rows[0], nil
	})
}

// Versions looks up a batch of versions.
func (s *ModrinthService) Versions(ctx context.Context, ids []string, force bool) (Results[domain.MRVersion], error) {
	if err := validateAll(ids, ValidateModrinthKey); err != nil {
		return Results[domain.MRVersion]{}, err
	}
	sc := s.sched()
	if force {
		sc.submit(ctx, jobs.NewJob(jobs.KindMRVersions, ids, nil))
		return Results[domain.MRVersion]{Items: []domain.MRVersion{}, Accepted: true}, nil
	}
	rows, err := repo.GetMRVersions(ctx, s.DB, ids)
	if err != nil {
		return Results[domain.MRVersion]{}, err
	}
	rc := Reconcile(ids, fromMap(Index(rows, func(v domain.MRVersion) string { return v.ID })), s.TTL.MRVersion, sc.clock())
	sc.submit(ctx, jobs.NewJob(jobs.KindMRVersions, rc.Refresh, nil))
	return Results[domain.MRVersion]{Items: orEmpty(rc.Items), Trustable: rc.Trustable}, nil
}

// HashMatches maps each resolved hash to the version that contains it.
type HashMatches struct {
	Versions  map[string]domain.MRVersion
	Trustable bool
	Accepted  bool
}

// VersionFile resolves one file hash to its version.
func (s *ModrinthService) VersionFile(ctx context.Context, hash, algorithm string, force bool) (Result[domain.MRVersion], error) {
	m, err := s.VersionFiles(ctx, []string{hash}, algorithm, force)
	if err != nil || m.Accepted {
		return Result[domain.MRVersion]{Accepted: m.Accepted}, err
	}
	for _, v := range m.Versions {
		st := domain.StatusFresh
		if !m.Trustable {
			st = domain.StatusStale
		}
		return Result[domain.MRVersion]{Item: &v, Status: st, Trustable: m.Trustable}, nil
	}
	st := domain.StatusMissing
	if m.Trustable {
		st = domain.StatusNegative
	}
	return Result[domain.MRVersion]{Status: st, Trustable: m.Trustable}, nil
}

// VersionFiles resolves file hashes to their versions. File records are
// hash-addressed and judged against the file TTL; the version they point to
// is read alongside.
func (s *ModrinthService) VersionFiles(ctx context.Context, hashes []string, algorithm string, force bool) (HashMatches, error) {
	alg, err := NormalizeAlgorithm(algorithm)
	if err != nil {
		return HashMatches{}, err
	}
	if err := checkBatch(len(hashes)); err != nil {
		return HashMatches{}, err
	}
	norm := make([]string, len(hashes))
	for i, h := range hashes {
		if norm[i], err = NormalizeHash(alg, h); err != nil {
			return HashMatches{}, err
		}
	}

	sc := s.sched()
	params := map[string]string{jobs.ParamAlgorithm: alg}
	if force {
		sc.submit(ctx, jobs.NewJob(jobs.KindMRHashes, norm, params))
		return HashMatches{Versions: map[string]domain.MRVersion{}, Accepted: true}, nil
	}

	files, err := repo.GetMRFiles(ctx, s.DB, alg, norm)
	if err != nil {
		return HashMatches{}, err
	}
	key := func(f domain.MRFile) string { return f.SHA1 }
	if alg == AlgorithmSHA512 {
		key = func(f domain.MRFile) string { return f.SHA512 }
	}
	rc := Reconcile(norm, fromMap(Index(files, key)), s.TTL.MRFile, sc.clock())

	versionIDs := make([]string, 0, len(rc.Items))
	for _, f := range rc.Items {
		versionIDs = append(versionIDs, f.VersionID)
	}
	versions, err := repo.GetMRVersions(ctx, s.DB, versionIDs)
	if err != nil {
		return HashMatches{}, err
	}
	byID := Index(versions, func(v domain.MRVersion) string { return v.ID })

	out := HashMatches{Versions: make(map[string]domain.MRVersion, len(rc.Items)), Trustable: rc.Trustable}
	refresh := rc.Refresh
	for _, f := range rc.Items {
		v, ok := byID[f.VersionID]
		if !ok || !v.Found {
			out.Trustable = false
			refresh = append(refresh, key(f))
			continue
		}
		out.Versions[key(f)] = v
	}
	sc.submit(ctx, jobs.NewJob(jobs.KindMRHashes, refresh, params))
	return out, nil
}

// Search forwards a search query to Modrinth. Results are never stored.
func (s *ModrinthService) Search(ctx context.Context, query url.Values) ([]byte, error) {
	return s.Upstream.Search(ctx, query)
}

// sortByOrder orders versions by their position in order; unknown ids go
// last, newest synced first.
func sortByOrder(versions []domain.MRVersion, order []string) {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	rank := func(v domain.MRVersion) int {
		if p, ok := pos[v.ID]; ok {
			return p
		}
		return len(order)
	}
	slices.SortStableFunc(versions, func(a, b domain.MRVersion) int {
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra - rb
		}
		return b.SyncedAt.Compare(a.SyncedAt)
	})
}

func uniqueBy[E any, K comparable](items []E, key func(E) K) []E {
	seen := make(map[K]struct{}, len(items))
	out := make([]E, 0, len(items))
	for _, it := range items {
		k := key(it)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}
