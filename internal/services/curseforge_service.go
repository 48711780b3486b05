package services

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/config"
	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/repo"
)

// CurseForgeService answers CurseForge lookups from the entity store and
// schedules refreshes for whatever is missing or stale.
type CurseForgeService struct {
	// DB is the GORM handle of the entity store.
	DB *gorm.DB
	// Dispatcher receives refresh jobs.
	Dispatcher jobs.Dispatcher
	// Upstream serves passthrough searches.
	Upstream Searcher
	// TTL holds the freshness window per kind.
	TTL config.TTLConfig

	Now func() time.Time
	Log zerolog.Logger
}

// NewCurseForgeService constructs a CurseForgeService.
func NewCurseForgeService(db *gorm.DB, d jobs.Dispatcher, up Searcher, ttl config.TTLConfig, log zerolog.Logger) *CurseForgeService {
	return &CurseForgeService{DB: db, Dispatcher: d, Upstream: up, TTL: ttl, Log: log}
}

func (s *CurseForgeService) sched() scheduler {
	return scheduler{dispatcher: s.Dispatcher, now: s.Now, log: s.Log}
}

// Mod looks up one mod.
func (s *CurseForgeService) Mod(ctx context.Context, id int64, force bool) (Result[domain.CFMod], error) {
	if err := ValidateModID(id); err != nil {
		return Result[domain.CFMod]{}, err
	}
	job := jobs.NewIntJob(jobs.KindCFMods, []int64{id}, nil)
	return point(ctx, s.sched(), job, force, s.TTL.CFMod, func() (*domain.CFMod, error) {
		mods, err := repo.GetCFMods(ctx, s.DB, []int64{id})
		if err != nil || len(mods) == 0 {
			return nil, err
		}
		return &mods[0], nil
	})
}

// Mods looks up a batch of mods. Missing and stale ids are refreshed with a
// single batch job.
func (s *CurseForgeService) Mods(ctx context.Context, ids []int64, force bool) (Results[domain.CFMod], error) {
	if err := validateAll(ids, ValidateModID); err != nil {
		return Results[domain.CFMod]{}, err
	}
	sc := s.sched()
	if force {
		sc.submit(ctx, jobs.NewIntJob(jobs.KindCFMods, ids, nil))
		return Results[domain.CFMod]{Items: []domain.CFMod{}, Accepted: true}, nil
	}
	mods, err := repo.GetCFMods(ctx, s.DB, ids)
	if err != nil {
		return Results[domain.CFMod]{}, err
	}
	rc := Reconcile(ids, fromMap(Index(mods, func(m domain.CFMod) int64 { return m.ID })), s.TTL.CFMod, sc.clock())
	sc.submit(ctx, jobs.NewIntJob(jobs.KindCFMods, rc.Refresh, nil))
	return Results[domain.CFMod]{Items: orEmpty(rc.Items), Trustable: rc.Trustable}, nil
}

// ModFiles returns a page of the files of a mod. The page is trustable only
// when the mod is known and every listed file is fresh.
func (s *CurseForgeService) ModFiles(ctx context.Context, modID int64, offset, limit int, force bool) (Listing[domain.CFFile], error) {
	if err := ValidateModID(modID); err != nil {
		return Listing[domain.CFFile]{}, err
	}
	sc := s.sched()
	job := jobs.NewIntJob(jobs.KindCFModFiles, []int64{modID}, nil)
	if force {
		sc.submit(ctx, job)
		return Listing[domain.CFFile]{Items: []domain.CFFile{}, Accepted: true}, nil
	}

	mods, err := repo.GetCFMods(ctx, s.DB, []int64{modID})
	if err != nil {
		return Listing[domain.CFFile]{}, err
	}
	if len(mods) == 1 && !mods[0].Found {
		return Listing[domain.CFFile]{Items: []domain.CFFile{}, Status: domain.StatusNegative, Trustable: true}, nil
	}

	files, total, err := repo.ListCFFilesByMod(ctx, s.DB, modID, offset, limit)
	if err != nil {
		return Listing[domain.CFFile]{}, err
	}
	out := Listing[domain.CFFile]{Items: files, Total: total, Status: domain.StatusFresh, Trustable: true}
	if total == 0 {
		out.Status, out.Trustable = domain.StatusMissing, false
		sc.submit(ctx, job)
		return out, nil
	}
	now := sc.clock()
	for _, f := range files {
		meta := f.SyncMeta
		if domain.Classify(&meta, s.TTL.CFFile, now) != domain.StatusFresh {
			out.Status, out.Trustable = domain.StatusStale, false
			sc.submit(ctx, job)
			break
		}
	}
	return out, nil
}

// File looks up one file of a mod. A stored file that belongs to another mod
// is reported as not found, the way upstream answers.
func (s *CurseForgeService) File(ctx context.Context, modID, fileID int64, force bool) (Result[domain.CFFile], error) {
	if err := ValidateModID(modID); err != nil {
		return Result[domain.CFFile]{}, err
	}
	if err := ValidateFileID(fileID); err != nil {
		return Result[domain.CFFile]{}, err
	}
	job := jobs.NewIntJob(jobs.KindCFFiles, []int64{fileID}, nil)
	res, err := point(ctx, s.sched(), job, force, s.TTL.CFFile, func() (*domain.CFFile, error) {
		return repo.GetCFFile(ctx, s.DB, fileID)
	})
	if err != nil || res.Item == nil || res.Item.ModID == modID {
		return res, err
	}
	return Result[domain.CFFile]{Status: domain.StatusNegative, Trustable: res.Trustable}, nil
}

// Files looks up a batch of files by id.
func (s *CurseForgeService) Files(ctx context.Context, ids []int64, force bool) (Results[domain.CFFile], error) {
	if err := validateAll(ids, ValidateFileID); err != nil {
		return Results[domain.CFFile]{}, err
	}
	sc := s.sched()
	if force {
		sc.submit(ctx, jobs.NewIntJob(jobs.KindCFFiles, ids, nil))
		return Results[domain.CFFile]{Items: []domain.CFFile{}, Accepted: true}, nil
	}
	files, err := repo.GetCFFiles(ctx, s.DB, ids)
	if err != nil {
		return Results[domain.CFFile]{}, err
	}
	rc := Reconcile(ids, fromMap(Index(files, func(f domain.CFFile) int64 { return f.ID })), s.TTL.CFFile, sc.clock())
	sc.submit(ctx, jobs.NewIntJob(jobs.KindCFFiles, rc.Refresh, nil))
	return Results[domain.CFFile]{Items: orEmpty(rc.Items), Trustable: rc.Trustable}, nil
}

// FingerprintMatch pairs a matched fingerprint with the stored file it
// resolves to.
type FingerprintMatch struct {
	Fingerprint int64
	ModID       int64
	File        domain.CFFile
}

// FingerprintMatches answers a fingerprint lookup. Unmatched lists the
// fingerprints upstream does not know and those whose file no longer exists.
type FingerprintMatches struct {
	Matches   []FingerprintMatch
	Unmatched []int64
	Trustable bool
	Accepted  bool
}

// Fingerprints resolves fingerprints to the files they were computed from. A
// mapping only counts as a match once its file is stored and found; a file
// not stored yet makes the answer untrustable and refreshes the owning mod's
// file list.
func (s *CurseForgeService) Fingerprints(ctx context.Context, fps []int64, force bool) (FingerprintMatches, error) {
	if err := validateAll(fps, ValidateFingerprint); err != nil {
		return FingerprintMatches{}, err
	}
	sc := s.sched()
	if force {
		sc.submit(ctx, jobs.NewIntJob(jobs.KindCFFingerprints, fps, nil))
		return FingerprintMatches{Matches: []FingerprintMatch{}, Unmatched: []int64{}, Accepted: true}, nil
	}
	rows, err := repo.GetCFFingerprints(ctx, s.DB, fps)
	if err != nil {
		return FingerprintMatches{}, err
	}
	idx := Index(rows, func(f domain.CFFingerprint) int64 { return f.Fingerprint })
	now := sc.clock()
	rc := Reconcile(fps, fromMap(idx), s.TTL.CFFingerprint, now)
	sc.submit(ctx, jobs.NewIntJob(jobs.KindCFFingerprints, rc.Refresh, nil))

	out := FingerprintMatches{
		Matches:   make([]FingerprintMatch, 0, len(rc.Items)),
		Unmatched: orEmpty(rc.Negative),
		Trustable: rc.Trustable,
	}
	if len(rc.Items) == 0 {
		return out, nil
	}
	fileIDs := make([]int64, 0, len(rc.Items))
	for _, m := range rc.Items {
		fileIDs = append(fileIDs, m.FileID)
	}
	files, err := repo.GetCFFiles(ctx, s.DB, fileIDs)
	if err != nil {
		return FingerprintMatches{}, err
	}
	byID := Index(files, func(f domain.CFFile) int64 { return f.ID })

	var stale, mods []int64
	for _, m := range rc.Items {
		f, ok := byID[m.FileID]
		if !ok {
			out.Trustable = false
			mods = append(mods, m.ModID)
			continue
		}
		switch domain.Classify(&f.SyncMeta, s.TTL.CFFile, now) {
		case domain.StatusNegative:
			out.Unmatched = append(out.Unmatched, m.Fingerprint)
			continue
		case domain.StatusStale:
			out.Trustable = false
			stale = append(stale, f.ID)
		}
		out.Matches = append(out.Matches, FingerprintMatch{Fingerprint: m.Fingerprint, ModID: m.ModID, File: f})
	}
	slices.Sort(mods)
	sc.submit(ctx, jobs.NewIntJob(jobs.KindCFModFiles, slices.Compact(mods), nil))
	sc.submit(ctx, jobs.NewIntJob(jobs.KindCFFiles, stale, nil))
	return out, nil
}

// Search forwards a search query to CurseForge. Results are never stored.
func (s *CurseForgeService) Search(ctx context.Context, query url.Values) ([]byte, error) {
	return s.Upstream.Search(ctx, query)
}

// ParseIDs parses decimal ids, reporting the first malformed one as an
// invalid identity.
func ParseIDs(raw []string) ([]int64, error) {
	out := make([]int64, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, invalid("id %q", r)
		}
		out = append(out, n)
	}
	return out, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
