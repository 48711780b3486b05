package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/repo"
	"github.com/tbourn/go-mod-mirror/internal/upstream"
)

// mrProjects refreshes projects by id or slug and expands each found
// project into a version-list job.
func (a *Actors) mrProjects(ctx context.Context, job jobs.RefreshJob) error {
	keys := job.Targets
	at := a.now()

	var (
		raws []json.RawMessage
		err  error
	)
	if len(keys) == 1 {
		raw, err := a.Modrinth.Project(ctx, keys[0])
		if errors.Is(err, upstream.ErrNotFound) {
			return repo.MarkMRProjectsMissing(ctx, a.DB, keys, at)
		}
		if err != nil {
			return err
		}
		raws = []json.RawMessage{raw}
	} else if raws, err = a.Modrinth.Projects(ctx, keys); err != nil {
		return err
	}

	seen := map[string]bool{}
	folded := map[string]bool{}
	projects := make([]domain.MRProject, 0, len(raws))
	for _, raw := range raws {
		p, err := upstream.NormalizeMRProject(raw, at)
		if err != nil {
			a.skipMalformed(job.Kind, err)
			continue
		}
		seen[p.ID] = true
		folded[p.Slug] = true
		projects = append(projects, p)
	}
	for _, k := range keys {
		if folded[domain.FoldSlug(k)] {
			seen[k] = true
		}
	}
	if err := repo.UpsertMRProjects(ctx, a.DB, projects); err != nil {
		return fmt.Errorf("upsert projects: %w", err)
	}
	if err := repo.MarkMRProjectsMissing(ctx, a.DB, missing(keys, seen), at); err != nil {
		return fmt.Errorf("mark projects missing: %w", err)
	}
	for _, p := range projects {
		a.submit(ctx, jobs.NewJob(jobs.KindMRProjectVersions, []string{p.ID}, nil))
	}
	return nil
}

// mrProjectVersions refreshes every version of one project together with
// the hash-addressed file records.
func (a *Actors) mrProjectVersions(ctx context.Context, job jobs.RefreshJob) error {
	at := a.now()
	for _, id := range job.Targets {
		raws, err := a.Modrinth.ProjectVersions(ctx, id)
		if errors.Is(err, upstream.ErrNotFound) {
			if err := repo.MarkMRProjectsMissing(ctx, a.DB, []string{id}, at); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := repo.SaveMRVersions(ctx, a.DB, a.versions(job.Kind, raws, at, nil)); err != nil {
			return fmt.Errorf("save versions of %s: %w", id, err)
		}
	}
	return nil
}

// mrVersions refreshes versions by id in one batch call.
func (a *Actors) mrVersions(ctx context.Context, job jobs.RefreshJob) error {
	ids := job.Targets
	at := a.now()
	raws, err := a.Modrinth.Versions(ctx, ids)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	if err := repo.SaveMRVersions(ctx, a.DB, a.versions(job.Kind, raws, at, seen)); err != nil {
		return fmt.Errorf("save versions: %w", err)
	}
	return repo.MarkMRVersionsMissing(ctx, a.DB, missing(ids, seen), at)
}

// mrHashes resolves file hashes to their versions. Hashes upstream does not
// know become negative file records.
func (a *Actors) mrHashes(ctx context.Context, job jobs.RefreshJob) error {
	algo := job.Params[jobs.ParamAlgorithm]
	if algo == "" {
		algo = "sha1"
	}
	at := a.now()
	byHash, err := a.Modrinth.VersionFiles(ctx, job.Targets, algo)
	if err != nil {
		return err
	}

	found := map[string]bool{}
	byVersion := map[string]json.RawMessage{}
	for h, raw := range byHash {
		found[h] = true
		var id struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(raw, &id) == nil && id.ID != "" {
			byVersion[id.ID] = raw
		}
	}
	raws := make([]json.RawMessage, 0, len(byVersion))
	for _, raw := range byVersion {
		raws = append(raws, raw)
	}
	if err := repo.SaveMRVersions(ctx, a.DB, a.versions(job.Kind, raws, at, nil)); err != nil {
		return fmt.Errorf("save versions: %w", err)
	}
	return repo.MarkMRFilesMissing(ctx, a.DB, algo, missing(job.Targets, found), at)
}

// versions normalizes version payloads, recording ids in seen when non-nil.
func (a *Actors) versions(kind jobs.Kind, raws []json.RawMessage, at time.Time, seen map[string]bool) []domain.MRVersion {
	out := make([]domain.MRVersion, 0, len(raws))
	for _, raw := range raws {
		v, err := upstream.NormalizeMRVersion(raw, at)
		if err != nil {
			a.skipMalformed(kind, err)
			continue
		}
		if seen != nil {
			seen[v.ID] = true
		}
		out = append(out, v)
	}
	return out
}
