package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/repo"
	"github.com/tbourn/go-mod-mirror/internal/upstream"
)

// cfMods refreshes mods and expands each found mod into a file-list job.
func (a *Actors) cfMods(ctx context.Context, job jobs.RefreshJob) error {
	ids, err := job.Ints()
	if err != nil {
		return err
	}
	at := a.now()

	var raws []json.RawMessage
	if len(ids) == 1 {
		raw, err := a.CurseForge.Mod(ctx, ids[0])
		if errors.Is(err, upstream.ErrNotFound) {
			return repo.MarkCFModsMissing(ctx, a.DB, ids, at)
		}
		if err != nil {
			return err
		}
		raws = []json.RawMessage{raw}
	} else if raws, err = a.CurseForge.Mods(ctx, ids); err != nil {
		return err
	}

	seen := map[int64]bool{}
	mods := make([]domain.CFMod, 0, len(raws))
	for _, raw := range raws {
		m, err := upstream.NormalizeCFMod(raw, at)
		if err != nil {
			a.skipMalformed(job.Kind, err)
			continue
		}
		seen[m.ID] = true
		mods = append(mods, m)
	}
	if err := repo.UpsertCFMods(ctx, a.DB, mods); err != nil {
		return fmt.Errorf("upsert mods: %w", err)
	}
	if err := repo.MarkCFModsMissing(ctx, a.DB, missing(ids, seen), at); err != nil {
		return fmt.Errorf("mark mods missing: %w", err)
	}
	for _, m := range mods {
		a.submit(ctx, jobs.NewIntJob(jobs.KindCFModFiles, []int64{m.ID}, nil))
	}
	return nil
}

// cfModFiles refreshes every file of one mod.
func (a *Actors) cfModFiles(ctx context.Context, job jobs.RefreshJob) error {
	ids, err := job.Ints()
	if err != nil {
		return err
	}
	at := a.now()
	for _, modID := range ids {
		raws, err := a.CurseForge.ModFiles(ctx, modID)
		if errors.Is(err, upstream.ErrNotFound) {
			if err := repo.MarkCFModsMissing(ctx, a.DB, []int64{modID}, at); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		files := make([]domain.CFFile, 0, len(raws))
		for _, raw := range raws {
			f, err := upstream.NormalizeCFFile(raw, at)
			if err != nil {
				a.skipMalformed(job.Kind, err)
				continue
			}
			files = append(files, f)
		}
		if err := repo.UpsertCFFiles(ctx, a.DB, files); err != nil {
			return fmt.Errorf("upsert files of mod %d: %w", modID, err)
		}
	}
	return nil
}

// cfFiles refreshes files by id in one batch call.
func (a *Actors) cfFiles(ctx context.Context, job jobs.RefreshJob) error {
	ids, err := job.Ints()
	if err != nil {
		return err
	}
	at := a.now()
	raws, err := a.CurseForge.Files(ctx, ids)
	if errors.Is(err, upstream.ErrNotFound) {
		return repo.MarkCFFilesMissing(ctx, a.DB, ids, at)
	}
	if err != nil {
		return err
	}

	seen := map[int64]bool{}
	files := make([]domain.CFFile, 0, len(raws))
	for _, raw := range raws {
		f, err := upstream.NormalizeCFFile(raw, at)
		if err != nil {
			a.skipMalformed(job.Kind, err)
			continue
		}
		seen[f.ID] = true
		files = append(files, f)
	}
	if err := repo.UpsertCFFiles(ctx, a.DB, files); err != nil {
		return fmt.Errorf("upsert files: %w", err)
	}
	return repo.MarkCFFilesMissing(ctx, a.DB, missing(ids, seen), at)
}

// cfFingerprints maps fingerprints to files. Each match also refreshes the
// owning mod's file list so the file is addressable by id.
func (a *Actors) cfFingerprints(ctx context.Context, job jobs.RefreshJob) error {
	fps, err := job.Ints()
	if err != nil {
		return err
	}
	at := a.now()
	res, err := a.CurseForge.Fingerprints(ctx, fps)
	if err != nil {
		return err
	}

	seen := map[int64]bool{}
	var (
		mappings []domain.CFFingerprint
		files    []domain.CFFile
		modIDs   []int64
	)
	for _, m := range res.ExactMatches {
		fp, file, err := upstream.NormalizeCFFingerprint(m, at)
		if err != nil {
			a.skipMalformed(job.Kind, err)
			continue
		}
		seen[fp.Fingerprint] = true
		mappings = append(mappings, fp)
		files = append(files, file)
		modIDs = append(modIDs, file.ModID)
	}
	if err := repo.UpsertCFFiles(ctx, a.DB, files); err != nil {
		return fmt.Errorf("upsert matched files: %w", err)
	}
	if err := repo.UpsertCFFingerprints(ctx, a.DB, mappings); err != nil {
		return fmt.Errorf("upsert fingerprints: %w", err)
	}
	// Unmatched and silently omitted fingerprints are both unknown upstream.
	if err := repo.MarkCFFingerprintsMissing(ctx, a.DB, missing(fps, seen), at); err != nil {
		return fmt.Errorf("mark fingerprints missing: %w", err)
	}
	for _, id := range modIDs {
		a.submit(ctx, jobs.NewIntJob(jobs.KindCFModFiles, []int64{id}, nil))
	}
	return nil
}
