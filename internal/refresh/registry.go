// Package refresh implements the refresh actors: one per job kind, each
// fetching from an origin API, normalizing the payload and upserting it into
// the entity store. Not-found answers become negative records; parent kinds
// submit follow-up jobs for their children.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/upstream"
)

// CurseForgeAPI is the subset of the CurseForge client the actors call.
type CurseForgeAPI interface {
	Mod(ctx context.Context, id int64) (json.RawMessage, error)
	Mods(ctx context.Context, ids []int64) ([]json.RawMessage, error)
	ModFiles(ctx context.Context, modID int64) ([]json.RawMessage, error)
	Files(ctx context.Context, ids []int64) ([]json.RawMessage, error)
	Fingerprints(ctx context.Context, fps []int64) (*upstream.FingerprintResult, error)
}

// ModrinthAPI is the subset of the Modrinth client the actors call.
type ModrinthAPI interface {
	Project(ctx context.Context, idOrSlug string) (json.RawMessage, error)
	Projects(ctx context.Context, ids []string) ([]json.RawMessage, error)
	ProjectVersions(ctx context.Context, idOrSlug string) ([]json.RawMessage, error)
	Versions(ctx context.Context, ids []string) ([]json.RawMessage, error)
	VersionFiles(ctx context.Context, hashes []string, algorithm string) (map[string]json.RawMessage, error)
}

// Actor refreshes the targets of one job.
type Actor func(ctx context.Context, job jobs.RefreshJob) error

// Actors holds what every actor needs. Dispatcher receives child jobs.
type Actors struct {
	DB         *gorm.DB
	CurseForge CurseForgeAPI
	Modrinth   ModrinthAPI
	Dispatcher jobs.Dispatcher
	Now        func() time.Time
	Log        zerolog.Logger
}

func (a *Actors) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// submit enqueues a follow-up job. Failures only cost freshness.
func (a *Actors) submit(ctx context.Context, job jobs.RefreshJob) {
	if a.Dispatcher == nil || len(job.Targets) == 0 {
		return
	}
	if _, err := a.Dispatcher.Submit(ctx, job); err != nil {
		a.Log.Warn().Err(err).Str("kind", string(job.Kind)).Msg("submit child refresh")
	}
}

func (a *Actors) skipMalformed(kind jobs.Kind, err error) {
	a.Log.Warn().Err(err).Str("kind", string(kind)).Msg("skipping malformed payload")
}

// Registry maps job kinds to actors. It implements jobs.Handler.
type Registry struct {
	actors map[jobs.Kind]Actor
}

// Registry returns the explicit kind → actor table.
func (a *Actors) Registry() *Registry {
	return &Registry{actors: map[jobs.Kind]Actor{
		jobs.KindCFMods:            a.cfMods,
		jobs.KindCFModFiles:        a.cfModFiles,
		jobs.KindCFFiles:           a.cfFiles,
		jobs.KindCFFingerprints:    a.cfFingerprints,
		jobs.KindMRProjects:        a.mrProjects,
		jobs.KindMRProjectVersions: a.mrProjectVersions,
		jobs.KindMRVersions:        a.mrVersions,
		jobs.KindMRHashes:          a.mrHashes,
	}}
}

// Run implements jobs.Handler.
func (r *Registry) Run(ctx context.Context, job jobs.RefreshJob) error {
	act, ok := r.actors[job.Kind]
	if !ok {
		return fmt.Errorf("refresh: unknown job kind %q", job.Kind)
	}
	if len(job.Targets) == 0 {
		return nil
	}
	return act(ctx, job)
}

// Kinds lists the registered kinds in a stable order.
func (r *Registry) Kinds() []jobs.Kind {
	out := make([]jobs.Kind, 0, len(r.actors))
	for k := range r.actors {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// missing returns the requested keys not in seen, in request order.
func missing[K comparable](requested []K, seen map[K]bool) []K {
	var out []K
	for _, k := range requested {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}
