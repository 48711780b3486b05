// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they parse identities, call the lookup
// services and translate results into the origin APIs' response shapes plus
// the mirror's Trustable header. A lookup never waits for a refresh.
package handlers

import (
	"context"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/http/middleware"
	"github.com/tbourn/go-mod-mirror/internal/mirror"
	"github.com/tbourn/go-mod-mirror/internal/repo"
	"github.com/tbourn/go-mod-mirror/internal/services"
)

//
// Service contracts (context-aware)
//

// CurseForgeService answers CurseForge-shaped lookups.
type CurseForgeService interface {
	Mod(ctx context.Context, id int64, force bool) (services.Result[domain.CFMod], error)
	Mods(ctx context.Context, ids []int64, force bool) (services.Results[domain.CFMod], error)
	ModFiles(ctx context.Context, modID int64, offset, limit int, force bool) (services.Listing[domain.CFFile], error)
	File(ctx context.Context, modID, fileID int64, force bool) (services.Result[domain.CFFile], error)
	Files(ctx context.Context, ids []int64, force bool) (services.Results[domain.CFFile], error)
	Fingerprints(ctx context.Context, fps []int64, force bool) (services.FingerprintMatches, error)
	Search(ctx context.Context, query url.Values) ([]byte, error)
}

// ModrinthService answers Modrinth-shaped lookups.
type ModrinthService interface {
	Project(ctx context.Context, key string, force bool) (services.Result[domain.MRProject], error)
	Projects(ctx context.Context, keys []string, force bool) (services.Results[domain.MRProject], error)
	ProjectVersions(ctx context.Context, key string, force bool) (services.Listing[domain.MRVersion], error)
	Version(ctx context.Context, id string, force bool) (services.Result[domain.MRVersion], error)
	Versions(ctx context.Context, ids []string, force bool) (services.Results[domain.MRVersion], error)
	VersionFile(ctx context.Context, hash, algorithm string, force bool) (services.Result[domain.MRVersion], error)
	VersionFiles(ctx context.Context, hashes []string, algorithm string, force bool) (services.HashMatches, error)
	Search(ctx context.Context, query url.Values) ([]byte, error)
}

// RedirectService resolves download paths.
type RedirectService interface {
	Modrinth(ctx context.Context, projectID, versionID, filename string) (services.Redirect, error)
	CurseForge(ctx context.Context, part1, part2, filename string) (services.Redirect, error)
}

// InventoryService lists the mirror tier.
type InventoryService interface {
	List(ctx context.Context, cursor string, limit int) (mirror.Page, error)
}

// StatsService reports per-kind store counts.
type StatsService interface {
	Stats(ctx context.Context) ([]repo.KindStats, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the mirror.
type Handlers struct {
	cf    CurseForgeService
	mr    ModrinthService
	files RedirectService
	inv   InventoryService
	stats StatsService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(cf CurseForgeService, mr ModrinthService, files RedirectService, inv InventoryService, stats StatsService) *Handlers {
	return &Handlers{cf: cf, mr: mr, files: files, inv: inv, stats: stats}
}

//
// Helpers
//

func forced(c *gin.Context) bool { return middleware.IsForced(c, "") }
