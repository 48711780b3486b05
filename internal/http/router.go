// Package httpapi mounts the mirrored CurseForge and Modrinth APIs on a gin
// engine together with the middleware chain, health, stats, metrics and
// swagger routes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-mod-mirror/internal/config"
	"github.com/tbourn/go-mod-mirror/internal/http/handlers"
	"github.com/tbourn/go-mod-mirror/internal/http/middleware"
	"github.com/tbourn/go-mod-mirror/internal/kv"
)

// Deps are the services the routes are bound to. Memo may be nil, which
// disables response memoization.
type Deps struct {
	CurseForge handlers.CurseForgeService
	Modrinth   handlers.ModrinthService
	Files      handlers.RedirectService
	Inventory  handlers.InventoryService
	Stats      handlers.StatsService
	Memo       kv.Store
}

// Route prefixes of the two mirrored APIs.
const (
	curseForgePrefix = "/curseforge"
	modrinthPrefix   = "/modrinth"
)

// memoRoutes lists the memoized GET routes with their entry lifetimes.
// Redirects and the mirror inventory are never memoized.
func memoRoutes(cfg config.MemoConfig) map[string]time.Duration {
	lookup, search := cfg.TTL, cfg.SearchTTL
	return map[string]time.Duration{
		curseForgePrefix + "/v1/mods/:modId":                            lookup,
		curseForgePrefix + "/v1/mods/:modId/files":                      lookup,
		curseForgePrefix + "/v1/mods/:modId/files/:fileId":              lookup,
		curseForgePrefix + "/v1/mods/:modId/files/:fileId/download-url": lookup,
		curseForgePrefix + "/v1/mods/search":                            search,
		modrinthPrefix + "/v2/project/:idslug":                          lookup,
		modrinthPrefix + "/v2/project/:idslug/version":                  lookup,
		modrinthPrefix + "/v2/projects":                                 lookup,
		modrinthPrefix + "/v2/version/:id":                              lookup,
		modrinthPrefix + "/v2/versions":                                 lookup,
		modrinthPrefix + "/v2/version_file/:hash":                       lookup,
		modrinthPrefix + "/v2/search":                                   search,
	}
}

// RegisterRoutes installs the middleware chain and every route on r.
//
// Chain, outermost first: otelgin, RequestID, RedactingLogger, Recovery,
// body limit, Metrics, CORS, SecurityHeaders, gzip, Memoize, rate limiter.
// Memoize sits after gzip so entries are stored uncompressed and before the
// limiter so replayed answers spend no tokens.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.RedactingLogger(middleware.RedactOptions{}),
		middleware.Recovery(),
		limitBody(maxBodyBytes),
		middleware.Metrics(),
	)
	// Registered ahead of CORS and security so scrapes skip them.
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	r.Use(
		middleware.SecurityHeaders(middleware.SecurityOptions{
			EnableHSTS:   cfg.Security.EnableHSTS,
			HSTSMaxAge:   cfg.Security.HSTSMaxAge,
			EnablePolicy: true,
			NoStore:      []string{"/stats"},
		}),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
		middleware.Memoize(deps.Memo, middleware.MemoOptions{Routes: memoRoutes(cfg.Memo)}),
		middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClient(), "/health", "/swagger/").Handler(),
	)

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.CurseForge, deps.Modrinth, deps.Files, deps.Inventory, deps.Stats)

	r.GET("/stats", h.Stats)

	// CurseForge v1
	cf := r.Group(curseForgePrefix + "/v1")
	{
		cf.GET("/mods/search", h.CFSearch)
		cf.GET("/mods/:modId", h.CFGetMod)
		cf.POST("/mods", h.CFGetMods)
		cf.GET("/mods/:modId/files", h.CFGetModFiles)
		cf.GET("/mods/:modId/files/:fileId", h.CFGetModFile)
		cf.GET("/mods/:modId/files/:fileId/download-url", h.CFGetDownloadURL)
		cf.POST("/mods/files", h.CFGetFiles)
		cf.POST("/fingerprints", h.CFMatchFingerprints)
		cf.POST("/fingerprints/432", h.CFMatchFingerprints)
	}

	// Modrinth v2
	mr := r.Group(modrinthPrefix + "/v2")
	{
		mr.GET("/search", h.MRSearch)
		mr.GET("/project/:idslug", h.MRGetProject)
		mr.GET("/project/:idslug/version", h.MRGetProjectVersions)
		mr.GET("/projects", h.MRGetProjects)
		mr.GET("/version/:id", h.MRGetVersion)
		mr.GET("/versions", h.MRGetVersions)
		mr.GET("/version_file/:hash", h.MRGetVersionFile)
		mr.POST("/version_files", h.MRGetVersionFiles)
	}

	// Downloads
	r.GET("/data/:projectId/versions/:versionId/:filename", h.ModrinthDownload)
	r.GET("/files/mirror", h.ListMirror)
	r.GET("/files/:fileId1/:fileId2/:filename", h.CurseForgeDownload)
}

// maxBodyBytes caps request bodies. The largest body is a batch of hashes.
const maxBodyBytes = 1 << 20

// corsHandlers pins Access-Control-Allow-Origin before gin-contrib/cors runs:
// "*" when no allowlist is configured, otherwise the request Origin when it is
// allowed. The mirror is credential-free, so AllowCredentials stays off.
func corsHandlers(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", handlers.HeaderTrustable, middleware.HeaderCache},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Writer.Header().Set("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody wraps request bodies in http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
