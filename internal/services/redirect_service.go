package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/config"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/mirror"
	"github.com/tbourn/go-mod-mirror/internal/repo"
)

// Delivery modes.
const (
	ModeOrigin = "origin"
	ModeMirror = "mirror"
	// ModeProxy is a deprecated alias of ModeOrigin.
	ModeProxy = "proxy"
)

// Tier names where a redirect points.
type Tier string

const (
	TierOrigin Tier = "origin"
	TierMirror Tier = "mirror"
)

// Redirect is a resolved download location with its cache lifetime.
type Redirect struct {
	URL    string
	MaxAge time.Duration
	Tier   Tier
}

// RedirectService resolves file downloads to the mirror tier or the origin
// CDN. It never waits for a refresh: unknown files go to the origin while
// their metadata is fetched in the background.
type RedirectService struct {
	DB         *gorm.DB
	Dispatcher jobs.Dispatcher
	Index      mirror.Index

	Mode          string
	MaxFileSize   int64
	OriginMaxAge  time.Duration
	MirrorMaxAge  time.Duration
	CurseForgeCDN string
	ModrinthCDN   string

	Log zerolog.Logger
}

// NewRedirectService constructs a RedirectService from configuration.
func NewRedirectService(db *gorm.DB, d jobs.Dispatcher, idx mirror.Index, cfg config.RedirectConfig, log zerolog.Logger) *RedirectService {
	if cfg.Mode == ModeProxy {
		log.Warn().Msg("REDIRECT_MODE=proxy is deprecated and behaves as origin")
	}
	return &RedirectService{
		DB:            db,
		Dispatcher:    d,
		Index:         idx,
		Mode:          cfg.Mode,
		MaxFileSize:   cfg.MaxFileSize,
		OriginMaxAge:  cfg.OriginMaxAge,
		MirrorMaxAge:  cfg.MirrorMaxAge,
		CurseForgeCDN: strings.TrimRight(cfg.CurseForgeCDN, "/"),
		ModrinthCDN:   strings.TrimRight(cfg.ModrinthCDN, "/"),
		Log:           log,
	}
}

func (s *RedirectService) sched() scheduler {
	return scheduler{dispatcher: s.Dispatcher, log: s.Log}
}

func (s *RedirectService) origin(u string) Redirect {
	return Redirect{URL: u, MaxAge: s.OriginMaxAge, Tier: TierOrigin}
}

// resolve applies the size gate, then the delivery mode.
func (s *RedirectService) resolve(ctx context.Context, origin, sha1 string, size int64) Redirect {
	if s.MaxFileSize > 0 && size > s.MaxFileSize {
		return s.origin(origin)
	}
	switch s.Mode {
	case ModeMirror:
	case ModeProxy:
		s.Log.Debug().Msg("proxy delivery mode is deprecated; redirecting to origin")
		return s.origin(origin)
	default:
		return s.origin(origin)
	}
	if sha1 == "" || s.Index == nil {
		return s.origin(origin)
	}
	u, err := s.Index.Lookup(ctx, sha1)
	if err != nil {
		if !errors.Is(err, mirror.ErrNotFound) {
			s.Log.Warn().Err(err).Str("sha1", sha1).Msg("mirror lookup failed")
		}
		return s.origin(origin)
	}
	return Redirect{URL: u, MaxAge: s.MirrorMaxAge, Tier: TierMirror}
}

// Modrinth resolves a cdn.modrinth.com style path.
func (s *RedirectService) Modrinth(ctx context.Context, projectID, versionID, filename string) (Redirect, error) {
	if err := ValidateModrinthKey(projectID); err != nil {
		return Redirect{}, err
	}
	if err := ValidateModrinthKey(versionID); err != nil {
		return Redirect{}, err
	}
	if err := validateFilename(filename); err != nil {
		return Redirect{}, err
	}
	origin := fmt.Sprintf("%s/data/%s/versions/%s/%s", s.ModrinthCDN, projectID, versionID, url.PathEscape(filename))

	f, err := repo.GetMRFileByName(ctx, s.DB, versionID, filename)
	if errors.Is(err, repo.ErrNotFound) {
		s.sched().submit(ctx, jobs.NewJob(jobs.KindMRVersions, []string{versionID}, nil))
		return s.origin(origin), nil
	}
	if err != nil {
		return Redirect{}, err
	}
	if f.URL != "" {
		origin = f.URL
	}
	return s.resolve(ctx, origin, f.SHA1, f.Size), nil
}

// CurseForge resolves an edge.forgecdn.net style path, where the file id is
// split into its thousands and its remainder.
func (s *RedirectService) CurseForge(ctx context.Context, part1, part2, filename string) (Redirect, error) {
	hi, err1 := strconv.ParseInt(part1, 10, 64)
	lo, err2 := strconv.ParseInt(part2, 10, 64)
	if err1 != nil || err2 != nil || hi < 0 || lo < 0 || lo > 999 {
		return Redirect{}, invalid("file path %s/%s", part1, part2)
	}
	fileID := hi*1000 + lo
	if err := ValidateFileID(fileID); err != nil {
		return Redirect{}, err
	}
	if err := validateFilename(filename); err != nil {
		return Redirect{}, err
	}
	origin := fmt.Sprintf("%s/files/%d/%d/%s", s.CurseForgeCDN, hi, lo, url.PathEscape(filename))

	f, err := repo.GetCFFile(ctx, s.DB, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		s.sched().submit(ctx, jobs.NewIntJob(jobs.KindCFFiles, []int64{fileID}, nil))
		return s.origin(origin), nil
	}
	if err != nil {
		return Redirect{}, err
	}
	if !f.Found {
		return s.origin(origin), nil
	}
	return s.resolve(ctx, origin, f.SHA1, f.FileLength), nil
}

func validateFilename(name string) error {
	if name == "" || len(name) > 255 || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return invalid("filename %q", name)
	}
	return nil
}
