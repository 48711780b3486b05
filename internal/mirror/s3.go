package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/utils"
)

// S3Config configures an S3Index.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	// BaseURL, when set, is a public address of the bucket; otherwise
	// lookups answer presigned URLs valid for PresignTTL.
	BaseURL    string
	PresignTTL time.Duration

	// Client overrides the client built from Endpoint and credentials.
	Client *minio.Client
}

// S3Index serves an inventory stored as one object per file, named
// <prefix><sha1>.
type S3Index struct {
	client     *minio.Client
	bucket     string
	prefix     string
	baseURL    string
	presignTTL time.Duration
}

// NewS3Index constructs an S3Index.
func NewS3Index(cfg S3Config) (*S3Index, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("invalid config: bucket is required")
	}
	client := cfg.Client
	if client == nil {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("invalid config: endpoint is required")
		}
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Index{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     prefix,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		presignTTL: ttl,
	}, nil
}

func (s *S3Index) key(sha1 string) string { return s.prefix + sha1 }

func translate(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrNotFound
	}
	return fmt.Errorf("minio: %w", err)
}

// Lookup implements Index.
func (s *S3Index) Lookup(ctx context.Context, sha1 string) (string, error) {
	key := s.key(sha1)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", translate(err)
	}
	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, nil)
	if err != nil {
		return "", translate(err)
	}
	return u.String(), nil
}

type s3Cursor struct {
	After string `json:"k"`
}

// List implements Index. Objects are enumerated in key order, so the cursor
// is the last key returned.
func (s *S3Index) List(ctx context.Context, cursor string, limit int) (Page, error) {
	var c s3Cursor
	if err := utils.DecodeCursor(cursor, &c); err != nil {
		return Page{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	page := Page{Files: make([]domain.MirrorFile, 0, limit)}
	opts := minio.ListObjectsOptions{
		Prefix:     s.prefix,
		StartAfter: c.After,
		Recursive:  true,
		MaxKeys:    limit,
	}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return Page{}, translate(obj.Err)
		}
		sha1 := strings.TrimPrefix(obj.Key, s.prefix)
		if sha1 == "" || strings.Contains(sha1, "/") {
			continue
		}
		page.Files = append(page.Files, domain.MirrorFile{
			SHA1:  sha1,
			Size:  obj.Size,
			Path:  obj.Key,
			MTime: obj.LastModified.UTC(),
		})
		if len(page.Files) == limit {
			next, err := utils.EncodeCursor(s3Cursor{After: obj.Key})
			if err != nil {
				return Page{}, err
			}
			page.Next = next
			break
		}
	}
	return page, nil
}
