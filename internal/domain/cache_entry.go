package domain

import "time"

// CacheEntry is a row of the SQL-backed key-value store. It holds memoized
// responses and dispatcher dedup markers when no Redis is configured.
// A nil ExpiresAt never expires.
type CacheEntry struct {
	Key       string     `gorm:"type:varchar(255);primaryKey"`
	Value     []byte     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (CacheEntry) TableName() string { return "cache_entries" }

// Expired reports whether the entry is past its expiry at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// MirrorFile records that a file with the given sha1 is available on the
// mirror tier at Path.
type MirrorFile struct {
	SHA1  string    `json:"sha1"  gorm:"type:char(40);primaryKey;index:idx_mirror_files_mtime_sha1,priority:2"`
	Size  int64     `json:"size"`
	Path  string    `json:"path"  gorm:"type:varchar(512);not null"`
	MTime time.Time `json:"mtime" gorm:"not null;index:idx_mirror_files_mtime_sha1,priority:1"`
}

// TableName returns the database table name for MirrorFile.
func (MirrorFile) TableName() string { return "mirror_files" }
