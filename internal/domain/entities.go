// Package domain defines the persistence models for mirrored registry
// entities. Every entity carries SyncMeta so the freshness of a record can be
// judged without looking at its payload.
package domain

import (
	"time"

	"golang.org/x/text/cases"
	"gorm.io/datatypes"
)

// SyncMeta records the outcome of the last refresh of an entity.
//
// Found is false for negative-cache records: upstream authoritatively reported
// the entity does not exist. SyncedAt only ever moves forward.
type SyncMeta struct {
	Found    bool      `json:"-" gorm:"not null"`
	SyncedAt time.Time `json:"-" gorm:"not null;index"`
}

// Sync exposes the metadata of any entity embedding SyncMeta.
func (m SyncMeta) Sync() SyncMeta { return m }

// Synced is implemented by every entity kind.
type Synced interface {
	Sync() SyncMeta
}

// CFMod is a CurseForge project ("mod").
type CFMod struct {
	ID      int64          `json:"id"   gorm:"primaryKey;autoIncrement:false"`
	Slug    string         `json:"slug" gorm:"type:varchar(128);index"`
	Name    string         `json:"name" gorm:"type:varchar(255)"`
	Payload datatypes.JSON `json:"-"`
	SyncMeta
}

// TableName returns the database table name for CFMod.
func (CFMod) TableName() string { return "cf_mods" }

// CFFile is a single downloadable file of a CurseForge mod.
type CFFile struct {
	ID          int64          `json:"id"          gorm:"primaryKey;autoIncrement:false"`
	ModID       int64          `json:"mod_id"      gorm:"not null;index"`
	FileName    string         `json:"file_name"   gorm:"type:varchar(255)"`
	FileLength  int64          `json:"file_length"`
	SHA1        string         `json:"sha1"        gorm:"type:char(40);index"`
	DownloadURL string         `json:"download_url"`
	Fingerprint int64          `json:"fingerprint" gorm:"index"`
	Payload     datatypes.JSON `json:"-"`
	SyncMeta
}

// TableName returns the database table name for CFFile.
func (CFFile) TableName() string { return "cf_files" }

// CFFingerprint maps a CurseForge murmur2 fingerprint to the file it was
// computed from. Once found, the mapping never changes.
type CFFingerprint struct {
	Fingerprint int64          `json:"fingerprint" gorm:"primaryKey;autoIncrement:false"`
	FileID      int64          `json:"file_id"     gorm:"index"`
	ModID       int64          `json:"mod_id"`
	Payload     datatypes.JSON `json:"-"`
	SyncMeta
}

// TableName returns the database table name for CFFingerprint.
func (CFFingerprint) TableName() string { return "cf_fingerprints" }

// MRProject is a Modrinth project. Versions holds the ordered version ids as
// reported by upstream.
type MRProject struct {
	ID       string                      `json:"id"       gorm:"type:varchar(64);primaryKey"`
	Slug     string                      `json:"slug"     gorm:"type:varchar(128);index"`
	Title    string                      `json:"title"    gorm:"type:varchar(255)"`
	Versions datatypes.JSONSlice[string] `json:"versions"`
	Payload  datatypes.JSON              `json:"-"`
	SyncMeta
}

// TableName returns the database table name for MRProject.
func (MRProject) TableName() string { return "mr_projects" }

// FoldSlug returns the canonical form of a Modrinth slug. Slugs resolve
// case-insensitively upstream, so they are stored and matched folded.
func FoldSlug(slug string) string {
	return cases.Fold().String(slug)
}

// VersionFile is the embedded file record of a Modrinth version.
type VersionFile struct {
	SHA1     string `json:"sha1"`
	SHA512   string `json:"sha512"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Primary  bool   `json:"primary"`
	Size     int64  `json:"size"`
}

// MRVersion is a Modrinth version with its embedded file list.
type MRVersion struct {
	ID        string                           `json:"id"         gorm:"type:varchar(64);primaryKey"`
	ProjectID string                           `json:"project_id" gorm:"type:varchar(64);index"`
	Files     datatypes.JSONSlice[VersionFile] `json:"files"`
	Payload   datatypes.JSON                   `json:"-"`
	SyncMeta
}

// TableName returns the database table name for MRVersion.
func (MRVersion) TableName() string { return "mr_versions" }

// MRFile is the hash-addressed projection of a VersionFile. It is always
// written from the same normalized version as the embedded list.
type MRFile struct {
	SHA1      string `json:"sha1"       gorm:"type:varchar(128);primaryKey"`
	SHA512    string `json:"sha512"     gorm:"type:varchar(128);index"`
	VersionID string `json:"version_id" gorm:"type:varchar(64);index:idx_mr_files_version_name,priority:1"`
	ProjectID string `json:"project_id" gorm:"type:varchar(64);index"`
	Filename  string `json:"filename"   gorm:"type:varchar(255);index:idx_mr_files_version_name,priority:2"`
	URL       string `json:"url"`
	Size      int64  `json:"size"`
	Primary   bool   `json:"primary"    gorm:"column:is_primary"`
	SyncMeta
}

// TableName returns the database table name for MRFile.
func (MRFile) TableName() string { return "mr_files" }

// HashFiles projects the embedded file list of v into hash-addressed records
// stamped with meta.
func (v MRVersion) HashFiles(meta SyncMeta) []MRFile {
	out := make([]MRFile, 0, len(v.Files))
	for _, f := range v.Files {
		if f.SHA1 == "" {
			continue
		}
		out = append(out, MRFile{
			SHA1:      f.SHA1,
			SHA512:    f.SHA512,
			VersionID: v.ID,
			ProjectID: v.ProjectID,
			Filename:  f.Filename,
			URL:       f.URL,
			Size:      f.Size,
			Primary:   f.Primary,
			SyncMeta:  meta,
		})
	}
	return out
}
