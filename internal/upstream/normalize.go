package upstream

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/go-mod-mirror/internal/domain"
)

// CurseForge hash algorithm id for SHA-1.
const cfAlgoSHA1 = 1

func found(at time.Time) domain.SyncMeta {
	return domain.SyncMeta{Found: true, SyncedAt: at}
}

func malformed(kind string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %v", kind, ErrMalformed, err)
	}
	return fmt.Errorf("%s: %w: missing id", kind, ErrMalformed)
}

// NormalizeCFMod maps a CurseForge mod payload into a CFMod.
func NormalizeCFMod(raw json.RawMessage, at time.Time) (domain.CFMod, error) {
	var h struct {
		ID   int64  `json:"id"`
		Slug string `json:"slug"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return domain.CFMod{}, malformed("curseforge mod", err)
	}
	if h.ID <= 0 {
		return domain.CFMod{}, malformed("curseforge mod", nil)
	}
	return domain.CFMod{
		ID: h.ID, Slug: h.Slug, Name: h.Name,
		Payload: datatypes.JSON(raw), SyncMeta: found(at),
	}, nil
}

// NormalizeCFFile maps a CurseForge file payload into a CFFile.
func NormalizeCFFile(raw json.RawMessage, at time.Time) (domain.CFFile, error) {
	var h struct {
		ID              int64  `json:"id"`
		ModID           int64  `json:"modId"`
		FileName        string `json:"fileName"`
		FileLength      int64  `json:"fileLength"`
		DownloadURL     string `json:"downloadUrl"`
		FileFingerprint int64  `json:"fileFingerprint"`
		Hashes          []struct {
			Value string `json:"value"`
			Algo  int    `json:"algo"`
		} `json:"hashes"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return domain.CFFile{}, malformed("curseforge file", err)
	}
	if h.ID <= 0 || h.ModID <= 0 {
		return domain.CFFile{}, malformed("curseforge file", nil)
	}
	f := domain.CFFile{
		ID: h.ID, ModID: h.ModID, FileName: h.FileName, FileLength: h.FileLength,
		DownloadURL: h.DownloadURL, Fingerprint: h.FileFingerprint,
		Payload: datatypes.JSON(raw), SyncMeta: found(at),
	}
	for _, hs := range h.Hashes {
		if hs.Algo == cfAlgoSHA1 {
			f.SHA1 = hs.Value
			break
		}
	}
	return f, nil
}

// NormalizeCFFingerprint builds the fingerprint mapping for a matched file.
func NormalizeCFFingerprint(m FingerprintMatch, at time.Time) (domain.CFFingerprint, domain.CFFile, error) {
	file, err := NormalizeCFFile(m.File, at)
	if err != nil {
		return domain.CFFingerprint{}, domain.CFFile{}, err
	}
	if file.Fingerprint == 0 {
		return domain.CFFingerprint{}, domain.CFFile{}, malformed("curseforge fingerprint", nil)
	}
	fp := domain.CFFingerprint{
		Fingerprint: file.Fingerprint,
		FileID:      file.ID,
		ModID:       file.ModID,
		Payload:     datatypes.JSON(m.File),
		SyncMeta:    found(at),
	}
	return fp, file, nil
}

// NormalizeMRProject maps a Modrinth project payload into an MRProject.
func NormalizeMRProject(raw json.RawMessage, at time.Time) (domain.MRProject, error) {
	var h struct {
		ID       string   `json:"id"`
		Slug     string   `json:"slug"`
		Title    string   `json:"title"`
		Versions []string `json:"versions"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return domain.MRProject{}, malformed("modrinth project", err)
	}
	if h.ID == "" {
		return domain.MRProject{}, malformed("modrinth project", nil)
	}
	return domain.MRProject{
		ID: h.ID, Slug: domain.FoldSlug(h.Slug), Title: h.Title,
		Versions: datatypes.JSONSlice[string](h.Versions),
		Payload:  datatypes.JSON(raw), SyncMeta: found(at),
	}, nil
}

// NormalizeMRVersion maps a Modrinth version payload into an MRVersion with
// its embedded file list.
func NormalizeMRVersion(raw json.RawMessage, at time.Time) (domain.MRVersion, error) {
	var h struct {
		ID        string `json:"id"`
		ProjectID string `json:"project_id"`
		Files     []struct {
			Hashes struct {
				SHA1   string `json:"sha1"`
				SHA512 string `json:"sha512"`
			} `json:"hashes"`
			URL      string `json:"url"`
			Filename string `json:"filename"`
			Primary  bool   `json:"primary"`
			Size     int64  `json:"size"`
		} `json:"files"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return domain.MRVersion{}, malformed("modrinth version", err)
	}
	if h.ID == "" {
		return domain.MRVersion{}, malformed("modrinth version", nil)
	}
	files := make([]domain.VersionFile, 0, len(h.Files))
	for _, f := range h.Files {
		files = append(files, domain.VersionFile{
			SHA1: f.Hashes.SHA1, SHA512: f.Hashes.SHA512,
			URL: f.URL, Filename: f.Filename, Primary: f.Primary, Size: f.Size,
		})
	}
	return domain.MRVersion{
		ID: h.ID, ProjectID: h.ProjectID,
		Files:   datatypes.JSONSlice[domain.VersionFile](files),
		Payload: datatypes.JSON(raw), SyncMeta: found(at),
	}, nil
}
