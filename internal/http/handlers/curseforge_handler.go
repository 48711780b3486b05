// CurseForge HTTP handlers.
//
// These endpoints mirror the CurseForge v1 API under /curseforge:
//   - GET  /v1/mods/{modId}
//   - POST /v1/mods
//   - GET  /v1/mods/{modId}/files
//   - GET  /v1/mods/{modId}/files/{fileId}
//   - GET  /v1/mods/{modId}/files/{fileId}/download-url
//   - POST /v1/mods/files
//   - POST /v1/fingerprints (and /v1/fingerprints/432)
//   - GET  /v1/mods/search (passthrough)
//
// Bodies keep the origin's {"data": ...} envelope.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/services"
	"github.com/tbourn/go-mod-mirror/internal/utils"
)

//
// DTOs
//

// CFDataResponse is the CurseForge response envelope.
type CFDataResponse struct {
	Data any `json:"data"`
}

// CFPagination mirrors the CurseForge pagination block.
type CFPagination struct {
	Index       int   `json:"index"`
	PageSize    int   `json:"pageSize"`
	ResultCount int   `json:"resultCount"`
	TotalCount  int64 `json:"totalCount"`
}

// CFFilesPage is the body of a mod file listing.
type CFFilesPage struct {
	Data       []any        `json:"data"`
	Pagination CFPagination `json:"pagination"`
}

// CFModsRequest is the body of POST /v1/mods.
type CFModsRequest struct {
	ModIDs []int64 `json:"modIds" binding:"required" example:"238222,306612"`
}

// CFFilesRequest is the body of POST /v1/mods/files.
type CFFilesRequest struct {
	FileIDs []int64 `json:"fileIds" binding:"required" example:"4567123"`
}

// CFFingerprintsRequest is the body of POST /v1/fingerprints.
type CFFingerprintsRequest struct {
	Fingerprints []int64 `json:"fingerprints" binding:"required" example:"3608855426"`
}

// CFFingerprintMatch is one exact match in a fingerprint response.
type CFFingerprintMatch struct {
	ID          int64 `json:"id"`
	File        any   `json:"file"`
	LatestFiles []any `json:"latestFiles"`
}

// CFFingerprintsResult is the data block of a fingerprint response.
type CFFingerprintsResult struct {
	IsCacheBuilt          bool                 `json:"isCacheBuilt"`
	ExactMatches          []CFFingerprintMatch `json:"exactMatches"`
	ExactFingerprints     []int64              `json:"exactFingerprints"`
	InstalledFingerprints []int64              `json:"installedFingerprints"`
	UnmatchedFingerprints []int64              `json:"unmatchedFingerprints"`
}

const (
	cfDefaultPageSize = 50
	cfMaxPageSize     = 10000
)

func cfMod(m *domain.CFMod) any   { return CFDataResponse{Data: payload(m.Payload, m)} }
func cfFile(f *domain.CFFile) any { return CFDataResponse{Data: payload(f.Payload, f)} }

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidIdentity, name+" must be numeric")
		return 0, false
	}
	return id, true
}

//
// Handlers
//

// CFGetMod godoc
// @ID          cfGetMod
// @Summary     Get a CurseForge mod
// @Description Serves the mod from the mirror. Unknown or stale mods are refreshed in the background.
// @Tags        CurseForge
// @Produce     json
// @Param       modId  path   int   true   "Mod id"  minimum(30000)
// @Param       force  query  bool  false  "Refresh now and answer 202"
// @Success     200  {object}  handlers.CFDataResponse
// @Header      200  {string}  Trustable  "true when every entity is fresh"
// @Success     202  {object}  handlers.ErrorResponse  "Refresh accepted"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or not cached yet"
// @Router      /curseforge/v1/mods/{modId} [get]
func (h *Handlers) CFGetMod(c *gin.Context) {
	id, valid := pathID(c, "modId")
	if !valid {
		return
	}
	res, err := h.cf.Mod(c.Request.Context(), id, forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	writePoint(c, res, cfMod)
}

// CFGetMods godoc
// @ID          cfGetMods
// @Summary     Get CurseForge mods in bulk
// @Tags        CurseForge
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CFModsRequest  true  "Mod ids"
// @Success     200  {object}  handlers.CFDataResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /curseforge/v1/mods [post]
func (h *Handlers) CFGetMods(c *gin.Context) {
	var req CFModsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.cf.Mods(c.Request.Context(), req.ModIDs, forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	if res.Accepted {
		accepted(c)
		return
	}
	setTrust(c, res.Trustable)
	ok(c, http.StatusOK, CFDataResponse{Data: payloads(res.Items, func(m domain.CFMod) datatypes.JSON { return m.Payload })})
}

// CFGetModFiles godoc
// @ID          cfGetModFiles
// @Summary     List the files of a CurseForge mod
// @Tags        CurseForge
// @Produce     json
// @Param       modId     path   int  true   "Mod id"
// @Param       index     query  int  false  "Offset"     default(0)
// @Param       pageSize  query  int  false  "Page size"  default(50)
// @Success     200  {object}  handlers.CFFilesPage
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /curseforge/v1/mods/{modId}/files [get]
func (h *Handlers) CFGetModFiles(c *gin.Context) {
	modID, valid := pathID(c, "modId")
	if !valid {
		return
	}
	index, size := utils.OffsetPage(c.Query("index"), c.Query("pageSize"), cfDefaultPageSize, cfMaxPageSize)

	l, err := h.cf.ModFiles(c.Request.Context(), modID, index, size, forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	writeListing(c, l, func(l services.Listing[domain.CFFile]) any {
		return CFFilesPage{
			Data: payloads(l.Items, func(f domain.CFFile) datatypes.JSON { return f.Payload }),
			Pagination: CFPagination{
				Index:       index,
				PageSize:    size,
				ResultCount: len(l.Items),
				TotalCount:  l.Total,
			},
		}
	})
}

// CFGetModFile godoc
// @ID          cfGetModFile
// @Summary     Get one file of a CurseForge mod
// @Tags        CurseForge
// @Produce     json
// @Param       modId   path  int  true  "Mod id"
// @Param       fileId  path  int  true  "File id"
// @Success     200  {object}  handlers.CFDataResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /curseforge/v1/mods/{modId}/files/{fileId} [get]
func (h *Handlers) CFGetModFile(c *gin.Context) {
	res, valid := h.modFile(c)
	if !valid {
		return
	}
	writePoint(c, res, cfFile)
}

// CFGetDownloadURL godoc
// @ID          cfGetDownloadURL
// @Summary     Get the download URL of a CurseForge file
// @Tags        CurseForge
// @Produce     json
// @Param       modId   path  int  true  "Mod id"
// @Param       fileId  path  int  true  "File id"
// @Success     200  {object}  handlers.CFDataResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /curseforge/v1/mods/{modId}/files/{fileId}/download-url [get]
func (h *Handlers) CFGetDownloadURL(c *gin.Context) {
	res, valid := h.modFile(c)
	if !valid {
		return
	}
	writePoint(c, res, func(f *domain.CFFile) any { return CFDataResponse{Data: f.DownloadURL} })
}

func (h *Handlers) modFile(c *gin.Context) (services.Result[domain.CFFile], bool) {
	modID, valid := pathID(c, "modId")
	if !valid {
		return services.Result[domain.CFFile]{}, false
	}
	fileID, valid := pathID(c, "fileId")
	if !valid {
		return services.Result[domain.CFFile]{}, false
	}
	res, err := h.cf.File(c.Request.Context(), modID, fileID, forced(c))
	if err != nil {
		lookupError(c, err)
		return res, false
	}
	return res, true
}

// CFGetFiles godoc
// @ID          cfGetFiles
// @Summary     Get CurseForge files in bulk
// @Tags        CurseForge
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CFFilesRequest  true  "File ids"
// @Success     200  {object}  handlers.CFDataResponse
// @Router      /curseforge/v1/mods/files [post]
func (h *Handlers) CFGetFiles(c *gin.Context) {
	var req CFFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.cf.Files(c.Request.Context(), req.FileIDs, forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	if res.Accepted {
		accepted(c)
		return
	}
	setTrust(c, res.Trustable)
	ok(c, http.StatusOK, CFDataResponse{Data: payloads(res.Items, func(f domain.CFFile) datatypes.JSON { return f.Payload })})
}

// CFMatchFingerprints godoc
// @ID          cfMatchFingerprints
// @Summary     Match files by fingerprint
// @Description Fingerprints the mirror has not resolved yet are neither matched nor unmatched; the response is then untrustable.
// @Tags        CurseForge
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CFFingerprintsRequest  true  "Murmur2 fingerprints"
// @Success     200  {object}  handlers.CFDataResponse
// @Router      /curseforge/v1/fingerprints [post]
func (h *Handlers) CFMatchFingerprints(c *gin.Context) {
	var req CFFingerprintsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.cf.Fingerprints(c.Request.Context(), req.Fingerprints, forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	if res.Accepted {
		accepted(c)
		return
	}
	out := CFFingerprintsResult{
		IsCacheBuilt:          true,
		ExactMatches:          make([]CFFingerprintMatch, 0, len(res.Matches)),
		ExactFingerprints:     make([]int64, 0, len(res.Matches)),
		InstalledFingerprints: req.Fingerprints,
		UnmatchedFingerprints: res.Unmatched,
	}
	for _, m := range res.Matches {
		out.ExactMatches = append(out.ExactMatches, CFFingerprintMatch{
			ID:          m.ModID,
			File:        payload(m.File.Payload, m.File),
			LatestFiles: []any{},
		})
		out.ExactFingerprints = append(out.ExactFingerprints, m.Fingerprint)
	}
	setTrust(c, res.Trustable)
	ok(c, http.StatusOK, CFDataResponse{Data: out})
}

// CFSearch godoc
// @ID          cfSearch
// @Summary     Search CurseForge mods
// @Description Forwarded to CurseForge; results are memoized but never stored as entities.
// @Tags        CurseForge
// @Produce     json
// @Success     200  {object}  handlers.CFDataResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /curseforge/v1/mods/search [get]
func (h *Handlers) CFSearch(c *gin.Context) {
	passthrough(c, h.cf.Search)
}
