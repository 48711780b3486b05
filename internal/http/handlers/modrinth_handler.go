// Modrinth HTTP handlers, mirroring the Modrinth v2 API under /modrinth.
// Bodies are the origin's bare JSON objects and arrays.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/services"
)

// MRVersionFilesRequest is the body of POST /v2/version_files.
type MRVersionFilesRequest struct {
	Hashes    []string `json:"hashes" binding:"required"`
	Algorithm string   `json:"algorithm" example:"sha1"`
}

func mrProject(p *domain.MRProject) any { return payload(p.Payload, p) }
func mrVersion(v *domain.MRVersion) any { return payload(v.Payload, v) }

// idsQuery parses Modrinth's ids=["a","b"] query parameter.
func idsQuery(c *gin.Context) ([]string, bool) {
	var ids []string
	if err := json.Unmarshal([]byte(c.Query("ids")), &ids); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `ids must be a JSON array, e.g. ids=["AANobbMI"]`)
		return nil, false
	}
	return ids, true
}

// MRGetProject godoc
// @ID          mrGetProject
// @Summary     Get a Modrinth project by id or slug
// @Tags        Modrinth
// @Produce     json
// @Param       idslug  path   string  true   "Project id or slug"
// @Param       force   query  bool    false  "Refresh now and answer 202"
// @Success     200  {object}  domain.MRProject
// @Header      200  {string}  Trustable  "true when every entity is fresh"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /modrinth/v2/project/{idslug} [get]
func (h *Handlers) MRGetProject(c *gin.Context) {
	res, err := h.mr.Project(c.Request.Context(), c.Param("idslug"), forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	writePoint(c, res, mrProject)
}

// MRGetProjects godoc
// @ID          mrGetProjects
// @Summary     Get Modrinth projects in bulk
// @Tags        Modrinth
// @Produce     json
// @Param       ids  query  string  true  "JSON array of ids or slugs"
// @Success     200  {array}  domain.MRProject
// @Router      /modrinth/v2/projects [get]
func (h *Handlers) MRGetProjects(c *gin.Context) {
	ids, valid := idsQuery(c)
	if !valid {
		return
	}
	res, err := h.mr.Projects(c.Request.Context(), ids, forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	if res.Accepted {
		accepted(c)
		return
	}
	setTrust(c, res.Trustable)
	ok(c, http.StatusOK, payloads(res.Items, func(p domain.MRProject) datatypes.JSON { return p.Payload }))
}

// MRGetProjectVersions godoc
// @ID          mrGetProjectVersions
// @Summary     List the versions of a Modrinth project
// @Tags        Modrinth
// @Produce     json
// @Param       idslug  path  string  true  "Project id or slug"
// @Success     200  {array}  domain.MRVersion
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /modrinth/v2/project/{idslug}/version [get]
func (h *Handlers) MRGetProjectVersions(c *gin.Context) {
	l, err := h.mr.ProjectVersions(c.Request.Context(), c.Param("idslug"), forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	writeListing(c, l, func(l services.Listing[domain.MRVersion]) any {
		return payloads(l.Items, func(v domain.MRVersion) datatypes.JSON { return v.Payload })
	})
}

// MRGetVersion godoc
// @ID          mrGetVersion
// @Summary     Get a Modrinth version
// @Tags        Modrinth
// @Produce     json
// @Param       id  path  string  true  "Version id"
// @Success     200  {object}  domain.MRVersion
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /modrinth/v2/version/{id} [get]
func (h *Handlers) MRGetVersion(c *gin.Context) {
	res, err := h.mr.Version(c.Request.Context(), c.Param("id"), forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	writePoint(c, res, mrVersion)
}

// MRGetVersions godoc
// @ID          mrGetVersions
// @Summary     Get Modrinth versions in bulk
// @Tags        Modrinth
// @Produce     json
// @Param       ids  query  string  true  "JSON array of version ids"
// @Success     200  {array}  domain.MRVersion
// @Router      /modrinth/v2/versions [get]
func (h *Handlers) MRGetVersions(c *gin.Context) {
	ids, valid := idsQuery(c)
	if !valid {
		return
	}
	res, err := h.mr.Versions(c.Request.Context(), ids, forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	if res.Accepted {
		accepted(c)
		return
	}
	setTrust(c, res.Trustable)
	ok(c, http.StatusOK, payloads(res.Items, func(v domain.MRVersion) datatypes.JSON { return v.Payload }))
}

// MRGetVersionFile godoc
// @ID          mrGetVersionFile
// @Summary     Get the version a file hash belongs to
// @Tags        Modrinth
// @Produce     json
// @Param       hash       path   string  true   "File hash"
// @Param       algorithm  query  string  false  "sha1 or sha512"  default(sha1)
// @Success     200  {object}  domain.MRVersion
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /modrinth/v2/version_file/{hash} [get]
func (h *Handlers) MRGetVersionFile(c *gin.Context) {
	res, err := h.mr.VersionFile(c.Request.Context(), c.Param("hash"), c.Query("algorithm"), forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	writePoint(c, res, mrVersion)
}

// MRGetVersionFiles resolves many hashes at once; the body maps each known
// hash to its version.
func (h *Handlers) MRGetVersionFiles(c *gin.Context) {
	var req MRVersionFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.mr.VersionFiles(c.Request.Context(), req.Hashes, req.Algorithm, forced(c))
	if err != nil {
		lookupError(c, err)
		return
	}
	if res.Accepted {
		accepted(c)
		return
	}
	out := make(map[string]any, len(res.Versions))
	for hash, v := range res.Versions {
		out[hash] = payload(v.Payload, v)
	}
	setTrust(c, res.Trustable)
	ok(c, http.StatusOK, out)
}

// MRSearch forwards a search to Modrinth.
func (h *Handlers) MRSearch(c *gin.Context) {
	passthrough(c, h.mr.Search)
}
