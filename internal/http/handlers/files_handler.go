// File delivery handlers: CDN-shaped download paths that redirect to the
// mirror tier or the origin CDN, and the mirror inventory listing.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mod-mirror/internal/repo"
	"github.com/tbourn/go-mod-mirror/internal/services"
	"github.com/tbourn/go-mod-mirror/internal/utils"
)

func redirect(c *gin.Context, r services.Redirect, err error) {
	if err != nil {
		lookupError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(int(r.MaxAge.Seconds())))
	c.Header("X-Delivery-Tier", string(r.Tier))
	c.Redirect(http.StatusFound, r.URL)
}

// ModrinthDownload godoc
// @ID          modrinthDownload
// @Summary     Download a Modrinth file
// @Description Redirects to the mirror copy when one exists and the file is small enough, otherwise to cdn.modrinth.com.
// @Tags        Files
// @Param       projectId  path  string  true  "Project id"
// @Param       versionId  path  string  true  "Version id"
// @Param       filename   path  string  true  "File name"
// @Success     302
// @Header      302  {string}  Location       "Download URL"
// @Header      302  {string}  Cache-Control  "public, max-age per delivery tier"
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /data/{projectId}/versions/{versionId}/{filename} [get]
func (h *Handlers) ModrinthDownload(c *gin.Context) {
	r, err := h.files.Modrinth(c.Request.Context(), c.Param("projectId"), c.Param("versionId"), c.Param("filename"))
	redirect(c, r, err)
}

// CurseForgeDownload godoc
// @ID          curseforgeDownload
// @Summary     Download a CurseForge file
// @Description Edge-style path: file id 4567123 is /files/4567/123/{filename}.
// @Tags        Files
// @Param       fileId1   path  string  true  "File id / 1000"
// @Param       fileId2   path  string  true  "File id % 1000"
// @Param       filename  path  string  true  "File name"
// @Success     302
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /files/{fileId1}/{fileId2}/{filename} [get]
func (h *Handlers) CurseForgeDownload(c *gin.Context) {
	r, err := h.files.CurseForge(c.Request.Context(), c.Param("fileId1"), c.Param("fileId2"), c.Param("filename"))
	redirect(c, r, err)
}

// ListMirror godoc
// @ID          listMirror
// @Summary     List files held by the mirror tier
// @Description Keyset pagination: pass the returned next cursor as after.
// @Tags        Files
// @Produce     json
// @Param       after  query  string  false  "Opaque cursor"
// @Param       limit  query  int     false  "Page size"  minimum(1) maximum(1000) default(100)
// @Success     200  {object}  mirror.Page
// @Failure     400  {object}  handlers.ErrorResponse  "Bad cursor"
// @Router      /files/mirror [get]
func (h *Handlers) ListMirror(c *gin.Context) {
	page, err := h.inv.List(c.Request.Context(), c.Query("after"), utils.AtoiDefault(c.Query("limit"), 0))
	if err != nil {
		lookupError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// StatsResponse lists per-kind entity counts.
type StatsResponse struct {
	Kinds []repo.KindStats `json:"kinds"`
}

// Stats godoc
// @ID          stats
// @Summary     Entity store statistics
// @Tags        Ops
// @Produce     json
// @Success     200  {object}  handlers.StatsResponse
// @Router      /stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	st, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, StatsResponse{Kinds: st})
}
