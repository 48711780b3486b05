package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Modrinth is a client for the Modrinth v2 API. Modrinth requires a
// descriptive User-Agent on every request.
type Modrinth struct {
	*Client
}

// NewModrinth returns a Modrinth client.
func NewModrinth(o Options) *Modrinth {
	return &Modrinth{Client: newClient("modrinth", o)}
}

func idsParam(ids []string) url.Values {
	b, _ := json.Marshal(ids)
	return url.Values{"ids": []string{string(b)}}
}

// Project fetches a project by id or slug.
func (c *Modrinth) Project(ctx context.Context, idOrSlug string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.getJSON(ctx, "/v2/project/"+url.PathEscape(idOrSlug), nil, &out)
	return out, err
}

// Projects fetches a batch of projects by id or slug.
func (c *Modrinth) Projects(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := c.getJSON(ctx, "/v2/projects", idsParam(ids), &out)
	return out, err
}

// ProjectVersions fetches every version of a project.
func (c *Modrinth) ProjectVersions(ctx context.Context, idOrSlug string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := c.getJSON(ctx, "/v2/project/"+url.PathEscape(idOrSlug)+"/version", nil, &out)
	return out, err
}

// Version fetches one version.
func (c *Modrinth) Version(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.getJSON(ctx, "/v2/version/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Versions fetches a batch of versions.
func (c *Modrinth) Versions(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := c.getJSON(ctx, "/v2/versions", idsParam(ids), &out)
	return out, err
}

// VersionFile resolves the version that contains a file hash.
func (c *Modrinth) VersionFile(ctx context.Context, hash, algorithm string) (json.RawMessage, error) {
	var out json.RawMessage
	q := url.Values{"algorithm": []string{algorithm}}
	err := c.getJSON(ctx, "/v2/version_file/"+url.PathEscape(hash), q, &out)
	return out, err
}

// VersionFiles resolves many hashes at once. Hashes unknown upstream are
// absent from the returned map.
func (c *Modrinth) VersionFiles(ctx context.Context, hashes []string, algorithm string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	body := map[string]any{"hashes": hashes, "algorithm": algorithm}
	err := c.postJSON(ctx, "/v2/version_files", body, &out)
	return out, err
}

// Search passes a project search through verbatim.
func (c *Modrinth) Search(ctx context.Context, query url.Values) ([]byte, error) {
	return c.call(ctx, http.MethodGet, "/v2/search", query, nil)
}
