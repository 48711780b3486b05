package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CurseForge game id for Minecraft; fingerprint matching is scoped per game.
const minecraftGameID = 432

const cfPageSize = 50

// CurseForge is a client for the CurseForge v1 API.
type CurseForge struct {
	*Client
}

// NewCurseForge returns a client that authenticates with apiKey.
func NewCurseForge(apiKey string, o Options) *CurseForge {
	if o.Header == nil {
		o.Header = http.Header{}
	} else {
		o.Header = o.Header.Clone()
	}
	if apiKey != "" {
		o.Header.Set("x-api-key", apiKey)
	}
	return &CurseForge{Client: newClient("curseforge", o)}
}

type cfData[T any] struct {
	Data T `json:"data"`
}

type cfPagination struct {
	Index       int `json:"index"`
	PageSize    int `json:"pageSize"`
	ResultCount int `json:"resultCount"`
	TotalCount  int `json:"totalCount"`
}

// FingerprintMatch is one exact match returned by the fingerprint endpoint.
type FingerprintMatch struct {
	ModID int64           `json:"id"`
	File  json.RawMessage `json:"file"`
}

// FingerprintResult is the subset of the fingerprint response the mirror uses.
type FingerprintResult struct {
	ExactMatches          []FingerprintMatch `json:"exactMatches"`
	ExactFingerprints     []int64            `json:"exactFingerprints"`
	UnmatchedFingerprints []int64            `json:"unmatchedFingerprints"`
}

// Mod fetches one mod.
func (c *CurseForge) Mod(ctx context.Context, id int64) (json.RawMessage, error) {
	var out cfData[json.RawMessage]
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/mods/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Mods fetches a batch of mods. Ids unknown upstream are simply absent.
func (c *CurseForge) Mods(ctx context.Context, ids []int64) ([]json.RawMessage, error) {
	var out cfData[[]json.RawMessage]
	body := map[string]any{"modIds": ids}
	if err := c.postJSON(ctx, "/v1/mods", body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ModFiles fetches every file of a mod, following pagination to the end.
func (c *CurseForge) ModFiles(ctx context.Context, modID int64) ([]json.RawMessage, error) {
	var all []json.RawMessage
	path := fmt.Sprintf("/v1/mods/%d/files", modID)
	for index := 0; ; {
		q := url.Values{}
		q.Set("index", strconv.Itoa(index))
		q.Set("pageSize", strconv.Itoa(cfPageSize))

		var page struct {
			Data       []json.RawMessage `json:"data"`
			Pagination cfPagination      `json:"pagination"`
		}
		if err := c.getJSON(ctx, path, q, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		index += len(page.Data)
		if len(page.Data) == 0 || index >= page.Pagination.TotalCount {
			return all, nil
		}
	}
}

// Files fetches a batch of files by id.
func (c *CurseForge) Files(ctx context.Context, ids []int64) ([]json.RawMessage, error) {
	var out cfData[[]json.RawMessage]
	body := map[string]any{"fileIds": ids}
	if err := c.postJSON(ctx, "/v1/mods/files", body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Fingerprints matches file fingerprints against Minecraft files.
func (c *CurseForge) Fingerprints(ctx context.Context, fps []int64) (*FingerprintResult, error) {
	var out cfData[FingerprintResult]
	body := map[string]any{"fingerprints": fps}
	path := fmt.Sprintf("/v1/fingerprints/%d", minecraftGameID)
	if err := c.postJSON(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Search passes a mod search through verbatim.
func (c *CurseForge) Search(ctx context.Context, query url.Values) ([]byte, error) {
	return c.call(ctx, http.MethodGet, "/v1/mods/search", query, nil)
}
