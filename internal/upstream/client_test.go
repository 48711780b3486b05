package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(srv *httptest.Server) Options {
	return Options{
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
		Retries:   3,
		UserAgent: "go-mod-mirror-test",
		BackOff:   func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func TestCurseForge_Mod_SendsKeyAndUnwrapsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/mods/238222", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "go-mod-mirror-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"data":{"id":238222,"slug":"jei"}}`))
	}))
	defer srv.Close()

	cf := NewCurseForge("secret", testOptions(srv))
	raw, err := cf.Mod(context.Background(), 238222)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":238222,"slug":"jei"}`, string(raw))
}

func TestClient_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cf := NewCurseForge("", testOptions(srv))
	_, err := cf.Mod(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsTemporary(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ServerErrorRetriedThenUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	mr := NewModrinth(testOptions(srv))
	_, err := mr.Project(context.Background(), "sodium")

	var ue *UnavailableError
	require.True(t, errors.As(err, &ue), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, ue.Status)
	assert.Zero(t, ue.RetryAfter)
	assert.True(t, IsTemporary(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ShortRetryAfterIsWaitedOut(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"AANobbMI"}`))
	}))
	defer srv.Close()

	start := time.Now()
	raw, err := NewModrinth(testOptions(srv)).Project(context.Background(), "sodium")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"AANobbMI"}`, string(raw))
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond, "zero backoff must yield to Retry-After")
}

func TestClient_LongRetryAfterReturnedToCaller(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewModrinth(testOptions(srv)).Project(context.Background(), "sodium")

	var ue *UnavailableError
	require.True(t, errors.As(err, &ue), "got %v", err)
	assert.Equal(t, 7*time.Second, ue.RetryAfterHint())
	assert.True(t, IsTemporary(err))
	assert.Equal(t, int32(1), calls.Load())

	var ra *backoff.RetryAfterError
	require.True(t, errors.As(err, &ra))
	assert.Equal(t, 7*time.Second, ra.Duration)
}

func TestClient_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"AANobbMI"}`))
	}))
	defer srv.Close()

	mr := NewModrinth(testOptions(srv))
	raw, err := mr.Project(context.Background(), "AANobbMI")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"AANobbMI"}`, string(raw))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad ids`))
	}))
	defer srv.Close()

	mr := NewModrinth(testOptions(srv))
	_, err := mr.Projects(context.Background(), []string{"x"})

	var re *ResponseError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, "bad ids", re.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	mr := NewModrinth(testOptions(srv))
	_, err := mr.Versions(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCurseForge_ModFiles_FollowsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		index, _ := strconv.Atoi(r.URL.Query().Get("index"))
		switch index {
		case 0:
			_, _ = w.Write([]byte(`{"data":[{"id":1},{"id":2}],"pagination":{"index":0,"totalCount":3}}`))
		case 2:
			_, _ = w.Write([]byte(`{"data":[{"id":3}],"pagination":{"index":2,"totalCount":3}}`))
		default:
			t.Errorf("unexpected index %d", index)
		}
	}))
	defer srv.Close()

	cf := NewCurseForge("", testOptions(srv))
	files, err := cf.ModFiles(context.Background(), 30001)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestCurseForge_Fingerprints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/fingerprints/432", r.URL.Path)
		var body struct {
			Fingerprints []int64 `json:"fingerprints"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int64{11, 22}, body.Fingerprints)
		_, _ = w.Write([]byte(`{"data":{
			"exactMatches":[{"id":30001,"file":{"id":600001,"modId":30001,"fileFingerprint":11}}],
			"exactFingerprints":[11],
			"unmatchedFingerprints":[22]}}`))
	}))
	defer srv.Close()

	cf := NewCurseForge("", testOptions(srv))
	res, err := cf.Fingerprints(context.Background(), []int64{11, 22})
	require.NoError(t, err)
	require.Len(t, res.ExactMatches, 1)
	assert.Equal(t, int64(30001), res.ExactMatches[0].ModID)
	assert.Equal(t, []int64{11}, res.ExactFingerprints)
	assert.Equal(t, []int64{22}, res.UnmatchedFingerprints)
}

func TestModrinth_BatchEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/projects":
			assert.Equal(t, `["a","b"]`, r.URL.Query().Get("ids"))
			_, _ = w.Write([]byte(`[{"id":"a"}]`))
		case "/v2/version_files":
			var body struct {
				Hashes    []string `json:"hashes"`
				Algorithm string   `json:"algorithm"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "sha512", body.Algorithm)
			_, _ = w.Write([]byte(`{"h1":{"id":"v1"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	mr := NewModrinth(testOptions(srv))
	projects, err := mr.Projects(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	byHash, err := mr.VersionFiles(context.Background(), []string{"h1", "h2"}, "sha512")
	require.NoError(t, err)
	assert.Contains(t, byHash, "h1")
	assert.NotContains(t, byHash, "h2")
}

func TestSearch_Passthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/search", r.URL.Path)
		assert.Equal(t, "sodium", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"hits":[]}`))
	}))
	defer srv.Close()

	mr := NewModrinth(testOptions(srv))
	body, err := mr.Search(context.Background(), url.Values{"query": {"sodium"}})
	require.NoError(t, err)
	assert.Equal(t, `{"hits":[]}`, string(body))
}
