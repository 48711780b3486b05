// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the response memoizer: a keyed cache in front of
// registered routes that stores whole responses (status, headers, body) in a
// kv.Store and replays them on later identical requests.
//
// Bypass rules:
//   - routes absent from MemoOptions.Routes are never memoized
//   - POST requests and requests carrying ?force=true never read or write
//   - responses with status >= 400 are not stored
//   - responses whose Cache-Control contains no-cache or no-store are not stored
//
// The memoizer is content-agnostic and fails open: any store or encoding
// error is logged, counted, and the request falls through to the handler.
package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-mod-mirror/internal/kv"
)

// HeaderCache reports whether a response was replayed from the memoizer.
const HeaderCache = "X-Cache"

// MemoForever registers a route whose entries never expire.
const MemoForever time.Duration = 0

var (
	memoRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memo_requests_total",
			Help: "Memoizer lookups by result (hit, miss, bypass).",
		},
		[]string{"result"},
	)
	memoErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memo_errors_total",
			Help: "Memoizer store or encoding failures by operation.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(memoRequests, memoErrors)
}

// MemoOptions configures Memoize.
type MemoOptions struct {
	// Routes maps a registered gin route (c.FullPath()) to its entry TTL.
	Routes map[string]time.Duration
	// IgnoreQuery lists query parameters left out of the cache key.
	IgnoreQuery []string
	// ForceParam names the query flag that bypasses the memoizer. Defaults to "force".
	ForceParam string
	// Prefix namespaces keys in the store. Defaults to "memo:".
	Prefix string
}

// Envelope is the stored unit: one complete response.
type Envelope struct {
	Status int                 `json:"status"`
	Header map[string][]string `json:"header,omitempty"`
	Body   []byte              `json:"body,omitempty"`
}

// headers owned by other layers and never replayed.
var skipHeaders = map[string]bool{
	"Content-Length":   true,
	"Content-Encoding": true,
	"Vary":             true,
	"Date":             true,
	"X-Request-Id":     true,
	HeaderCache:        true,
}

// captureWriter tees the response body into a buffer.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IsForced reports whether the request asks to bypass cached answers.
func IsForced(c *gin.Context, param string) bool {
	if param == "" {
		param = "force"
	}
	v, err := strconv.ParseBool(c.Query(param))
	return err == nil && v
}

// Memoize returns a middleware that serves registered routes from store.
// Install it after gzip so stored bodies are uncompressed and before the
// rate limiter so hits cost no tokens.
func Memoize(store kv.Store, opts MemoOptions) gin.HandlerFunc {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "memo:"
	}
	ignore := make(map[string]bool, len(opts.IgnoreQuery)+1)
	for _, q := range opts.IgnoreQuery {
		ignore[q] = true
	}
	force := opts.ForceParam
	if force == "" {
		force = "force"
	}
	ignore[force] = true

	return func(c *gin.Context) {
		ttl, ok := opts.Routes[c.FullPath()]
		if !ok || store == nil {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodPost || IsForced(c, force) {
			memoRequests.WithLabelValues("bypass").Inc()
			c.Next()
			return
		}

		ctx := c.Request.Context()
		lg := LoggerFrom(c)
		key := prefix + memoKey(c, ignore)

		raw, err := store.Get(ctx, key)
		switch {
		case err == nil:
			var env Envelope
			if err := json.Unmarshal(raw, &env); err == nil {
				memoRequests.WithLabelValues("hit").Inc()
				replay(c, env)
				return
			}
			memoErrors.WithLabelValues("decode").Inc()
			lg.Warn().Str("key", key).Msg("memo: undecodable entry, treating as miss")
		case !errors.Is(err, kv.ErrNotFound):
			memoErrors.WithLabelValues("get").Inc()
			lg.Warn().Err(err).Msg("memo: get failed")
		}
		memoRequests.WithLabelValues("miss").Inc()

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()
		c.Writer = cw.ResponseWriter

		if !cacheable(cw.Status(), cw.Header()) {
			return
		}
		env := Envelope{Status: cw.Status(), Header: snapshot(cw.Header()), Body: cw.buf.Bytes()}
		b, err := json.Marshal(env)
		if err != nil {
			memoErrors.WithLabelValues("encode").Inc()
			lg.Warn().Err(err).Msg("memo: encode failed")
			return
		}
		if err := store.Set(ctx, key, b, ttl); err != nil {
			memoErrors.WithLabelValues("set").Inc()
			lg.Warn().Err(err).Msg("memo: set failed")
		}
	}
}

// memoKey hashes the route identity with its normalized arguments.
func memoKey(c *gin.Context, ignore map[string]bool) string {
	h := sha256.New()
	h.Write([]byte(c.Request.Method))
	h.Write([]byte{0})
	h.Write([]byte(c.FullPath()))

	params := make([]string, 0, len(c.Params))
	for _, p := range c.Params {
		params = append(params, p.Key+"="+p.Value)
	}
	sort.Strings(params)
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}

	q := c.Request.URL.Query()
	names := make([]string, 0, len(q))
	for k := range q {
		if !ignore[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	for _, k := range names {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		h.Write([]byte{1})
		h.Write([]byte(k + "=" + strings.Join(vals, ",")))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cacheable(status int, hdr http.Header) bool {
	if status >= http.StatusBadRequest {
		return false
	}
	cc := strings.ToLower(hdr.Get("Cache-Control"))
	return !strings.Contains(cc, "no-cache") && !strings.Contains(cc, "no-store")
}

func snapshot(hdr http.Header) map[string][]string {
	out := make(map[string][]string, len(hdr))
	for k, v := range hdr {
		ck := http.CanonicalHeaderKey(k)
		if skipHeaders[ck] || strings.HasPrefix(ck, "Access-Control-") {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

// replay writes a stored response. Headers already set by earlier
// middleware win over stored ones.
func replay(c *gin.Context, env Envelope) {
	h := c.Writer.Header()
	for k, vs := range env.Header {
		if _, set := h[k]; set {
			continue
		}
		h[k] = append([]string(nil), vs...)
	}
	c.Header(HeaderCache, "HIT")
	c.Status(env.Status)
	if len(env.Body) > 0 {
		_, _ = c.Writer.Write(env.Body)
	} else {
		c.Writer.WriteHeaderNow()
	}
	c.Abort()
}
