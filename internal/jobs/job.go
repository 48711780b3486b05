// Package jobs defines refresh jobs and the dispatchers that run them.
//
// A Dispatcher accepts jobs without blocking on their execution. Jobs that
// share a dedup key collapse while one is queued or running, and execution
// is throttled per upstream by a sliding-window Limiter. Two dispatchers are
// provided: an in-process worker pool and an asynq-backed Redis queue.
package jobs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind names a refresh job family as "<upstream>:<entity>".
type Kind string

const (
	KindCFMods            Kind = "curseforge:mods"
	KindCFModFiles        Kind = "curseforge:mod_files"
	KindCFFiles           Kind = "curseforge:files"
	KindCFFingerprints    Kind = "curseforge:fingerprints"
	KindMRProjects        Kind = "modrinth:projects"
	KindMRProjectVersions Kind = "modrinth:project_versions"
	KindMRVersions        Kind = "modrinth:versions"
	KindMRHashes          Kind = "modrinth:hashes"
)

// Upstream returns the upstream a kind calls, used for queues and rate limits.
func (k Kind) Upstream() string {
	up, _, _ := strings.Cut(string(k), ":")
	return up
}

// ParamAlgorithm carries the hash algorithm of a KindMRHashes job.
const ParamAlgorithm = "algorithm"

const maxKeyLen = 200

// RefreshJob re-fetches Targets of Kind from the origin API.
type RefreshJob struct {
	Kind    Kind              `json:"kind"`
	Targets []string          `json:"targets"`
	Params  map[string]string `json:"params,omitempty"`
}

// NewJob builds a job with deduplicated, sorted targets.
func NewJob(kind Kind, targets []string, params map[string]string) RefreshJob {
	t := slices.Clone(targets)
	slices.Sort(t)
	t = slices.Compact(t)
	return RefreshJob{Kind: kind, Targets: t, Params: params}
}

// NewIntJob is NewJob for numeric CurseForge ids.
func NewIntJob(kind Kind, ids []int64, params map[string]string) RefreshJob {
	return NewJob(kind, FormatInts(ids), params)
}

// Key is the dedup key: kind, sorted params and sorted targets. Long keys are
// hashed to keep store keys bounded.
func (j RefreshJob) Key() string {
	var b strings.Builder
	b.WriteString("refresh:")
	b.WriteString(string(j.Kind))
	b.WriteByte(':')
	names := make([]string, 0, len(j.Params))
	for k := range j.Params {
		names = append(names, k)
	}
	slices.Sort(names)
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k + "=" + j.Params[k])
	}
	b.WriteByte(':')
	t := slices.Clone(j.Targets)
	slices.Sort(t)
	b.WriteString(strings.Join(t, ","))

	key := b.String()
	if len(key) <= maxKeyLen {
		return key
	}
	sum := sha1.Sum([]byte(key))
	return "refresh:" + string(j.Kind) + ":#" + hex.EncodeToString(sum[:])
}

// Ints parses numeric targets.
func (j RefreshJob) Ints() ([]int64, error) {
	out := make([]int64, 0, len(j.Targets))
	for _, t := range j.Targets {
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad target %q: %w", j.Kind, t, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// FormatInts renders numeric ids as job targets.
func FormatInts(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}

// Handle reports the outcome of a Submit. Enqueued is false when an
// identical job was already pending.
type Handle struct {
	Key      string
	Enqueued bool
}

// Dispatcher accepts refresh jobs. Submit never waits for execution.
type Dispatcher interface {
	Submit(ctx context.Context, job RefreshJob) (Handle, error)
}

// Handler executes a job.
type Handler interface {
	Run(ctx context.Context, job RefreshJob) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job RefreshJob) error

// Run implements Handler.
func (f HandlerFunc) Run(ctx context.Context, job RefreshJob) error { return f(ctx, job) }
