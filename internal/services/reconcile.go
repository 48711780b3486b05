package services

import (
	"time"

	"github.com/tbourn/go-mod-mirror/internal/domain"
)

// Reconciliation is the outcome of matching a requested id set against the
// stored records of one kind.
type Reconciliation[K comparable, E any] struct {
	// Trustable is true when every requested id has a record and none of
	// them is stale. Negative records count as trustworthy answers.
	Trustable bool
	// Items are the found records, fresh or stale, in request order.
	Items []E
	// Refresh holds the absent and stale ids, in request order.
	Refresh []K
	// Negative holds ids upstream reported as non-existent.
	Negative []K
}

// Reconcile classifies each requested id. lookup resolves an id to its stored
// record; repeated ids are considered once. Negative ids are never put back
// into Refresh. An empty request is never trustable.
func Reconcile[K comparable, E domain.Synced](requested []K, lookup func(K) (E, bool), ttl time.Duration, now time.Time) Reconciliation[K, E] {
	out := Reconciliation[K, E]{Trustable: len(requested) > 0}
	seen := make(map[K]struct{}, len(requested))
	for _, k := range requested {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		rec, ok := lookup(k)
		if !ok {
			out.Refresh = append(out.Refresh, k)
			out.Trustable = false
			continue
		}
		meta := rec.Sync()
		switch domain.Classify(&meta, ttl, now) {
		case domain.StatusFresh:
			out.Items = append(out.Items, rec)
		case domain.StatusStale:
			out.Items = append(out.Items, rec)
			out.Refresh = append(out.Refresh, k)
			out.Trustable = false
		case domain.StatusNegative:
			out.Negative = append(out.Negative, k)
		}
	}
	return out
}

// Index maps records by every non-zero key the key functions produce. When
// two records share a key, a found record beats a negative one and a newer
// record beats an older one.
func Index[K comparable, E domain.Synced](records []E, keys ...func(E) K) map[K]E {
	var zero K
	out := make(map[K]E, len(records))
	for _, rec := range records {
		for _, key := range keys {
			k := key(rec)
			if k == zero {
				continue
			}
			if cur, ok := out[k]; ok && !preferred(rec.Sync(), cur.Sync()) {
				continue
			}
			out[k] = rec
		}
	}
	return out
}

func preferred(a, b domain.SyncMeta) bool {
	if a.Found != b.Found {
		return a.Found
	}
	return a.SyncedAt.After(b.SyncedAt)
}

// fromMap adapts a map to the lookup signature Reconcile expects.
func fromMap[K comparable, E any](m map[K]E) func(K) (E, bool) {
	return func(k K) (E, bool) {
		e, ok := m[k]
		return e, ok
	}
}
