package domain

import "time"

// Status is the freshness classification of a stored entity.
type Status int

const (
	// StatusMissing means no record exists for the id.
	StatusMissing Status = iota
	// StatusFresh means the record was found upstream within its TTL.
	StatusFresh
	// StatusStale means the record is servable but past its TTL.
	StatusStale
	// StatusNegative means upstream reported the id does not exist.
	StatusNegative
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusNegative:
		return "negative"
	default:
		return "missing"
	}
}

// Classify evaluates a record's SyncMeta against ttl at now. A nil meta means
// the record is absent. A ttl <= 0 means the kind never goes stale.
func Classify(meta *SyncMeta, ttl time.Duration, now time.Time) Status {
	switch {
	case meta == nil:
		return StatusMissing
	case !meta.Found:
		return StatusNegative
	case ttl <= 0:
		return StatusFresh
	case now.Sub(meta.SyncedAt) < ttl:
		return StatusFresh
	default:
		return StatusStale
	}
}
