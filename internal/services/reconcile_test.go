package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-mod-mirror/internal/domain"
)

type rec struct {
	ID string
	domain.SyncMeta
}

func byID(rs ...rec) func(string) (rec, bool) {
	return fromMap(Index(rs, func(r rec) string { return r.ID }))
}

func TestReconcile_BatchPartiality(t *testing.T) {
	lookup := byID(
		rec{ID: "A", SyncMeta: found(fixedNow.Add(-time.Minute))},
		rec{ID: "B", SyncMeta: found(fixedNow.Add(-2 * time.Hour))},
	)

	rc := Reconcile([]string{"A", "B", "C"}, lookup, time.Hour, fixedNow)

	assert.False(t, rc.Trustable)
	require.Len(t, rc.Items, 2)
	assert.Equal(t, []string{"A", "B"}, []string{rc.Items[0].ID, rc.Items[1].ID})
	assert.Equal(t, []string{"B", "C"}, rc.Refresh)
	assert.Empty(t, rc.Negative)
}

func TestReconcile_NegativeIsTrustedAndNotRefreshed(t *testing.T) {
	lookup := byID(
		rec{ID: "A", SyncMeta: found(fixedNow)},
		rec{ID: "N", SyncMeta: negative(fixedNow.Add(-48 * time.Hour))},
	)

	rc := Reconcile([]string{"A", "N"}, lookup, time.Hour, fixedNow)

	assert.True(t, rc.Trustable)
	assert.Len(t, rc.Items, 1)
	assert.Empty(t, rc.Refresh)
	assert.Equal(t, []string{"N"}, rc.Negative)
}

func TestReconcile_NothingPresent(t *testing.T) {
	rc := Reconcile([]string{"X", "Y"}, byID(), time.Hour, fixedNow)
	assert.False(t, rc.Trustable)
	assert.Empty(t, rc.Items)
	assert.Equal(t, []string{"X", "Y"}, rc.Refresh)

	empty := Reconcile(nil, byID(), time.Hour, fixedNow)
	assert.False(t, empty.Trustable)
}

func TestReconcile_DuplicatesCountOnce(t *testing.T) {
	rc := Reconcile([]string{"C", "C", "A", "C"}, byID(rec{ID: "A", SyncMeta: found(fixedNow)}), time.Hour, fixedNow)
	assert.Equal(t, []string{"C"}, rc.Refresh)
	assert.Len(t, rc.Items, 1)
}

func TestReconcile_ZeroTTLNeverStale(t *testing.T) {
	rc := Reconcile([]string{"A"}, byID(rec{ID: "A", SyncMeta: found(fixedNow.AddDate(-5, 0, 0))}), 0, fixedNow)
	assert.True(t, rc.Trustable)
	assert.Empty(t, rc.Refresh)
}

func TestIndex_PrefersFoundThenNewer(t *testing.T) {
	old := rec{ID: "k", SyncMeta: found(fixedNow.Add(-time.Hour))}
	newer := rec{ID: "k", SyncMeta: found(fixedNow)}
	neg := rec{ID: "k", SyncMeta: negative(fixedNow.Add(time.Hour))}

	idx := Index([]rec{old, neg, newer}, func(r rec) string { return r.ID })
	assert.True(t, idx["k"].Found)
	assert.True(t, idx["k"].SyncedAt.Equal(fixedNow))

	skip := Index([]rec{{ID: ""}}, func(r rec) string { return r.ID })
	assert.Empty(t, skip)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"mod ok", ValidateModID(30000), nil},
		{"mod low", ValidateModID(29999), ErrInvalidIdentity},
		{"file ok", ValidateFileID(530000), nil},
		{"file low", ValidateFileID(12), ErrInvalidIdentity},
		{"fp ok", ValidateFingerprint(3608855426), nil},
		{"fp zero", ValidateFingerprint(0), ErrInvalidIdentity},
		{"fp wide", ValidateFingerprint(1 << 33), ErrInvalidIdentity},
		{"mr id", ValidateModrinthKey("AANobbMI"), nil},
		{"mr slug", ValidateModrinthKey("fabric-api"), nil},
		{"mr bad", ValidateModrinthKey("a b"), ErrInvalidIdentity},
		{"mr short", ValidateModrinthKey("a"), ErrInvalidIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.want == nil {
				assert.NoError(t, tc.err)
				return
			}
			assert.True(t, errors.Is(tc.err, tc.want), "got %v", tc.err)
		})
	}
}

func TestNormalizeHash(t *testing.T) {
	h, err := NormalizeHash(AlgorithmSHA1, " 0123456789ABCDEF0123456789abcdef01234567 ")
	assert.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", h)

	_, err = NormalizeHash(AlgorithmSHA512, h)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, err = NormalizeHash(AlgorithmSHA1, "zz23456789abcdef0123456789abcdef01234567")
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	alg, err := NormalizeAlgorithm("")
	assert.NoError(t, err)
	assert.Equal(t, AlgorithmSHA1, alg)
	_, err = NormalizeAlgorithm("md5")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestBatchLimits(t *testing.T) {
	assert.ErrorIs(t, validateAll([]int64{}, ValidateModID), ErrEmptyBatch)
	assert.ErrorIs(t, validateAll(make([]int64, MaxBatch+1), ValidateModID), ErrBatchTooLarge)

	ids, err := ParseIDs([]string{"30001", "30002"})
	assert.NoError(t, err)
	assert.Equal(t, []int64{30001, 30002}, ids)
	_, err = ParseIDs([]string{"x"})
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}
