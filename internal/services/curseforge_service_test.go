package services

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/repo"
)

type fakeSearch struct {
	body  []byte
	err   error
	query url.Values
}

func (f *fakeSearch) Search(_ context.Context, q url.Values) ([]byte, error) {
	f.query = q
	return f.body, f.err
}

func newCF(t *testing.T) (*CurseForgeService, *recorder) {
	rec := &recorder{}
	s := NewCurseForgeService(newDB(t), rec, &fakeSearch{body: []byte(`{"data":[]}`)}, testTTL, nop())
	s.Now = clock
	return s, rec
}

func TestCFMod_MissingSchedulesRefresh(t *testing.T) {
	s, rec := newCF(t)

	res, err := s.Mod(context.Background(), 30001, false)
	require.NoError(t, err)
	assert.Nil(t, res.Item)
	assert.Equal(t, domain.StatusMissing, res.Status)
	assert.False(t, res.Trustable)

	got := rec.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, jobs.KindCFMods, got[0].Kind)
	assert.Equal(t, []string{"30001"}, got[0].Targets)
}

func TestCFMod_FreshAndStale(t *testing.T) {
	s, rec := newCF(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertCFMods(ctx, s.DB, []domain.CFMod{
		{ID: 30001, Slug: "fresh", SyncMeta: found(fixedNow.Add(-time.Minute))},
		{ID: 30002, Slug: "stale", SyncMeta: found(fixedNow.Add(-2 * time.Hour))},
	}))

	fresh, err := s.Mod(ctx, 30001, false)
	require.NoError(t, err)
	require.NotNil(t, fresh.Item)
	assert.True(t, fresh.Trustable)
	assert.Empty(t, rec.submitted())

	stale, err := s.Mod(ctx, 30002, false)
	require.NoError(t, err)
	require.NotNil(t, stale.Item)
	assert.Equal(t, "stale", stale.Item.Slug)
	assert.False(t, stale.Trustable)
	assert.Len(t, rec.submitted(), 1)
}

func TestCFMod_NegativeCacheIsStable(t *testing.T) {
	s, rec := newCF(t)
	ctx := context.Background()
	require.NoError(t, repo.MarkCFModsMissing(ctx, s.DB, []int64{30001}, fixedNow.Add(-30*24*time.Hour)))

	for i := 0; i < 3; i++ {
		res, err := s.Mod(ctx, 30001, false)
		require.NoError(t, err)
		assert.Nil(t, res.Item)
		assert.Equal(t, domain.StatusNegative, res.Status)
		assert.True(t, res.Trustable)
	}
	assert.Empty(t, rec.submitted())

	forced, err := s.Mod(ctx, 30001, true)
	require.NoError(t, err)
	assert.True(t, forced.Accepted)
	assert.Len(t, rec.submitted(), 1)
}

func TestCFMod_InvalidIdentityNeverTouchesStore(t *testing.T) {
	s, rec := newCF(t)
	_, err := s.Mod(context.Background(), 12, false)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.Empty(t, rec.submitted())
}

func TestCFMod_SubmitFailureDoesNotFailLookup(t *testing.T) {
	s, rec := newCF(t)
	rec.err = errors.New("queue down")
	res, err := s.Mod(context.Background(), 30001, false)
	require.NoError(t, err)
	assert.False(t, res.Trustable)
}

func TestCFMods_BatchPartiality(t *testing.T) {
	s, rec := newCF(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertCFMods(ctx, s.DB, []domain.CFMod{
		{ID: 30001, SyncMeta: found(fixedNow)},
		{ID: 30002, SyncMeta: found(fixedNow.Add(-3 * time.Hour))},
	}))

	res, err := s.Mods(ctx, []int64{30001, 30002, 30003}, false)
	require.NoError(t, err)
	assert.False(t, res.Trustable)
	require.Len(t, res.Items, 2)
	assert.Equal(t, int64(30001), res.Items[0].ID)
	assert.Equal(t, int64(30002), res.Items[1].ID)

	got := rec.submitted()
	require.Len(t, got, 1, "one batch job for the whole refresh set")
	assert.Equal(t, []string{"30002", "30003"}, got[0].Targets)
}

func TestCFMods_AllFreshSubmitsNothing(t *testing.T) {
	s, rec := newCF(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertCFMods(ctx, s.DB, []domain.CFMod{{ID: 30001, SyncMeta: found(fixedNow)}}))

	res, err := s.Mods(ctx, []int64{30001}, false)
	require.NoError(t, err)
	assert.True(t, res.Trustable)
	assert.Empty(t, rec.submitted())
}

func TestCFModFiles(t *testing.T) {
	s, rec := newCF(t)
	ctx := context.Background()

	empty, err := s.ModFiles(ctx, 30001, 0, 50, false)
	require.NoError(t, err)
	assert.False(t, empty.Trustable)
	assert.Equal(t, domain.StatusMissing, empty.Status)
	require.Len(t, rec.submitted(), 1)
	assert.Equal(t, jobs.KindCFModFiles, rec.submitted()[0].Kind)
	rec.reset()

	require.NoError(t, repo.UpsertCFFiles(ctx, s.DB, []domain.CFFile{
		{ID: 600001, ModID: 30001, SyncMeta: found(fixedNow)},
		{ID: 600002, ModID: 30001, SyncMeta: found(fixedNow)},
	}))
	page, err := s.ModFiles(ctx, 30001, 0, 1, false)
	require.NoError(t, err)
	assert.True(t, page.Trustable)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 1)
	assert.Empty(t, rec.submitted())

	require.NoError(t, repo.MarkCFModsMissing(ctx, s.DB, []int64{30009}, fixedNow))
	gone, err := s.ModFiles(ctx, 30009, 0, 50, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNegative, gone.Status)
	assert.Empty(t, rec.submitted())
}

func TestCFFile_WrongModIsNotFound(t *testing.T) {
	s, _ := newCF(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertCFFiles(ctx, s.DB, []domain.CFFile{
		{ID: 600001, ModID: 30001, DownloadURL: "https://edge.forgecdn.net/files/600/1/a.jar", SyncMeta: found(fixedNow)},
	}))

	ok, err := s.File(ctx, 30001, 600001, false)
	require.NoError(t, err)
	require.NotNil(t, ok.Item)
	assert.True(t, ok.Trustable)

	wrong, err := s.File(ctx, 30002, 600001, false)
	require.NoError(t, err)
	assert.Nil(t, wrong.Item)
	assert.Equal(t, domain.StatusNegative, wrong.Status)
}

func TestCFFingerprints(t *testing.T) {
	s, rec := newCF(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertCFFingerprints(ctx, s.DB, []domain.CFFingerprint{
		{Fingerprint: 11, FileID: 600001, ModID: 30001, SyncMeta: found(fixedNow.AddDate(-1, 0, 0))},
	}))
	require.NoError(t, repo.UpsertCFFiles(ctx, s.DB, []domain.CFFile{
		{ID: 600001, ModID: 30001, Payload: datatypes.JSON(`{"id":600001}`), SyncMeta: found(fixedNow)},
	}))
	require.NoError(t, repo.MarkCFFingerprintsMissing(ctx, s.DB, []int64{22}, fixedNow))

	res, err := s.Fingerprints(ctx, []int64{11, 22, 33}, false)
	require.NoError(t, err)
	assert.False(t, res.Trustable)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, int64(11), res.Matches[0].Fingerprint)
	assert.Equal(t, int64(600001), res.Matches[0].File.ID)
	assert.JSONEq(t, `{"id":600001}`, string(res.Matches[0].File.Payload))
	assert.Equal(t, []int64{22}, res.Unmatched)

	got := rec.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, jobs.KindCFFingerprints, got[0].Kind)
	assert.Equal(t, []string{"33"}, got[0].Targets)
}

func TestCFFingerprints_MatchNeedsResolvableFile(t *testing.T) {
	s, rec := newCF(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertCFFingerprints(ctx, s.DB, []domain.CFFingerprint{
		{Fingerprint: 12345, FileID: 600000, ModID: 30001, SyncMeta: found(fixedNow)},
		{Fingerprint: 23456, FileID: 600002, ModID: 30002, SyncMeta: found(fixedNow)},
	}))
	require.NoError(t, repo.UpsertCFFiles(ctx, s.DB, []domain.CFFile{
		{ID: 600000, ModID: 30001, SyncMeta: found(fixedNow.Add(-time.Minute))},
	}))
	require.NoError(t, repo.MarkCFFilesMissing(ctx, s.DB, []int64{600000}, fixedNow))

	// deleted file: authoritative, no match
	res, err := s.Fingerprints(ctx, []int64{12345}, false)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, []int64{12345}, res.Unmatched)
	assert.True(t, res.Trustable)
	assert.Empty(t, rec.submitted())

	// file never stored: untrustable, owning mod's files refreshed
	res, err = s.Fingerprints(ctx, []int64{23456}, false)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Empty(t, res.Unmatched)
	assert.False(t, res.Trustable)
	got := rec.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, jobs.KindCFModFiles, got[0].Kind)
	assert.Equal(t, []string{"30002"}, got[0].Targets)
}

func TestCFFingerprints_StaleFileRefreshed(t *testing.T) {
	s, rec := newCF(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertCFFingerprints(ctx, s.DB, []domain.CFFingerprint{
		{Fingerprint: 11, FileID: 600001, ModID: 30001, SyncMeta: found(fixedNow)},
	}))
	require.NoError(t, repo.UpsertCFFiles(ctx, s.DB, []domain.CFFile{
		{ID: 600001, ModID: 30001, SyncMeta: found(fixedNow.Add(-2 * time.Hour))},
	}))

	res, err := s.Fingerprints(ctx, []int64{11}, false)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.False(t, res.Trustable)
	got := rec.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, jobs.KindCFFiles, got[0].Kind)
	assert.Equal(t, []string{"600001"}, got[0].Targets)
}

func TestCFSearch_PassesThrough(t *testing.T) {
	s, _ := newCF(t)
	q := url.Values{"searchFilter": {"jei"}}
	body, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
	assert.Equal(t, q, s.Upstream.(*fakeSearch).query)
}
