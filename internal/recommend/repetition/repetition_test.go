package repetition_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vestiapp/vesti/internal/recommend/repetition"
	"go.uber.org/zap"
)

func setupTest(t *testing.T, window time.Duration) (*repetition.Store, rueidis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return repetition.NewStore(client, window, zap.NewNop()), client
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()
	store, _ := setupTest(t, 30*24*time.Hour)
	ctx := t.Context()

	store.Record(ctx, "user-1", repetition.Entry{
		Fingerprint: "fp-1",
		Colors:      []string{"#112233"},
		Style:       "casual",
	})
	store.Record(ctx, "user-1", repetition.Entry{Fingerprint: "fp-2"})

	entries := store.Recent(ctx, "user-1")
	require.Len(t, entries, 2)

	byFingerprint := map[string]repetition.Entry{}
	for _, entry := range entries {
		assert.False(t, entry.ShownAt.IsZero())
		byFingerprint[entry.Fingerprint] = entry
	}

	assert.Equal(t, []string{"#112233"}, byFingerprint["fp-1"].Colors)
	assert.Equal(t, "casual", byFingerprint["fp-1"].Style)
}

func TestRecentIsolatedPerUser(t *testing.T) {
	t.Parallel()
	store, _ := setupTest(t, 30*24*time.Hour)
	ctx := t.Context()

	store.Record(ctx, "user-1", repetition.Entry{Fingerprint: "fp-1"})

	assert.Len(t, store.Recent(ctx, "user-1"), 1)
	assert.Empty(t, store.Recent(ctx, "user-2"))
	assert.Empty(t, store.Recent(ctx, ""))
}

func TestRecordTrimsExpiredEntries(t *testing.T) {
	t.Parallel()
	store, _ := setupTest(t, 50*time.Millisecond)
	ctx := t.Context()

	store.Record(ctx, "user-1", repetition.Entry{Fingerprint: "old"})
	time.Sleep(80 * time.Millisecond)
	store.Record(ctx, "user-1", repetition.Entry{Fingerprint: "fresh"})

	entries := store.Recent(ctx, "user-1")
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Fingerprint)
}

func TestRecentParsesLegacyBareFingerprints(t *testing.T) {
	t.Parallel()
	store, client := setupTest(t, 30*24*time.Hour)
	ctx := t.Context()

	// Members written before the JSON format were bare fingerprint strings
	err := client.Do(ctx, client.B().
		Zadd().
		Key("repetition:user-1").
		ScoreMember().
		ScoreMember(float64(time.Now().UnixMilli()), "legacy-fp").
		Build(),
	).Error()
	require.NoError(t, err)

	entries := store.Recent(ctx, "user-1")
	require.Len(t, entries, 1)
	assert.Equal(t, "legacy-fp", entries[0].Fingerprint)
	assert.Empty(t, entries[0].Colors)
}

func TestRecordIgnoresEmptyInput(t *testing.T) {
	t.Parallel()
	store, _ := setupTest(t, 30*24*time.Hour)
	ctx := t.Context()

	store.Record(ctx, "", repetition.Entry{Fingerprint: "fp"})
	store.Record(ctx, "user-1", repetition.Entry{})

	assert.Empty(t, store.Recent(ctx, "user-1"))
}
