package repetition

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// keyPrefix namespaces per-user history keys, formatted "repetition:{userID}".
const keyPrefix = "repetition:"

// Entry is one recently surfaced outfit. Colors and Style are carried so the
// diversifier can detect pattern lock without a second store.
type Entry struct {
	Fingerprint string   `json:"fingerprint"`
	Colors      []string `json:"colors,omitempty"`
	Style       string   `json:"style,omitempty"`
	ShownAt     time.Time `json:"-"`
}

// Store keeps a per-user rolling record of recently surfaced outfits in a
// Redis sorted set scored by show time. Reads degrade to empty history on
// failure; the scorer then simply applies no repetition penalty.
type Store struct {
	client rueidis.Client
	window time.Duration
	logger *zap.Logger
}

// NewStore creates the anti-repetition store with the given rolling window.
func NewStore(client rueidis.Client, window time.Duration, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		window: window,
		logger: logger.Named("repetition"),
	}
}

// Window returns the rolling window length.
func (s *Store) Window() time.Duration {
	return s.window
}

// Recent returns the user's history within the rolling window, oldest first.
func (s *Store) Recent(ctx context.Context, userID string) []Entry {
	if userID == "" {
		return nil
	}

	cutoff := time.Now().Add(-s.window).UnixMilli()
	scores, err := s.client.Do(ctx, s.client.B().
		Zrangebyscore().
		Key(keyPrefix+userID).
		Min(strconv.FormatInt(cutoff, 10)).
		Max("+inf").
		Withscores().
		Build(),
	).AsZScores()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			s.logger.Warn("Failed to read repetition history, assuming empty",
				zap.String("userID", userID),
				zap.Error(err))
		}
		return nil
	}

	entries := make([]Entry, 0, len(scores))
	for _, z := range scores {
		var entry Entry
		if err := sonic.Unmarshal([]byte(z.Member), &entry); err != nil {
			// Legacy members were bare fingerprints
			entry = Entry{Fingerprint: z.Member}
		}
		entry.ShownAt = time.UnixMilli(int64(z.Score))
		entries = append(entries, entry)
	}

	return entries
}

// Record inserts a surfaced outfit and opportunistically trims entries that
// fell out of the window. Failures are logged and dropped.
func (s *Store) Record(ctx context.Context, userID string, entry Entry) {
	if userID == "" || entry.Fingerprint == "" {
		return
	}

	member, err := sonic.MarshalString(entry)
	if err != nil {
		s.logger.Warn("Failed to marshal repetition entry", zap.Error(err))
		return
	}

	key := keyPrefix + userID
	now := time.Now()

	err = s.client.Do(ctx, s.client.B().
		Zadd().
		Key(key).
		ScoreMember().
		ScoreMember(float64(now.UnixMilli()), member).
		Build(),
	).Error()
	if err != nil {
		s.logger.Warn("Failed to record shown outfit",
			zap.String("userID", userID),
			zap.Error(err))
		return
	}

	cutoff := now.Add(-s.window).UnixMilli()
	err = s.client.Do(ctx, s.client.B().
		Zremrangebyscore().
		Key(key).
		Min("-inf").
		Max("("+strconv.FormatInt(cutoff, 10)).
		Build(),
	).Error()
	if err != nil {
		s.logger.Warn("Failed to trim repetition history",
			zap.String("userID", userID),
			zap.Error(err))
	}
}
