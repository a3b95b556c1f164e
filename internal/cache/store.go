package cache

import (
	"context"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	responseKeyPrefix = "response:"
	imageKeyPrefix    = "image:"
	dedupKeyPrefix    = "dedup:"
)

// Store is the persistent cache layer shared across server instances. It
// holds three independent caches with separate key derivations and TTLs:
// the cross-instance response cache, the image cache, and the per-user photo
// dedup lookup. Reads and writes never fail the request; any Redis error
// degrades to a miss or a dropped write.
type Store struct {
	cache       rueidis.Client
	dedup       rueidis.Client
	responseTTL time.Duration
	dedupTTL    time.Duration
	logger      *zap.Logger
}

// NewStore creates the persistent cache layer. The cache client serves
// responses and images; the dedup client serves the photo-hash lookup.
func NewStore(
	cache rueidis.Client, dedup rueidis.Client,
	responseTTL, dedupTTL time.Duration, logger *zap.Logger,
) *Store {
	return &Store{
		cache:       cache,
		dedup:       dedup,
		responseTTL: responseTTL,
		dedupTTL:    dedupTTL,
		logger:      logger.Named("cache_store"),
	}
}

// GetResponse looks up a cached response by request fingerprint.
func (s *Store) GetResponse(ctx context.Context, fingerprint string) ([]byte, bool) {
	return s.get(ctx, s.cache, responseKeyPrefix+fingerprint)
}

// SetResponse stores a response payload under the request fingerprint.
func (s *Store) SetResponse(ctx context.Context, fingerprint string, payload []byte) {
	s.set(ctx, s.cache, responseKeyPrefix+fingerprint, payload, s.responseTTL)
}

// GetImage looks up a generated image URL by prompt+color fingerprint.
func (s *Store) GetImage(ctx context.Context, fingerprint string) (string, bool) {
	payload, ok := s.get(ctx, s.cache, imageKeyPrefix+fingerprint)
	if !ok {
		return "", false
	}
	return string(payload), true
}

// SetImage stores a generated image URL. Image entries carry no TTL; the
// underlying store's eviction policy bounds them.
func (s *Store) SetImage(ctx context.Context, fingerprint, url string) {
	s.set(ctx, s.cache, imageKeyPrefix+fingerprint, []byte(url), 0)
}

// GetDedup returns the user's own prior response for an identical photo
// uploaded within the dedup window.
func (s *Store) GetDedup(ctx context.Context, userID, photoHash string) ([]byte, bool) {
	return s.get(ctx, s.dedup, dedupKeyPrefix+userID+":"+photoHash)
}

// SetDedup stores the full response under the user's photo hash.
func (s *Store) SetDedup(ctx context.Context, userID, photoHash string, payload []byte) {
	s.set(ctx, s.dedup, dedupKeyPrefix+userID+":"+photoHash, payload, s.dedupTTL)
}

// get performs a lookup that treats every failure as a miss.
func (s *Store) get(ctx context.Context, client rueidis.Client, key string) ([]byte, bool) {
	payload, err := client.Do(ctx, client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			s.logger.Warn("Cache read failed, treating as miss",
				zap.String("key", key),
				zap.Error(err))
		}
		return nil, false
	}

	return payload, true
}

// set performs a write whose failure is logged and dropped.
func (s *Store) set(ctx context.Context, client rueidis.Client, key string, payload []byte, ttl time.Duration) {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = client.B().Set().Key(key).Value(rueidis.BinaryString(payload)).Ex(ttl).Build()
	} else {
		cmd = client.B().Set().Key(key).Value(rueidis.BinaryString(payload)).Build()
	}

	if err := client.Do(ctx, cmd).Error(); err != nil {
		s.logger.Warn("Cache write failed, dropping entry",
			zap.String("key", key),
			zap.Error(err))
	}
}
