package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/certverify/internal/cache"
	"github.com/example/certverify/internal/certificate"
)

// Cache is the key/value surface CachedLookup needs.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// CachedLookup is a read-through cache in front of a slower Lookup. Keys are
// relative; the Cache is expected to namespace them.
// Cache failures are logged and fall through to the source.
type CachedLookup struct {
	source Lookup
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedLookup wraps source with cache.
func NewCachedLookup(source Lookup, c Cache, ttl time.Duration, logger *zap.Logger) *CachedLookup {
	return &CachedLookup{source: source, cache: c, ttl: ttl, logger: logger.Named("registry_cache")}
}

type cachedFingerprint struct {
	Found  bool                        `json:"found"`
	Record *certificate.RegistryRecord `json:"record,omitempty"`
}

// FindByFingerprint consults the cache before the source.
func (l *CachedLookup) FindByFingerprint(ctx context.Context, fp certificate.Fingerprint) (*certificate.RegistryRecord, error) {
	key := "fp:" + fp.String()

	var hit cachedFingerprint
	if l.read(ctx, key, &hit) {
		if !hit.Found {
			return nil, ErrNotFound
		}
		return hit.Record, nil
	}

	rec, err := l.source.FindByFingerprint(ctx, fp)
	switch {
	case errors.Is(err, ErrNotFound):
		l.write(ctx, key, cachedFingerprint{Found: false})
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	l.write(ctx, key, cachedFingerprint{Found: true, Record: rec})
	return rec, nil
}

// FindByCertificateNumber consults the cache before the source.
func (l *CachedLookup) FindByCertificateNumber(ctx context.Context, number string) ([]certificate.RegistryRecord, error) {
	key := "number:" + NormalizeNumber(number)

	var hit []certificate.RegistryRecord
	if l.read(ctx, key, &hit) {
		if hit == nil {
			hit = []certificate.RegistryRecord{}
		}
		return hit, nil
	}

	recs, err := l.source.FindByCertificateNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	l.write(ctx, key, recs)
	return recs, nil
}

func (l *CachedLookup) read(ctx context.Context, key string, out interface{}) bool {
	raw, err := l.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsMiss(err) {
			l.logger.Warn("registry cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		l.logger.Warn("registry cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (l *CachedLookup) write(ctx context.Context, key string, value interface{}) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, key, string(payload), l.ttl); err != nil {
		l.logger.Warn("registry cache write failed", zap.String("key", key), zap.Error(err))
	}
}
