package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore persiste contagens agregadas no Redis, para painéis que
// precisam de histórico além da memória de um processo.
//
// Layout:
//
//	<prefix>:total                          hash  <category>:<outcome> -> n
//	<prefix>:minute:<yyyymmddhhmm>          hash  <category>:<outcome> -> n   (TTL)
//	<prefix>:class:<yyyymmddhhmm>:<category> hash  <class>:<outcome> -> n    (TTL, opcional)
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackClasses bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithStatsTrackClasses grava também a série por classe de identidade.
func WithStatsTrackClasses(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackClasses = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "admission:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implementa domain.EventSink.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.SecurityEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Category) + ":" + string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		minute := at.UTC().Format("200601021504")
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, minute)
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}

		if s.trackClasses && ev.IdentityClass != "" {
			classKey := fmt.Sprintf("%s:class:%s:%s", s.prefix, minute, ev.Category)
			pipe.HIncrBy(ctx, classKey, ev.IdentityClass+":"+string(ev.Outcome), 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, classKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê o hash cumulativo e devolve contagens por categoria.
func (s *RedisStatsStore) Totals(ctx context.Context) (map[domain.Category]domain.OutcomeCounts, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("redis stats store not configured")
	}
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Category]domain.OutcomeCounts)
	for field, v := range raw {
		cat, outcome, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		c := out[domain.Category(cat)]
		if c == nil {
			c = domain.OutcomeCounts{}
			out[domain.Category(cat)] = c
		}
		c[domain.Outcome(outcome)] += n
	}
	return out, nil
}

var _ domain.EventSink = (*RedisStatsStore)(nil)
