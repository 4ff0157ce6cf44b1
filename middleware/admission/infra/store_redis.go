package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
)

// O relógio é o do Redis (TIME), nunca o do nó do gateway: nós com relógios
// divergentes enxergam a mesma janela.
const redisNowMs = `
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
`

// incrementScript faz check-then-act dentro do Redis (atômico por chave).
//
// KEYS[1] = chave; ARGV = window_ms, ttl_ms.
// Retorna {count, start_ms, window_ms} do registro pós-incremento.
var incrementScript = redis.NewScript(redisNowMs + `
local start = redis.call('HGET', KEYS[1], 'start')
local win = redis.call('HGET', KEYS[1], 'window')
if start and win then
  start = tonumber(start)
  win = tonumber(win)
  if now < start + win then
    local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
    return {count, start, win}
  end
end
redis.call('HSET', KEYS[1], 'count', 1, 'start', string.format('%d', now), 'window', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, now, tonumber(ARGV[1])}
`)

// peekScript só lê: {now_ms} sem registro, {count, start, window, now_ms} com.
var peekScript = redis.NewScript(redisNowMs + `
local v = redis.call('HMGET', KEYS[1], 'count', 'start', 'window')
if not v[1] or not v[2] or not v[3] then
  return {now}
end
return {v[1], v[2], v[3], now}
`)

// RedisCounterStore é o CounterStore distribuído: um hash {count,start,window}
// por chave, com PEXPIRE = window * ttlFactor.
type RedisCounterStore struct {
	rdb       redis.Cmdable
	prefix    string
	ttlFactor int64
}

type RedisStoreOption func(*RedisCounterStore)

// WithCounterPrefix prefixa as chaves no Redis (padrão "admission:counter").
func WithCounterPrefix(prefix string) RedisStoreOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisTTLFactor(factor int) RedisStoreOption {
	return func(s *RedisCounterStore) {
		if factor < 1 {
			factor = 1
		}
		s.ttlFactor = int64(factor)
	}
}

// NewRedisCounterStore aceita *redis.Client, *redis.ClusterClient ou *redis.Ring.
func NewRedisCounterStore(rdb redis.Cmdable, opts ...RedisStoreOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:       rdb,
		prefix:    "admission:counter",
		ttlFactor: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) redisKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// IncrementAndGet implementa domain.CounterStore.
func (s *RedisCounterStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (domain.CounterState, error) {
	if s == nil || s.rdb == nil {
		return domain.CounterState{}, fmt.Errorf("%w: redis client not configured", domain.ErrStoreUnavailable)
	}
	if window <= 0 {
		return domain.CounterState{}, fmt.Errorf("%w: window must be > 0", domain.ErrInvalidPolicy)
	}

	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}
	vals, err := incrementScript.Run(ctx, s.rdb, []string{s.redisKey(key)},
		windowMs, windowMs*s.ttlFactor,
	).Int64Slice()
	if err != nil {
		return domain.CounterState{}, fmt.Errorf("%w: increment %q: %v", domain.ErrStoreUnavailable, key, err)
	}
	if len(vals) != 3 {
		return domain.CounterState{}, fmt.Errorf("%w: increment %q: unexpected reply %v", domain.ErrStoreUnavailable, key, vals)
	}

	return domain.CounterState{
		Count:       vals[0],
		WindowStart: time.UnixMilli(vals[1]),
		Window:      time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// Peek implementa domain.CounterStore com um script só de leitura; a janela
// vencida é julgada pelo relógio do Redis.
func (s *RedisCounterStore) Peek(ctx context.Context, key string) (domain.CounterState, bool, error) {
	if s == nil || s.rdb == nil {
		return domain.CounterState{}, false, fmt.Errorf("%w: redis client not configured", domain.ErrStoreUnavailable)
	}

	vals, err := peekScript.Run(ctx, s.rdb, []string{s.redisKey(key)}).Slice()
	if err != nil {
		return domain.CounterState{}, false, fmt.Errorf("%w: peek %q: %v", domain.ErrStoreUnavailable, key, err)
	}
	switch len(vals) {
	case 1:
		return domain.CounterState{}, false, nil
	case 4:
	default:
		return domain.CounterState{}, false, fmt.Errorf("%w: peek %q: unexpected reply %v", domain.ErrStoreUnavailable, key, vals)
	}

	count, err1 := parseRedisInt(vals[0])
	start, err2 := parseRedisInt(vals[1])
	win, err3 := parseRedisInt(vals[2])
	now, err4 := parseRedisInt(vals[3])
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return domain.CounterState{}, false, fmt.Errorf("%w: peek %q: corrupt record: %v", domain.ErrStoreUnavailable, key, err)
	}

	st := domain.CounterState{
		Count:       count,
		WindowStart: time.UnixMilli(start),
		Window:      time.Duration(win) * time.Millisecond,
	}
	if st.Elapsed(time.UnixMilli(now)) {
		return domain.CounterState{}, false, nil
	}
	return st, true, nil
}

func parseRedisInt(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseInt(t, 10, 64)
	case int64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

var _ domain.CounterStore = (*RedisCounterStore)(nil)
