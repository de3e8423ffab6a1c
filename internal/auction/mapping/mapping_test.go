package mapping

import (
	"context"
	"errors"
	"testing"
	"time"

	"auctionworker/pkg/logger"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisMapper_Lifecycle(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	m := newRedisMapper(rdb, time.Hour, logger.Discard())

	assert.NoError(t, m.Create(ctx, "a1", "http://worker-3:8080"))
	check.Equal(t, time.Hour, rdb.ttls["auction:worker:a1"])

	url, ok, err := m.Lookup(ctx, "a1")
	assert.NoError(t, err)
	check.True(t, ok)
	check.Equal(t, "http://worker-3:8080", url)

	assert.NoError(t, m.Delete(ctx, "a1"))
	_, ok, err = m.Lookup(ctx, "a1")
	assert.NoError(t, err)
	check.False(t, ok)
}

func TestRedisMapper_CreateError(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("READONLY")
	err := newRedisMapper(rdb, time.Hour, logger.Discard()).Create(context.Background(), "a1", "u")
	check.Error(t, err)
}

func TestNew_WithoutRedisIsNoop(t *testing.T) {
	m := New(nil, time.Hour, logger.Discard())
	_, ok := m.(Noop)
	check.True(t, ok)
	check.NoError(t, m.Create(context.Background(), "a1", "u"))
}
