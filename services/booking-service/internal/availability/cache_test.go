package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_MissThenHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRedisCache(rdb, time.Minute, "slots")
	ctx := context.Background()

	mock.ExpectGet("slots:ver:b1:2026-01-25").RedisNil()
	mock.ExpectGet("slots:b1:cut:2026-01-25:v0").RedisNil()
	mock.ExpectSet("slots:b1:cut:2026-01-25:v0", []byte(`["09:00","11:00"]`), time.Minute).SetVal("OK")
	mock.ExpectGet("slots:b1:cut:2026-01-25:v0").SetVal(`["09:00","11:00"]`)

	v, err := c.Version(ctx, "b1", "2026-01-25")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, ok, err := c.Get(ctx, "b1", "cut", "2026-01-25", v)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "b1", "cut", "2026-01-25", v, []string{"09:00", "11:00"}))

	slots, ok, err := c.Get(ctx, "b1", "cut", "2026-01-25", v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"09:00", "11:00"}, slots)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_InvalidateBumpsVersion(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRedisCache(rdb, time.Minute, "")

	mock.ExpectIncr("slots:ver:b1:2026-01-25").SetVal(3)
	mock.ExpectExpire("slots:ver:b1:2026-01-25", versionTTL).SetVal(true)
	mock.ExpectGet("slots:ver:b1:2026-01-25").SetVal("3")

	require.NoError(t, c.Invalidate(context.Background(), "b1", "2026-01-25"))
	v, err := c.Version(context.Background(), "b1", "2026-01-25")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_PropagatesErrors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRedisCache(rdb, time.Minute, "slots")
	mock.ExpectGet("slots:ver:b1:2026-01-25").SetErr(errors.New("connection refused"))

	_, err := c.Version(context.Background(), "b1", "2026-01-25")
	assert.Error(t, err)
}
