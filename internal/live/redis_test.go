package live

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/buskru/internal/models"
)

func newRedisChannel(t *testing.T) (*RedisChannel, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisChannel(client, "buses"), server
}

var testMeta = models.LiveMeta{
	BusName:       "Suroboyo 01",
	PlateNumber:   "L 1234 AB",
	Class:         "ekonomi",
	Route:         "Surabaya - Malang",
	Capacity:      40,
	Driver:        "Budi",
	RoutePolyline: "_p~iF~ps|U",
}

func TestRedisInitializeWritesZeroedRecord(t *testing.T) {
	ch, server := newRedisChannel(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	// 旧数据应被覆盖
	server.HSet(ch.Key(12), "stale", "yes")

	require.NoError(t, ch.Initialize(ctx, 12, testMeta, at))

	key := "buses:bus_12"
	assert.Equal(t, key, ch.Key(12))
	assert.Empty(t, server.HGet(key, "stale"))
	assert.Equal(t, "L 1234 AB", server.HGet(key, "plateNumber"))
	assert.Equal(t, "40", server.HGet(key, "capacity"))
	assert.Equal(t, "0", server.HGet(key, "passengers"))
	assert.Equal(t, "active", server.HGet(key, "status"))
	assert.Equal(t, "smooth", server.HGet(key, "condition"))
	assert.Equal(t, "2024-05-01T08:00:00Z", server.HGet(key, "conditionUpdatedAt"))
	assert.Equal(t, "[]", server.HGet(key, "trail"))
	assert.Equal(t, "0", server.HGet(key, "totalDistance"))

	var pos models.Position
	require.NoError(t, json.Unmarshal([]byte(server.HGet(key, "position")), &pos))
	assert.Equal(t, models.Position{LastUpdate: "2024-05-01T08:00:00Z"}, pos)

	var eta models.ETA
	require.NoError(t, json.Unmarshal([]byte(server.HGet(key, "eta")), &eta))
	assert.Equal(t, models.ETA{}, eta)
}

func TestRedisPartialUpdatesKeepOtherFields(t *testing.T) {
	ch, server := newRedisChannel(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	key := ch.Key(5)

	require.NoError(t, ch.Initialize(ctx, 5, testMeta, at))

	trail := models.Trail{{Lat: -7.25, Lng: 112.75}, {Lat: -7.26, Lng: 112.76}}
	pos := models.Position{Lat: -7.26, Lng: 112.76, Speed: 36, LastUpdate: "2024-05-01T08:00:05Z"}
	require.NoError(t, ch.PublishPosition(ctx, 5, pos, 1.5, trail))
	require.NoError(t, ch.PublishPassengerCount(ctx, 5, 12))
	require.NoError(t, ch.PublishCondition(ctx, 5, models.ConditionCongested, at.Add(time.Minute)))
	require.NoError(t, ch.PublishETA(ctx, 5, models.ETA{RemainingDistance: 80.5, RemainingTime: 95, EstimatedArrival: "2024-05-01T09:35:00Z"}))

	var gotTrail models.Trail
	require.NoError(t, json.Unmarshal([]byte(server.HGet(key, "trail")), &gotTrail))
	assert.Equal(t, trail, gotTrail)

	var gotPos models.Position
	require.NoError(t, json.Unmarshal([]byte(server.HGet(key, "position")), &gotPos))
	assert.Equal(t, pos, gotPos)

	assert.Equal(t, "1.5", server.HGet(key, "totalDistance"))
	assert.Equal(t, "12", server.HGet(key, "passengers"))
	assert.Equal(t, "congested", server.HGet(key, "condition"))
	assert.Equal(t, "2024-05-01T08:01:00Z", server.HGet(key, "conditionUpdatedAt"))
	assert.JSONEq(t, `{"remainingDistance":80.5,"remainingTime":95,"estimatedArrival":"2024-05-01T09:35:00Z"}`, server.HGet(key, "eta"))

	// 静态字段未被改动
	assert.Equal(t, "Budi", server.HGet(key, "driver"))
	assert.Equal(t, "active", server.HGet(key, "status"))
}

func TestRedisStatusAndClear(t *testing.T) {
	ch, server := newRedisChannel(t)
	ctx := context.Background()

	require.NoError(t, ch.Initialize(ctx, 9, testMeta, time.Now()))
	require.NoError(t, ch.PublishStatus(ctx, 9, models.StatusCompleted))
	assert.Equal(t, "completed", server.HGet(ch.Key(9), "status"))

	require.NoError(t, ch.Clear(ctx, 9))
	assert.False(t, server.Exists(ch.Key(9)))
}

func TestRedisUnavailable(t *testing.T) {
	ch, server := newRedisChannel(t)
	server.Close()

	err := ch.PublishPassengerCount(context.Background(), 1, 3)
	assert.Error(t, err)
}
