package live

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/langchou/buskru/internal/models"
)

// RedisChannel 基于 Redis 哈希的实时存储
// 每个行程一个哈希 <prefix>:bus_<tripID>，嵌套字段 position/trail/eta 以 JSON 存储
type RedisChannel struct {
	client *redis.Client
	prefix string
}

// NewRedisChannel 创建 Redis 通道
func NewRedisChannel(client *redis.Client, prefix string) *RedisChannel {
	if prefix == "" {
		prefix = "buses"
	}
	return &RedisChannel{client: client, prefix: prefix}
}

// Key 行程实时记录的键
func (c *RedisChannel) Key(tripID int64) string {
	return fmt.Sprintf("%s:bus_%d", c.prefix, tripID)
}

// Initialize 先删除旧记录再写入完整初始文档
func (c *RedisChannel) Initialize(ctx context.Context, tripID int64, meta models.LiveMeta, at time.Time) error {
	fields, err := recordFields(models.NewLiveRecord(meta, at))
	if err != nil {
		return err
	}

	key := c.Key(tripID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize live record %s: %w", key, err)
	}
	return nil
}

// PublishPosition 覆盖位置、轨迹和总里程
func (c *RedisChannel) PublishPosition(ctx context.Context, tripID int64, pos models.Position, totalDistanceKm float64, trail models.Trail) error {
	position, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	if trail == nil {
		trail = models.Trail{}
	}
	trailJSON, err := json.Marshal(trail)
	if err != nil {
		return fmt.Errorf("marshal trail: %w", err)
	}

	return c.hset(ctx, tripID,
		"position", string(position),
		"trail", string(trailJSON),
		"totalDistance", totalDistanceKm,
	)
}

// PublishETA 只覆盖 eta 字段
func (c *RedisChannel) PublishETA(ctx context.Context, tripID int64, eta models.ETA) error {
	data, err := json.Marshal(eta)
	if err != nil {
		return fmt.Errorf("marshal eta: %w", err)
	}
	return c.hset(ctx, tripID, "eta", string(data))
}

func (c *RedisChannel) PublishPassengerCount(ctx context.Context, tripID int64, count int) error {
	return c.hset(ctx, tripID, "passengers", count)
}

func (c *RedisChannel) PublishCondition(ctx context.Context, tripID int64, condition models.Condition, at time.Time) error {
	return c.hset(ctx, tripID,
		"condition", string(condition),
		"conditionUpdatedAt", models.FormatTimestamp(at),
	)
}

func (c *RedisChannel) PublishStatus(ctx context.Context, tripID int64, status string) error {
	return c.hset(ctx, tripID, "status", status)
}

// Clear 删除整条记录
func (c *RedisChannel) Clear(ctx context.Context, tripID int64) error {
	if err := c.client.Del(ctx, c.Key(tripID)).Err(); err != nil {
		return fmt.Errorf("clear live record %s: %w", c.Key(tripID), err)
	}
	return nil
}

// recordFields 把完整文档展开为 hash 字段，嵌套结构存 JSON
func recordFields(rec models.LiveRecord) (map[string]interface{}, error) {
	position, err := json.Marshal(rec.Position)
	if err != nil {
		return nil, fmt.Errorf("marshal position: %w", err)
	}
	trail := rec.Trail
	if trail == nil {
		trail = models.Trail{}
	}
	trailJSON, err := json.Marshal(trail)
	if err != nil {
		return nil, fmt.Errorf("marshal trail: %w", err)
	}
	eta, err := json.Marshal(rec.ETA)
	if err != nil {
		return nil, fmt.Errorf("marshal eta: %w", err)
	}

	return map[string]interface{}{
		"busName":            rec.BusName,
		"plateNumber":        rec.PlateNumber,
		"class":              rec.Class,
		"route":              rec.Route,
		"capacity":           rec.Capacity,
		"driver":             rec.Driver,
		"routePolyline":      rec.RoutePolyline,
		"passengers":         rec.Passengers,
		"status":             rec.Status,
		"condition":          string(rec.Condition),
		"conditionUpdatedAt": rec.ConditionUpdatedAt,
		"position":           string(position),
		"trail":              string(trailJSON),
		"eta":                string(eta),
		"totalDistance":      rec.TotalDistance,
	}, nil
}

func (c *RedisChannel) hset(ctx context.Context, tripID int64, values ...interface{}) error {
	key := c.Key(tripID)
	if err := c.client.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("update live record %s: %w", key, err)
	}
	return nil
}
