// Package live 负责把行程实时状态写入外部实时存储。
// 从本应用的角度只写不读：每次写入都携带字段的完整当前值，后写覆盖先写。
package live

import (
	"context"
	"errors"
	"time"

	"github.com/langchou/buskru/internal/models"
)

// 写操作名称，用于日志和指标
const (
	OpInitialize = "initialize"
	OpPosition   = "position"
	OpETA        = "eta"
	OpPassengers = "passengers"
	OpCondition  = "condition"
	OpStatus     = "status"
	OpClear      = "clear"
)

// Channel 实时状态通道
type Channel interface {
	// Initialize 创建或覆盖实时记录，动态字段全部归零
	Initialize(ctx context.Context, tripID int64, meta models.LiveMeta, at time.Time) error
	// PublishPosition 覆盖位置、轨迹和总里程
	PublishPosition(ctx context.Context, tripID int64, pos models.Position, totalDistanceKm float64, trail models.Trail) error
	// PublishETA 只覆盖 ETA 子记录
	PublishETA(ctx context.Context, tripID int64, eta models.ETA) error
	PublishPassengerCount(ctx context.Context, tripID int64, count int) error
	PublishCondition(ctx context.Context, tripID int64, condition models.Condition, at time.Time) error
	PublishStatus(ctx context.Context, tripID int64, status string) error
	// Clear 删除整条实时记录
	Clear(ctx context.Context, tripID int64) error
}

// Fanout 同时写入多个通道
type Fanout []Channel

func (f Fanout) each(fn func(c Channel) error) error {
	var errs []error
	for _, c := range f {
		if err := fn(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Initialize(ctx context.Context, tripID int64, meta models.LiveMeta, at time.Time) error {
	return f.each(func(c Channel) error { return c.Initialize(ctx, tripID, meta, at) })
}

func (f Fanout) PublishPosition(ctx context.Context, tripID int64, pos models.Position, totalDistanceKm float64, trail models.Trail) error {
	return f.each(func(c Channel) error { return c.PublishPosition(ctx, tripID, pos, totalDistanceKm, trail) })
}

func (f Fanout) PublishETA(ctx context.Context, tripID int64, eta models.ETA) error {
	return f.each(func(c Channel) error { return c.PublishETA(ctx, tripID, eta) })
}

func (f Fanout) PublishPassengerCount(ctx context.Context, tripID int64, count int) error {
	return f.each(func(c Channel) error { return c.PublishPassengerCount(ctx, tripID, count) })
}

func (f Fanout) PublishCondition(ctx context.Context, tripID int64, condition models.Condition, at time.Time) error {
	return f.each(func(c Channel) error { return c.PublishCondition(ctx, tripID, condition, at) })
}

func (f Fanout) PublishStatus(ctx context.Context, tripID int64, status string) error {
	return f.each(func(c Channel) error { return c.PublishStatus(ctx, tripID, status) })
}

func (f Fanout) Clear(ctx context.Context, tripID int64) error {
	return f.each(func(c Channel) error { return c.Clear(ctx, tripID) })
}
