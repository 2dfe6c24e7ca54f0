package tracking

import (
	"time"

	"github.com/langchou/buskru/internal/config"
	"github.com/langchou/buskru/internal/geo"
)

// Options 会话参数
type Options struct {
	AccuracyThresholdM float64       // 精度差于该值的样本被丢弃
	MinDistanceM       float64       // 小于该位移视为漂移
	TrailSize          int           // 最近轨迹点数量
	ETARefreshInterval time.Duration // ETA 刷新间隔
	DefaultSpeedKmh    float64       // 无速度时的估算速度
	LiveQueueSize      int
	FeedSize           int
	Clock              func() time.Time
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		AccuracyThresholdM: 50,
		MinDistanceM:       5,
		TrailSize:          10,
		ETARefreshInterval: 30 * time.Second,
		DefaultSpeedKmh:    geo.DefaultSpeedKmh,
		LiveQueueSize:      64,
		FeedSize:           1,
		Clock:              time.Now,
	}
}

// OptionsFromConfig 由配置生成会话参数
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.AccuracyThresholdM = cfg.AccuracyThresholdM
	opts.MinDistanceM = cfg.MinDistanceM
	opts.TrailSize = cfg.TrailSize
	opts.ETARefreshInterval = cfg.ETARefreshInterval
	opts.DefaultSpeedKmh = cfg.DefaultSpeedKmh
	opts.LiveQueueSize = cfg.LiveQueueSize
	opts.FeedSize = cfg.SampleFeedSize
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AccuracyThresholdM <= 0 {
		o.AccuracyThresholdM = d.AccuracyThresholdM
	}
	if o.MinDistanceM < 0 {
		o.MinDistanceM = d.MinDistanceM
	}
	if o.TrailSize <= 0 {
		o.TrailSize = d.TrailSize
	}
	if o.ETARefreshInterval <= 0 {
		o.ETARefreshInterval = d.ETARefreshInterval
	}
	if o.DefaultSpeedKmh <= 0 {
		o.DefaultSpeedKmh = d.DefaultSpeedKmh
	}
	if o.LiveQueueSize <= 0 {
		o.LiveQueueSize = d.LiveQueueSize
	}
	if o.FeedSize <= 0 {
		o.FeedSize = d.FeedSize
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
