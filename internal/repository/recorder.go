package repository

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/models"
)

// Recorder 订阅会话事件，持久化轨迹点和行程汇总；写库失败只记日志
type Recorder struct {
	tracks  *TrackRepository
	trips   *TripRepository
	logger  *zap.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

// NewRecorder 创建记录器
func NewRecorder(tracks *TrackRepository, trips *TripRepository, logger *zap.Logger) *Recorder {
	return &Recorder{
		tracks:  tracks,
		trips:   trips,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Record 消费事件直到通道关闭
func (r *Recorder) Record(events <-chan models.Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for ev := range events {
			r.handle(ev)
		}
	}()
}

// Wait 等待所有事件处理完
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) handle(ev models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	switch ev.Type {
	case models.EventProgress:
		if ev.Progress == nil {
			return
		}
		p := models.TrackPointFromProgress(ev.TripID, ev.Progress)
		if err := r.tracks.AddPoint(ctx, &p); err != nil {
			r.logger.Warn("Failed to save track point", zap.Int64("trip_id", ev.TripID), zap.Error(err))
		}
	case models.EventStopped:
		if ev.Summary == nil {
			return
		}
		if err := r.trips.SaveSummary(ctx, ev.Summary); err != nil {
			r.logger.Error("Failed to save trip summary", zap.Int64("trip_id", ev.TripID), zap.Error(err))
			return
		}
		r.logger.Info("Trip summary saved",
			zap.Int64("trip_id", ev.TripID),
			zap.Float64("distance_km", ev.Summary.TotalDistanceKm),
			zap.Int("duration_min", ev.Summary.DurationMinutes))
	}
}
