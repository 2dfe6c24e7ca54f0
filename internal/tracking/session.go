package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/geo"
	"github.com/langchou/buskru/internal/live"
	"github.com/langchou/buskru/internal/metrics"
	"github.com/langchou/buskru/internal/models"
	"github.com/langchou/buskru/internal/state"
)

const subscriberBuffer = 64

// ETAProvider 远程 ETA 查询
type ETAProvider interface {
	FetchETA(ctx context.Context, origin, destination models.Coordinate) (*models.ETA, error)
}

// Snapshot 会话当前状态的只读副本
type Snapshot struct {
	State           string              `json:"state"`
	Trip            models.TripContext  `json:"trip"`
	TotalDistanceKm float64             `json:"total_distance_km"`
	Trail           models.Trail        `json:"trail"`
	SampleCount     int                 `json:"sample_count"`
	Passengers      int                 `json:"passengers"`
	Condition       models.Condition    `json:"condition"`
	Position        *models.Position    `json:"position,omitempty"`
	ETA             *models.ETA         `json:"eta,omitempty"`
	StartedAt       time.Time           `json:"started_at"`
	LastSampleAt    *time.Time          `json:"last_sample_at,omitempty"`
	Summary         *models.TripSummary `json:"summary,omitempty"`
}

// Session 单次行程的跟踪会话
// 样本、乘客数和路况更新通过 mu 串行；实时写入经 live.Async 有序异步发出
type Session struct {
	opts    Options
	channel live.Channel
	eta     ETAProvider
	logger  *zap.Logger
	metrics *metrics.Collector
	machine *state.Machine

	mu   sync.Mutex
	trip models.TripContext
	live *live.Async

	anchor       models.Coordinate
	hasAnchor    bool
	totalKm      float64
	trail        models.Trail
	sampleCount  int
	startedAt    time.Time
	lastETAAt    time.Time
	lastSpeedKmh float64
	lastSampleAt time.Time
	position     *models.Position
	lastETA      *models.ETA
	condition    models.Condition
	passengers   int
	summary      *models.TripSummary

	subscribers []chan models.Event

	cancel    context.CancelFunc
	runCtx    context.Context
	etaCancel context.CancelFunc
	etaWG     sync.WaitGroup
	streamWG  sync.WaitGroup
}

// NewSession 创建 idle 状态的会话
func NewSession(channel live.Channel, eta ETAProvider, opts Options, logger *zap.Logger, m *metrics.Collector) *Session {
	s := &Session{
		opts:      opts.withDefaults(),
		channel:   channel,
		eta:       eta,
		logger:    logger,
		metrics:   m,
		condition: models.ConditionSmooth,
	}
	s.machine = state.NewMachine(func(from, to string) {
		s.logger.Info("Session state changed",
			zap.Int64("trip_id", s.trip.TripID),
			zap.String("from", from),
			zap.String("to", to))
	})
	return s
}

// Start 启动会话并开始消费样本流
func (s *Session) Start(ctx context.Context, trip models.TripContext, stream Stream) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.Is(state.StateIdle) {
		return ErrAlreadyStarted
	}

	destination, err := geo.Destination(trip.Polyline)
	if err != nil {
		return fmt.Errorf("%w: trip %d: %v", ErrInvalidTripGeometry, trip.TripID, err)
	}
	trip.Destination = destination

	now := s.opts.Clock()
	s.trip = trip
	s.hasAnchor = false
	s.anchor = models.Coordinate{}
	s.totalKm = 0
	s.trail = make(models.Trail, 0, s.opts.TrailSize)
	s.sampleCount = 0
	s.startedAt = now
	s.lastETAAt = time.Time{}
	s.lastSpeedKmh = 0
	s.lastSampleAt = time.Time{}
	s.position = nil
	s.lastETA = nil
	s.condition = models.ConditionSmooth
	s.passengers = 0

	s.live = live.NewAsync(s.channel, s.opts.LiveQueueSize, s.logger, s.metrics)
	s.live.Initialize(trip.TripID, models.MetaFromTrip(&trip), now)

	if err := s.machine.Trigger(state.EventStart); err != nil {
		s.live.Clear(trip.TripID)
		s.live.Close()
		return err
	}

	s.runCtx, s.cancel = context.WithCancel(context.Background())
	if stream != nil {
		s.streamWG.Add(1)
		go s.consume(s.runCtx, stream)
	}

	s.metrics.SessionStarted()
	s.logger.Info("Tracking session started",
		zap.Int64("trip_id", trip.TripID),
		zap.String("route", trip.RouteName),
		zap.Float64("dest_lat", destination.Lat),
		zap.Float64("dest_lng", destination.Lng))

	return nil
}

func (s *Session) consume(ctx context.Context, stream Stream) {
	defer s.streamWG.Done()

	samples := stream.Samples()
	errs := stream.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			s.OnLocationSample(sample)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.fault(err)
			return
		}
	}
}

// OnLocationSample 处理一个定位样本，非 active 时忽略
func (s *Session) OnLocationSample(sample models.LocationSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.Is(state.StateActive) {
		s.metrics.SampleRejected(metrics.RejectInactive)
		return
	}
	if sample.AccuracyM > s.opts.AccuracyThresholdM {
		s.metrics.SampleRejected(metrics.RejectLowAccuracy)
		s.logger.Debug("Sample rejected: low accuracy",
			zap.Int64("trip_id", s.trip.TripID),
			zap.Float64("accuracy_m", sample.AccuracyM))
		return
	}

	now := s.opts.Clock()
	if sample.At.IsZero() {
		sample.At = now
	}
	coord := sample.Coordinate()

	addedKm := 0.0
	if !s.hasAnchor {
		s.anchor = coord
		s.hasAnchor = true
	} else if d := geo.GroundDistanceMeters(s.anchor, coord); d > s.opts.MinDistanceM {
		addedKm = d / 1000
		s.totalKm += addedKm
		s.anchor = coord
	}

	s.trail = append(s.trail, coord)
	if len(s.trail) > s.opts.TrailSize {
		s.trail = append(models.Trail(nil), s.trail[len(s.trail)-s.opts.TrailSize:]...)
	}
	s.sampleCount++
	s.lastSpeedKmh = sample.SpeedKmh()
	s.lastSampleAt = sample.At

	pos := models.Position{
		Lat:        coord.Lat,
		Lng:        coord.Lng,
		Speed:      s.lastSpeedKmh,
		LastUpdate: models.FormatTimestamp(sample.At),
	}
	s.position = &pos
	s.live.PublishPosition(s.trip.TripID, pos, s.totalKm, s.trail)
	s.metrics.SampleAccepted(addedKm)

	s.emit(models.Event{
		Type: models.EventProgress,
		At:   now,
		Progress: &models.Progress{
			Sample:          sample,
			TotalDistanceKm: s.totalKm,
			AddedKm:         addedKm,
			Trail:           s.trailCopy(),
			SampleCount:     s.sampleCount,
		},
	})

	if s.lastETAAt.IsZero() || now.Sub(s.lastETAAt) >= s.opts.ETARefreshInterval {
		s.lastETAAt = now
		s.refreshETA(coord, s.lastSpeedKmh)
	}
}

// refreshETA 在后台刷新 ETA，新的刷新会取消仍未完成的旧刷新
func (s *Session) refreshETA(origin models.Coordinate, speedKmh float64) {
	if s.etaCancel != nil {
		s.etaCancel()
	}
	ctx, cancel := context.WithCancel(s.runCtx)
	s.etaCancel = cancel

	tripID := s.trip.TripID
	destination := s.trip.Destination
	if speedKmh <= 0 {
		speedKmh = s.opts.DefaultSpeedKmh
	}

	s.etaWG.Add(1)
	go func() {
		defer s.etaWG.Done()

		eta := s.computeETA(ctx, tripID, origin, destination, speedKmh)

		s.mu.Lock()
		defer s.mu.Unlock()
		if ctx.Err() != nil || !s.machine.Is(state.StateActive) {
			s.logger.Debug("ETA result discarded", zap.Int64("trip_id", tripID))
			return
		}

		s.lastETA = &eta
		s.live.PublishETA(tripID, eta)
		s.metrics.ETARefreshed(eta.Source)
		s.emit(models.Event{Type: models.EventETA, At: s.opts.Clock(), ETA: &eta})
	}()
}

func (s *Session) computeETA(ctx context.Context, tripID int64, origin, destination models.Coordinate, speedKmh float64) models.ETA {
	if s.eta != nil {
		remote, err := s.eta.FetchETA(ctx, origin, destination)
		if err == nil && remote != nil {
			return *remote
		}
		if ctx.Err() == nil {
			s.logger.Warn("Remote ETA failed, using estimate",
				zap.Int64("trip_id", tripID),
				zap.Error(err))
		}
	}
	return geo.Estimate(origin, destination, speedKmh, s.opts.Clock())
}

// UpdatePassengerCount 乘客数加一或减一，返回更新后的人数
func (s *Session) UpdatePassengerCount(delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.Is(state.StateActive) {
		return s.passengers, ErrNotActive
	}
	if delta != 1 && delta != -1 {
		return s.passengers, ErrInvalidDelta
	}

	next := s.passengers + delta
	if next > s.trip.Capacity {
		return s.passengers, fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, s.trip.Capacity)
	}
	if next < 0 {
		return s.passengers, ErrUnderflow
	}

	s.passengers = next
	s.live.PublishPassengerCount(s.trip.TripID, next)
	s.emit(models.Event{Type: models.EventPassengers, At: s.opts.Clock(), Passengers: &next})
	return next, nil
}

// UpdateCondition 更新路况
func (s *Session) UpdateCondition(condition models.Condition) error {
	if !condition.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCondition, condition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.Is(state.StateActive) {
		return ErrNotActive
	}

	now := s.opts.Clock()
	s.condition = condition
	s.live.PublishCondition(s.trip.TripID, condition, now)
	s.emit(models.Event{Type: models.EventCondition, At: now, Condition: condition})
	return nil
}

// Stop 结束会话，返回行程汇总；重复调用返回 ErrNotActive
func (s *Session) Stop(ctx context.Context) (models.TripSummary, error) {
	return s.stop(ctx, ReasonUser, true)
}

func (s *Session) fault(err error) {
	s.mu.Lock()
	if !s.machine.Is(state.StateActive) {
		s.mu.Unlock()
		return
	}
	s.logger.Error("Location stream failed, stopping session",
		zap.Int64("trip_id", s.trip.TripID),
		zap.Error(err))
	s.emit(models.Event{Type: models.EventFault, At: s.opts.Clock(), Error: err.Error()})
	s.mu.Unlock()

	// 在消费协程内调用，不能等待自身退出
	if _, stopErr := s.stop(context.Background(), ReasonFault, false); stopErr != nil && !errors.Is(stopErr, ErrNotActive) {
		s.logger.Warn("Stop after stream fault failed", zap.Error(stopErr))
	}
}

func (s *Session) stop(ctx context.Context, reason string, waitStream bool) (models.TripSummary, error) {
	s.mu.Lock()
	if !s.machine.Is(state.StateActive) {
		s.mu.Unlock()
		return models.TripSummary{}, ErrNotActive
	}

	s.cancel()
	now := s.opts.Clock()
	tripID := s.trip.TripID

	s.live.PublishStatus(tripID, models.StatusCompleted)
	s.live.Clear(tripID)

	if err := s.machine.Trigger(state.EventStop); err != nil {
		s.mu.Unlock()
		return models.TripSummary{}, err
	}

	summary := models.TripSummary{
		TripID:              tripID,
		TotalDistanceKm:     s.totalKm,
		FinalPassengerCount: s.passengers,
		DurationMinutes:     int(math.Round(now.Sub(s.startedAt).Minutes())),
		SampleCount:         s.sampleCount,
		FinalCondition:      s.condition,
		StartedAt:           s.startedAt,
		EndedAt:             now,
	}
	s.summary = &summary

	s.emitFinal(models.Event{Type: models.EventStopped, At: now, Summary: &summary})
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil

	async := s.live
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.etaWG.Wait()
		if waitStream {
			s.streamWG.Wait()
		}
		async.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Session stop returned before live writes drained", zap.Int64("trip_id", tripID))
	}

	s.metrics.SessionStopped(reason)
	s.logger.Info("Tracking session stopped",
		zap.Int64("trip_id", tripID),
		zap.String("reason", reason),
		zap.Float64("distance_km", summary.TotalDistanceKm),
		zap.Int("duration_min", summary.DurationMinutes),
		zap.Int("samples", summary.SampleCount))

	return summary, nil
}

// Subscribe 订阅会话事件，会话结束后通道关闭
// 消费过慢时丢弃新事件；stopped 事件总会送达，必要时挤掉最旧的事件
func (s *Session) Subscribe() <-chan models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.Event, subscriberBuffer)
	if s.machine.Is(state.StateStopped) {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// emit 调用方持有 mu
func (s *Session) emit(event models.Event) {
	event.TripID = s.trip.TripID
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Debug("Subscriber too slow, dropping event",
				zap.Int64("trip_id", s.trip.TripID),
				zap.String("type", event.Type))
		}
	}
}

// emitFinal 必达事件：缓冲区满时丢弃最旧的事件腾出位置，调用方持有 mu
func (s *Session) emitFinal(event models.Event) {
	event.TripID = s.trip.TripID
	for _, ch := range s.subscribers {
		for sent := false; !sent; {
			select {
			case ch <- event:
				sent = true
			default:
				select {
				case old := <-ch:
					s.logger.Debug("Subscriber buffer full, dropping oldest event",
						zap.Int64("trip_id", s.trip.TripID),
						zap.String("type", old.Type))
				default:
				}
			}
		}
	}
}

func (s *Session) trailCopy() models.Trail {
	out := make(models.Trail, len(s.trail))
	copy(out, s.trail)
	return out
}

// State 当前状态
func (s *Session) State() string {
	return s.machine.Current()
}

// Active 是否处于 active
func (s *Session) Active() bool {
	return s.machine.Is(state.StateActive)
}

// Trip 行程配置
func (s *Session) Trip() models.TripContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trip
}

// Snapshot 当前状态副本
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:           s.machine.Current(),
		Trip:            s.trip,
		TotalDistanceKm: s.totalKm,
		Trail:           s.trailCopy(),
		SampleCount:     s.sampleCount,
		Passengers:      s.passengers,
		Condition:       s.condition,
		StartedAt:       s.startedAt,
	}
	if !s.lastSampleAt.IsZero() {
		at := s.lastSampleAt
		snap.LastSampleAt = &at
	}
	if s.position != nil {
		pos := *s.position
		snap.Position = &pos
	}
	if s.lastETA != nil {
		eta := *s.lastETA
		snap.ETA = &eta
	}
	if s.summary != nil {
		summary := *s.summary
		snap.Summary = &summary
	}
	return snap
}
