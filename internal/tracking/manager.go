package tracking

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/live"
	"github.com/langchou/buskru/internal/metrics"
	"github.com/langchou/buskru/internal/models"
)

// Manager 持有唯一的活动会话，启动新会话前先停止旧会话
type Manager struct {
	channel live.Channel
	eta     ETAProvider
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	current *Session
	feed    *Feed
	hooks   []func(*Session)
}

// NewManager 创建会话管理器
func NewManager(channel live.Channel, eta ETAProvider, opts Options, logger *zap.Logger, m *metrics.Collector) *Manager {
	return &Manager{
		channel: channel,
		eta:     eta,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
	}
}

// OnSessionStart 注册会话启动回调，在第一个样本进入前调用
func (m *Manager) OnSessionStart(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Start 为行程启动新会话
func (m *Manager) Start(ctx context.Context, trip models.TripContext) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Active() {
		old := m.current.Trip()
		m.logger.Warn("Replacing active session",
			zap.Int64("old_trip_id", old.TripID),
			zap.Int64("new_trip_id", trip.TripID))
		if _, err := m.current.stop(ctx, ReasonReplaced, true); err != nil && !errors.Is(err, ErrNotActive) {
			return nil, err
		}
	}

	feed := NewFeed(m.opts.FeedSize)
	session := NewSession(m.channel, m.eta, m.opts, m.logger, m.metrics)
	if err := session.Start(ctx, trip, feed); err != nil {
		return nil, err
	}

	m.current = session
	m.feed = feed
	for _, fn := range m.hooks {
		fn(session)
	}
	return session, nil
}

// Current 当前会话，可能已停止；没有时返回 nil
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Push 把样本推入当前会话
func (m *Manager) Push(sample models.LocationSample) error {
	m.mu.Lock()
	session, feed := m.current, m.feed
	m.mu.Unlock()

	if session == nil || !session.Active() {
		m.metrics.SampleRejected(metrics.RejectInactive)
		return ErrNotActive
	}
	if err := feed.Push(sample); err != nil {
		m.metrics.SampleRejected(metrics.RejectFeedFull)
		return err
	}
	return nil
}

// Fail 向当前会话注入定位源故障
func (m *Manager) Fail(err error) error {
	m.mu.Lock()
	session, feed := m.current, m.feed
	m.mu.Unlock()

	if session == nil || !session.Active() {
		return ErrNotActive
	}
	feed.Fail(err)
	return nil
}

// Stop 停止当前会话
func (m *Manager) Stop(ctx context.Context) (models.TripSummary, error) {
	m.mu.Lock()
	session := m.current
	m.mu.Unlock()

	if session == nil {
		return models.TripSummary{}, ErrNotActive
	}
	return session.Stop(ctx)
}

// Shutdown 进程退出时停止活动会话
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	session := m.current
	m.mu.Unlock()

	if session == nil {
		return
	}
	if _, err := session.stop(ctx, ReasonShutdown, true); err != nil && !errors.Is(err, ErrNotActive) {
		m.logger.Warn("Shutdown stop failed", zap.Error(err))
	}
}
