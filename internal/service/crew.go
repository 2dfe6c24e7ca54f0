package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/api/backend"
	"github.com/langchou/buskru/internal/models"
	"github.com/langchou/buskru/internal/tracking"
)

var (
	// ErrNotLoggedIn 乘务未登录
	ErrNotLoggedIn = errors.New("crew not logged in")
	// ErrTripInProgress 行程进行中，不能注销
	ErrTripInProgress = errors.New("trip in progress")
)

// DefaultFinishNote 结束行程的默认备注
const DefaultFinishNote = "Perjalanan selesai"

// CrewService 乘务端服务：登录态、行程生命周期以及与后端的同步
type CrewService struct {
	logger  *zap.Logger
	backend *backend.Client
	manager *tracking.Manager

	mu   sync.RWMutex
	crew *models.CrewSession
}

// NewCrewService 创建乘务服务
func NewCrewService(logger *zap.Logger, backendClient *backend.Client, manager *tracking.Manager) *CrewService {
	return &CrewService{
		logger:  logger,
		backend: backendClient,
		manager: manager,
	}
}

// Login 登录
func (s *CrewService) Login(ctx context.Context, username, password string) (*models.CrewSession, error) {
	result, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	session := &models.CrewSession{Token: result.Token, Crew: result.Crew}
	s.mu.Lock()
	s.crew = session
	s.mu.Unlock()

	s.logger.Info("Crew logged in",
		zap.Int64("crew_id", result.Crew.ID),
		zap.String("driver", result.Crew.Driver))
	return session, nil
}

// Logout 注销，行程进行中时拒绝
func (s *CrewService) Logout(ctx context.Context) error {
	if _, err := s.currentCrew(); err != nil {
		return err
	}
	if current := s.manager.Current(); current != nil && current.Active() {
		return ErrTripInProgress
	}

	err := s.backend.Logout(ctx)
	s.mu.Lock()
	s.crew = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Backend logout failed, local session cleared", zap.Error(err))
	}
	return nil
}

// Crew 当前登录的乘务
func (s *CrewService) Crew() (*models.CrewSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.crew == nil {
		return nil, false
	}
	crew := *s.crew
	return &crew, true
}

func (s *CrewService) currentCrew() (*models.CrewSession, error) {
	crew, ok := s.Crew()
	if !ok {
		return nil, ErrNotLoggedIn
	}
	return crew, nil
}

// Fleet 可选车辆
func (s *CrewService) Fleet(ctx context.Context) ([]models.Vehicle, error) {
	if _, err := s.currentCrew(); err != nil {
		return nil, err
	}
	return s.backend.ListVehicles(ctx)
}

// Routes 可选线路
func (s *CrewService) Routes(ctx context.Context) ([]models.Route, error) {
	if _, err := s.currentCrew(); err != nil {
		return nil, err
	}
	return s.backend.ListRoutes(ctx)
}

// StartTrip 在后端开始行程并启动跟踪会话
// 会话启动失败时后端行程保留，由调度人员处理
func (s *CrewService) StartTrip(ctx context.Context, vehicleID, routeID int64) (*tracking.Session, error) {
	crew, err := s.currentCrew()
	if err != nil {
		return nil, err
	}

	trip, err := s.backend.StartTrip(ctx, vehicleID, routeID)
	if err != nil {
		return nil, err
	}

	session, err := s.manager.Start(ctx, models.TripContextFrom(trip, crew.Crew.Driver))
	if err != nil {
		s.logger.Error("Tracking session failed to start",
			zap.Int64("trip_id", trip.ID),
			zap.Error(err))
		return nil, err
	}
	return session, nil
}

// Resume 进程重启后恢复后端的进行中行程，累计里程和乘客数从零开始，路况沿用后端记录
func (s *CrewService) Resume(ctx context.Context) (*tracking.Session, error) {
	crew, err := s.currentCrew()
	if err != nil {
		return nil, err
	}

	trip, err := s.backend.ActiveTrip(ctx)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, nil
	}

	if current := s.manager.Current(); current != nil && current.Active() && current.Trip().TripID == trip.ID {
		return current, nil
	}

	session, err := s.manager.Start(ctx, models.TripContextFrom(trip, crew.Crew.Driver))
	if err != nil {
		return nil, err
	}
	s.restoreCondition(session, trip)
	s.logger.Warn("Resumed active trip, accumulated distance and passengers reset",
		zap.Int64("trip_id", trip.ID),
		zap.String("started_at", trip.StartedAt))
	return session, nil
}

// restoreCondition 恢复后端记录的最后路况
func (s *CrewService) restoreCondition(session *tracking.Session, trip *models.Trip) {
	if trip.LastCondition == nil {
		return
	}
	condition, ok := backend.ConditionFromWire(*trip.LastCondition)
	if !ok {
		s.logger.Warn("Unknown backend condition, keeping default",
			zap.Int64("trip_id", trip.ID),
			zap.String("kondisi", *trip.LastCondition))
		return
	}
	if condition == models.ConditionSmooth {
		return
	}
	if err := session.UpdateCondition(condition); err != nil {
		s.logger.Warn("Failed to restore condition", zap.Int64("trip_id", trip.ID), zap.Error(err))
	}
}

func (s *CrewService) activeSession() (*tracking.Session, error) {
	session := s.manager.Current()
	if session == nil || !session.Active() {
		return nil, tracking.ErrNotActive
	}
	return session, nil
}

// UpdatePassengers 先更新会话，再尽力同步后端
func (s *CrewService) UpdatePassengers(ctx context.Context, delta int) (int, error) {
	session, err := s.activeSession()
	if err != nil {
		return 0, err
	}

	count, err := session.UpdatePassengerCount(delta)
	if err != nil {
		return count, err
	}

	tripID := session.Trip().TripID
	if _, err := s.backend.UpdatePassengers(ctx, tripID, count); err != nil {
		s.logger.Warn("Failed to sync passenger count", zap.Int64("trip_id", tripID), zap.Error(err))
	}
	return count, nil
}

// UpdateCondition 先更新会话，再尽力同步后端
func (s *CrewService) UpdateCondition(ctx context.Context, condition models.Condition) error {
	session, err := s.activeSession()
	if err != nil {
		return err
	}

	if err := session.UpdateCondition(condition); err != nil {
		return err
	}

	tripID := session.Trip().TripID
	if _, err := s.backend.UpdateCondition(ctx, tripID, condition); err != nil {
		s.logger.Warn("Failed to sync condition", zap.Int64("trip_id", tripID), zap.Error(err))
	}
	return nil
}

// FinishTrip 停止会话并在后端结束行程
// 后端失败时仍返回汇总，错误交给调用方提示
func (s *CrewService) FinishTrip(ctx context.Context, note string) (models.TripSummary, error) {
	summary, err := s.manager.Stop(ctx)
	if err != nil {
		return summary, err
	}

	if note == "" {
		note = DefaultFinishNote
	}
	err = s.backend.FinishTrip(ctx, backend.FinishRequest{
		TripID:          summary.TripID,
		TotalPassengers: summary.FinalPassengerCount,
		DistanceKm:      summary.TotalDistanceKm,
		DurationMinutes: summary.DurationMinutes,
		Note:            note,
	})
	if err != nil {
		s.logger.Error("Failed to finish trip on backend", zap.Int64("trip_id", summary.TripID), zap.Error(err))
		return summary, fmt.Errorf("trip %d stopped locally: %w", summary.TripID, err)
	}

	s.logger.Info("Trip finished",
		zap.Int64("trip_id", summary.TripID),
		zap.Float64("distance_km", summary.TotalDistanceKm),
		zap.Int("passengers", summary.FinalPassengerCount))
	return summary, nil
}
