package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/buskru/internal/models"
)

// TripRepository 行程汇总仓库
type TripRepository struct {
	db Querier
}

// NewTripRepository 创建行程仓库
func NewTripRepository(db Querier) *TripRepository {
	return &TripRepository{db: db}
}

// SaveSummary 保存行程汇总，同一行程重复保存时覆盖
func (r *TripRepository) SaveSummary(ctx context.Context, s *models.TripSummary) error {
	query := `
		INSERT INTO trip_summaries (trip_id, total_distance_km, final_passenger_count, duration_minutes, sample_count, final_condition, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trip_id) DO UPDATE SET
			total_distance_km = EXCLUDED.total_distance_km,
			final_passenger_count = EXCLUDED.final_passenger_count,
			duration_minutes = EXCLUDED.duration_minutes,
			sample_count = EXCLUDED.sample_count,
			final_condition = EXCLUDED.final_condition,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at
	`
	_, err := r.db.Exec(ctx, query,
		s.TripID,
		s.TotalDistanceKm,
		s.FinalPassengerCount,
		s.DurationMinutes,
		s.SampleCount,
		string(s.FinalCondition),
		s.StartedAt,
		s.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("save trip summary: %w", err)
	}
	return nil
}

// GetSummary 获取行程汇总
func (r *TripRepository) GetSummary(ctx context.Context, tripID int64) (*models.TripSummary, error) {
	query := `
		SELECT trip_id, total_distance_km, final_passenger_count, duration_minutes, sample_count, final_condition, started_at, ended_at
		FROM trip_summaries WHERE trip_id = $1
	`
	s := &models.TripSummary{}
	var condition string
	err := r.db.QueryRow(ctx, query, tripID).Scan(
		&s.TripID,
		&s.TotalDistanceKm,
		&s.FinalPassengerCount,
		&s.DurationMinutes,
		&s.SampleCount,
		&condition,
		&s.StartedAt,
		&s.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip summary: %w", err)
	}
	s.FinalCondition = models.Condition(condition)
	return s, nil
}
