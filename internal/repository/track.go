package repository

import (
	"context"
	"fmt"

	"github.com/langchou/buskru/internal/models"
)

// TrackRepository 完整轨迹仓库
type TrackRepository struct {
	db Querier
}

// NewTrackRepository 创建轨迹仓库
func NewTrackRepository(db Querier) *TrackRepository {
	return &TrackRepository{db: db}
}

// AddPoint 写入轨迹点
func (r *TrackRepository) AddPoint(ctx context.Context, p *models.TrackPoint) error {
	query := `
		INSERT INTO trip_points (trip_id, latitude, longitude, speed_kmh, accuracy_m, total_distance_km, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		p.TripID,
		p.Latitude,
		p.Longitude,
		p.SpeedKmh,
		p.AccuracyM,
		p.TotalDistanceKm,
		p.RecordedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert trip point: %w", err)
	}
	return nil
}

// ListByTrip 按时间顺序获取行程轨迹
func (r *TrackRepository) ListByTrip(ctx context.Context, tripID int64) ([]models.TrackPoint, error) {
	query := `
		SELECT id, trip_id, latitude, longitude, speed_kmh, accuracy_m, total_distance_km, recorded_at
		FROM trip_points WHERE trip_id = $1 ORDER BY recorded_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, tripID)
	if err != nil {
		return nil, fmt.Errorf("query trip points: %w", err)
	}
	defer rows.Close()

	var points []models.TrackPoint
	for rows.Next() {
		var p models.TrackPoint
		if err := rows.Scan(
			&p.ID,
			&p.TripID,
			&p.Latitude,
			&p.Longitude,
			&p.SpeedKmh,
			&p.AccuracyM,
			&p.TotalDistanceKm,
			&p.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trip point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trip points: %w", err)
	}
	return points, nil
}
