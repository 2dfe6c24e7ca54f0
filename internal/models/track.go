package models

import "time"

// TrackPoint 完整轨迹中的一个点
type TrackPoint struct {
	ID              int64     `json:"id" db:"id"`
	TripID          int64     `json:"trip_id" db:"trip_id"`
	Latitude        float64   `json:"latitude" db:"latitude"`
	Longitude       float64   `json:"longitude" db:"longitude"`
	SpeedKmh        float64   `json:"speed_kmh" db:"speed_kmh"`
	AccuracyM       float64   `json:"accuracy_m" db:"accuracy_m"`
	TotalDistanceKm float64   `json:"total_distance_km" db:"total_distance_km"` // 该点时的累计里程
	RecordedAt      time.Time `json:"recorded_at" db:"recorded_at"`
}

// TrackPointFromProgress 由进度事件生成轨迹点
func TrackPointFromProgress(tripID int64, p *Progress) TrackPoint {
	return TrackPoint{
		TripID:          tripID,
		Latitude:        p.Sample.Lat,
		Longitude:       p.Sample.Lng,
		SpeedKmh:        p.Sample.SpeedKmh(),
		AccuracyM:       p.Sample.AccuracyM,
		TotalDistanceKm: p.TotalDistanceKm,
		RecordedAt:      p.Sample.At,
	}
}
