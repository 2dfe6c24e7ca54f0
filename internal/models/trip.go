package models

import "time"

// Coordinate 经纬度坐标
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Condition 路况/车况
type Condition string

const (
	ConditionSmooth    Condition = "smooth"    // 顺畅
	ConditionCongested Condition = "congested" // 拥堵
	ConditionBreakdown Condition = "breakdown" // 故障
)

// Valid 是否为已知路况
func (c Condition) Valid() bool {
	switch c {
	case ConditionSmooth, ConditionCongested, ConditionBreakdown:
		return true
	}
	return false
}

// 实时记录状态
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// TripContext 单次行程的不可变配置
type TripContext struct {
	TripID      int64      `json:"trip_id"`
	BusName     string     `json:"bus_name"`
	PlateNumber string     `json:"plate_number"`
	VehicleID   int64      `json:"vehicle_id"`
	Class       string     `json:"class"`
	Capacity    int        `json:"capacity"`
	RouteName   string     `json:"route_name"`
	Polyline    string     `json:"polyline"`
	Destination Coordinate `json:"destination"` // 由路线几何推导，会话开始时写入
	CrewName    string     `json:"crew_name"`
}

// LocationSample 设备上报的原始定位样本
type LocationSample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	SpeedMps  float64   `json:"speed_mps"`
	AccuracyM float64   `json:"accuracy_m"`
	At        time.Time `json:"at,omitempty"`
}

// Coordinate 样本坐标
func (s LocationSample) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// SpeedKmh 速度 (km/h)
func (s LocationSample) SpeedKmh() float64 {
	return s.SpeedMps * 3.6
}

// TripSummary 行程结束汇总
type TripSummary struct {
	TripID              int64     `json:"trip_id" db:"trip_id"`
	TotalDistanceKm     float64   `json:"total_distance_km" db:"total_distance_km"`
	FinalPassengerCount int       `json:"final_passenger_count" db:"final_passenger_count"`
	DurationMinutes     int       `json:"duration_minutes" db:"duration_minutes"`
	SampleCount         int       `json:"sample_count" db:"sample_count"`
	FinalCondition      Condition `json:"final_condition" db:"final_condition"`
	StartedAt           time.Time `json:"started_at" db:"started_at"`
	EndedAt             time.Time `json:"ended_at" db:"ended_at"`
}
