package models

import "time"

// TimestampLayout 实时记录中使用的 UTC 时间格式
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp 格式化为实时记录时间字符串
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// LiveMeta 实时记录的静态字段
type LiveMeta struct {
	BusName       string `json:"busName"`
	PlateNumber   string `json:"plateNumber"`
	Class         string `json:"class"`
	Route         string `json:"route"`
	Capacity      int    `json:"capacity"`
	Driver        string `json:"driver"`
	RoutePolyline string `json:"routePolyline"`
}

// MetaFromTrip 由行程配置生成静态字段
func MetaFromTrip(trip *TripContext) LiveMeta {
	return LiveMeta{
		BusName:       trip.BusName,
		PlateNumber:   trip.PlateNumber,
		Class:         trip.Class,
		Route:         trip.RouteName,
		Capacity:      trip.Capacity,
		Driver:        trip.CrewName,
		RoutePolyline: trip.Polyline,
	}
}

// Position 实时位置
type Position struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Speed      float64 `json:"speed"` // km/h
	LastUpdate string  `json:"lastUpdate"`
}

// Trail 最近轨迹点
type Trail []Coordinate

// ETA 预计到达信息
type ETA struct {
	RemainingDistance float64 `json:"remainingDistance"` // km
	RemainingTime     int     `json:"remainingTime"`     // 分钟
	EstimatedArrival  string  `json:"estimatedArrival"`
	Source            string  `json:"-"` // remote / fallback
}

// ETA 来源
const (
	ETASourceRemote   = "remote"
	ETASourceFallback = "fallback"
)

// LiveRecord 实时存储中的完整行程文档
type LiveRecord struct {
	LiveMeta
	Passengers         int       `json:"passengers"`
	Status             string    `json:"status"`
	Condition          Condition `json:"condition"`
	ConditionUpdatedAt string    `json:"conditionUpdatedAt"`
	Position           Position  `json:"position"`
	Trail              Trail     `json:"trail"`
	ETA                ETA       `json:"eta"`
	TotalDistance      float64   `json:"totalDistance"`
}

// NewLiveRecord 会话开始时的初始文档：动态字段归零，状态为 active
func NewLiveRecord(meta LiveMeta, at time.Time) LiveRecord {
	ts := FormatTimestamp(at)
	return LiveRecord{
		LiveMeta:           meta,
		Status:             StatusActive,
		Condition:          ConditionSmooth,
		ConditionUpdatedAt: ts,
		Position:           Position{LastUpdate: ts},
		Trail:              Trail{},
	}
}
