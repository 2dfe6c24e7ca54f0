package models

import "time"

// 会话事件类型
const (
	EventProgress   = "progress"
	EventETA        = "eta"
	EventPassengers = "passengers"
	EventCondition  = "condition"
	EventFault      = "fault"
	EventStopped    = "stopped"
)

// Progress 行程进度
type Progress struct {
	Sample          LocationSample `json:"sample"`
	TotalDistanceKm float64        `json:"total_distance_km"`
	AddedKm         float64        `json:"added_km"`
	Trail           Trail          `json:"trail"`
	SampleCount     int            `json:"sample_count"`
}

// Event 推送给观察者的会话事件
type Event struct {
	Type       string       `json:"type"`
	TripID     int64        `json:"trip_id"`
	At         time.Time    `json:"at"`
	Progress   *Progress    `json:"progress,omitempty"`
	ETA        *ETA         `json:"eta,omitempty"`
	Passengers *int         `json:"passengers,omitempty"`
	Condition  Condition    `json:"condition,omitempty"`
	Summary    *TripSummary `json:"summary,omitempty"`
	Error      string       `json:"error,omitempty"`
}
