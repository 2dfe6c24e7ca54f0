package models

// 后端 REST API 数据结构，字段名与后端保持一致

// Crew 乘务人员
type Crew struct {
	ID       int64  `json:"id"`
	Driver   string `json:"driver"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// CrewSession 已登录的乘务会话
type CrewSession struct {
	Token string `json:"token"`
	Crew  Crew   `json:"crew"`
}

// Vehicle 车辆 (armada)
type Vehicle struct {
	ID          int64  `json:"id"`
	BusName     string `json:"nama_bus"`
	PlateNumber string `json:"plat_nomor"`
	Class       string `json:"kelas"`
	Capacity    int    `json:"kapasitas"`
	Status      string `json:"status"`
}

// Route 线路 (rute)
type Route struct {
	ID               int64  `json:"id"`
	Name             string `json:"nama_rute"`
	Origin           string `json:"kota_asal"`
	Destination      string `json:"kota_tujuan"`
	Polyline         string `json:"polyline"`
	Distance         string `json:"jarak"`
	EstimatedMinutes int    `json:"estimasi_waktu"`
}

// Trip 行程 (perjalanan)
type Trip struct {
	ID              int64    `json:"id"`
	CrewID          int64    `json:"kru_id"`
	VehicleID       int64    `json:"armada_id"`
	RouteID         int64    `json:"rute_id"`
	StartedAt       string   `json:"waktu_mulai"`
	EndedAt         *string  `json:"waktu_selesai"`
	TotalPassengers int      `json:"total_penumpang"`
	DistanceKm      *string  `json:"jarak_tempuh"`
	DurationMinutes int      `json:"durasi_menit"`
	Status          string   `json:"status"`
	LastCondition   *string  `json:"kondisi_terakhir"`
	Note            *string  `json:"catatan"`
	Crew            *Crew    `json:"kru"`
	Vehicle         *Vehicle `json:"armada"`
	Route           *Route   `json:"rute"`
}

// TripContextFrom 由后端行程构建跟踪配置
func TripContextFrom(trip *Trip, crewName string) TripContext {
	tc := TripContext{
		TripID:    trip.ID,
		VehicleID: trip.VehicleID,
		CrewName:  crewName,
	}
	if trip.Vehicle != nil {
		tc.BusName = trip.Vehicle.BusName
		tc.PlateNumber = trip.Vehicle.PlateNumber
		tc.Class = trip.Vehicle.Class
		tc.Capacity = trip.Vehicle.Capacity
	}
	if trip.Route != nil {
		tc.RouteName = trip.Route.Name
		tc.Polyline = trip.Route.Polyline
	}
	if trip.Crew != nil && tc.CrewName == "" {
		tc.CrewName = trip.Crew.Driver
	}
	return tc
}
