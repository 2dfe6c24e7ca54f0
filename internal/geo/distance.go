package geo

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/langchou/buskru/internal/models"
)

// EarthRadiusKm 地球平均半径
const EarthRadiusKm = 6371.0

// DefaultSpeedKmh 速度未知时假定的巡航速度
const DefaultSpeedKmh = 60.0

// HaversineKm 两点间大圆距离 (km)
func HaversineKm(a, b models.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// EstimateMinutes 按速度估算剩余分钟数，速度 <= 0 时按 60 km/h
func EstimateMinutes(distanceKm, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return int(math.Round(distanceKm / speedKmh * 60))
}

// GroundDistanceMeters 两个定位样本之间的地面距离 (m)
func GroundDistanceMeters(a, b models.Coordinate) float64 {
	return orbgeo.Distance(toPoint(a), toPoint(b))
}

// Estimate 远程 ETA 不可用时的本地估算
func Estimate(origin, destination models.Coordinate, speedKmh float64, now time.Time) models.ETA {
	distance := HaversineKm(origin, destination)
	minutes := EstimateMinutes(distance, speedKmh)
	return models.ETA{
		RemainingDistance: distance,
		RemainingTime:     minutes,
		EstimatedArrival:  models.FormatTimestamp(now.Add(time.Duration(minutes) * time.Minute)),
		Source:            models.ETASourceFallback,
	}
}

// orb 使用 [lng, lat] 顺序
func toPoint(c models.Coordinate) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}
