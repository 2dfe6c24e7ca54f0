package geo

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-polyline"

	"github.com/langchou/buskru/internal/models"
)

var (
	// ErrMalformedGeometry 编码折线在符号中途截断或包含非法字节
	ErrMalformedGeometry = errors.New("malformed geometry")
	// ErrEmptyGeometry 折线解码后没有任何点
	ErrEmptyGeometry = errors.New("empty geometry")
)

// Decode 解码 Google 编码折线 (精度 1e5)
// 空字符串解码为空序列
func Decode(encoded string) ([]models.Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}

	points := make([]models.Coordinate, 0, len(coords))
	for _, c := range coords {
		if len(c) != 2 {
			return nil, fmt.Errorf("%w: coordinate has %d dimensions", ErrMalformedGeometry, len(c))
		}
		points = append(points, models.Coordinate{Lat: c[0], Lng: c[1]})
	}
	return points, nil
}

// Encode 编码为折线字符串
func Encode(points []models.Coordinate) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

// FirstPoint 第一个点
func FirstPoint(points []models.Coordinate) (models.Coordinate, bool) {
	if len(points) == 0 {
		return models.Coordinate{}, false
	}
	return points[0], true
}

// LastPoint 最后一个点
func LastPoint(points []models.Coordinate) (models.Coordinate, bool) {
	if len(points) == 0 {
		return models.Coordinate{}, false
	}
	return points[len(points)-1], true
}

// Origin 折线起点
func Origin(encoded string) (models.Coordinate, error) {
	points, err := Decode(encoded)
	if err != nil {
		return models.Coordinate{}, err
	}
	p, ok := FirstPoint(points)
	if !ok {
		return models.Coordinate{}, ErrEmptyGeometry
	}
	return p, nil
}

// Destination 折线终点（行程目的地）
func Destination(encoded string) (models.Coordinate, error) {
	points, err := Decode(encoded)
	if err != nil {
		return models.Coordinate{}, err
	}
	p, ok := LastPoint(points)
	if !ok {
		return models.Coordinate{}, ErrEmptyGeometry
	}
	return p, nil
}
