package models

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
)

// GeoPoint представляет географическую точку
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Validate проверяет корректность координат
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Longitude)
	}
	return nil
}

// Geohash возвращает geohash для точки с заданной точностью
func (p GeoPoint) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision))
}

// Bounds представляет географические границы
type Bounds struct {
	Southwest GeoPoint `json:"sw"`
	Northeast GeoPoint `json:"ne"`
}

// Validate проверяет корректность границ
func (b Bounds) Validate() error {
	if err := b.Southwest.Validate(); err != nil {
		return fmt.Errorf("southwest: %w", err)
	}
	if err := b.Northeast.Validate(); err != nil {
		return fmt.Errorf("northeast: %w", err)
	}
	if b.Southwest.Latitude > b.Northeast.Latitude {
		return fmt.Errorf("southwest latitude must be less than northeast latitude")
	}
	if b.Southwest.Longitude > b.Northeast.Longitude {
		return fmt.Errorf("southwest longitude must be less than northeast longitude")
	}
	return nil
}

// Center возвращает центральную точку границ
func (b Bounds) Center() GeoPoint {
	return GeoPoint{
		Latitude:  (b.Southwest.Latitude + b.Northeast.Latitude) / 2,
		Longitude: (b.Southwest.Longitude + b.Northeast.Longitude) / 2,
	}
}

// TrackBounds вычисляет границы трека по колонкам широты и долготы.
// Строки с пропусками пропускаются; ok = false, если валидных точек нет.
func TrackBounds(lat, lon []float64) (Bounds, bool) {
	var b Bounds
	found := false
	for i := range lat {
		if i >= len(lon) || math.IsNaN(lat[i]) || math.IsNaN(lon[i]) {
			continue
		}
		p := GeoPoint{Latitude: lat[i], Longitude: lon[i]}
		if !found {
			b = Bounds{Southwest: p, Northeast: p}
			found = true
			continue
		}
		b.Southwest.Latitude = math.Min(b.Southwest.Latitude, p.Latitude)
		b.Southwest.Longitude = math.Min(b.Southwest.Longitude, p.Longitude)
		b.Northeast.Latitude = math.Max(b.Northeast.Latitude, p.Latitude)
		b.Northeast.Longitude = math.Max(b.Northeast.Longitude, p.Longitude)
	}
	return b, found
}
