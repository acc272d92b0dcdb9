package models

import "math"

// SummaryGeohashPrecision точность geohash в сводке (~5 км)
const SummaryGeohashPrecision = 5

// TableSummary краткое описание одной таблицы датасета
type TableSummary struct {
	Split       Split      `json:"split"`
	Sensor      SensorType `json:"sensor"`
	Session     string     `json:"session"`
	Rows        int        `json:"rows"`
	Columns     int        `json:"columns"`
	Placeholder bool       `json:"placeholder,omitempty"`
	Origin      string     `json:"origin,omitempty"` // geohash первой валидной точки
	Area        string     `json:"area,omitempty"`   // geohash центра границ трека
}

// Summary описывает структуру датасета: размеры каждой таблицы и,
// если в таблице есть координаты, geohash начала трека и его области.
func (d *Dataset) Summary() []TableSummary {
	refs := d.Refs()
	out := make([]TableSummary, 0, len(refs))
	for _, ref := range refs {
		s := TableSummary{Split: ref.Split, Sensor: ref.Sensor, Session: ref.Session}
		if ref.Table == nil {
			s.Placeholder = true
			out = append(out, s)
			continue
		}
		s.Rows = ref.Table.Len()
		s.Columns = ref.Table.Width()

		lat, latErr := ref.Table.Numeric("latitude")
		lon, lonErr := ref.Table.Numeric("longitude")
		if latErr == nil && lonErr == nil {
			for i := range lat {
				if math.IsNaN(lat[i]) || math.IsNaN(lon[i]) {
					continue
				}
				p := GeoPoint{Latitude: lat[i], Longitude: lon[i]}
				if p.Validate() == nil {
					s.Origin = p.Geohash(SummaryGeohashPrecision)
					break
				}
			}
			if b, ok := TrackBounds(lat, lon); ok && b.Validate() == nil {
				s.Area = b.Center().Geohash(SummaryGeohashPrecision)
			}
		}
		out = append(out, s)
	}
	return out
}
