package geo

import (
	"math"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two points,
// using the haversine formula.
func Distance(a, b domain.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// cell identifies one grid bucket. Cells are fixed-size in degrees; the
// index picks a size so a typical query radius is covered by a 3x3
// neighborhood.
type cell struct {
	x, y int
}

func cellFor(l domain.Location, sizeDeg float64) cell {
	return cell{
		x: int(math.Floor(l.Lng / sizeDeg)),
		y: int(math.Floor(l.Lat / sizeDeg)),
	}
}

// coveringCells returns every cell that could hold a point within
// radiusMeters of center. Longitude degrees shrink with latitude, so the
// horizontal span widens toward the poles.
func coveringCells(center domain.Location, radiusMeters, sizeDeg float64) []cell {
	latSpan := radiusMeters / 111_320.0 // meters per degree latitude
	lngScale := math.Cos(center.Lat * math.Pi / 180)
	if lngScale < 0.01 {
		lngScale = 0.01
	}
	lngSpan := radiusMeters / (111_320.0 * lngScale)

	minC := cellFor(domain.Location{Lat: center.Lat - latSpan, Lng: center.Lng - lngSpan}, sizeDeg)
	maxC := cellFor(domain.Location{Lat: center.Lat + latSpan, Lng: center.Lng + lngSpan}, sizeDeg)

	cells := make([]cell, 0, (maxC.x-minC.x+1)*(maxC.y-minC.y+1))
	for x := minC.x; x <= maxC.x; x++ {
		for y := minC.y; y <= maxC.y; y++ {
			cells = append(cells, cell{x: x, y: y})
		}
	}
	return cells
}
