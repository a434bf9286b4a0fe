// Package geo provides the small amount of planar geometry the
// territory modes need: influence discs, boolean union, and area.
// Coordinates are [longitude, latitude] in degrees; areas are in
// square degrees, which is fine because scores only ever divide one
// area by a reference area at the same latitude scale.
package geo

import (
	"math"

	"github.com/engelsjk/polygol"
)

// Geom is a multipolygon: polygons, rings per polygon (first is the
// shell, the rest are holes), points per ring, [x y] per point.
type Geom = polygol.Geom

const discSegments = 32

// Empty returns a geometry with no area.
func Empty() Geom {
	return Geom{}
}

// Disc approximates a circle of the given radius (degrees) around a
// point as a closed 32-gon. A non-positive radius yields Empty.
func Disc(lat, lon, radius float64) Geom {
	if radius <= 0 {
		return Empty()
	}
	ring := make([][]float64, 0, discSegments+1)
	for i := 0; i < discSegments; i++ {
		a := 2 * math.Pi * float64(i) / discSegments
		ring = append(ring, []float64{lon + radius*math.Cos(a), lat + radius*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return Geom{{ring}}
}

// Union merges any number of geometries into one. Empty inputs are
// skipped; an all-empty input produces Empty.
func Union(geoms ...Geom) (Geom, error) {
	var acc Geom
	for _, g := range geoms {
		if len(g) == 0 {
			continue
		}
		if len(acc) == 0 {
			acc = g
			continue
		}
		merged, err := polygol.Union(acc, g)
		if err != nil {
			return nil, err
		}
		acc = merged
	}
	if acc == nil {
		acc = Empty()
	}
	return acc, nil
}

// Area computes the total area of a multipolygon by the shoelace
// formula, subtracting holes.
func Area(g Geom) float64 {
	var total float64
	for _, poly := range g {
		for ri, ring := range poly {
			a := math.Abs(ringArea(ring))
			if ri == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

func ringArea(ring [][]float64) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		x1, y1 := ring[i][0], ring[i][1]
		x2, y2 := ring[i+1][0], ring[i+1][1]
		sum += x1*y2 - x2*y1
	}
	return sum / 2
}

// Bounds returns the axis-aligned bounding box of a geometry as
// west, south, east, north. A zero-area geometry reports all zeros.
func Bounds(g Geom) (w, s, e, n float64) {
	first := true
	for _, poly := range g {
		if len(poly) == 0 {
			continue
		}
		for _, pt := range poly[0] {
			if first {
				w, e, s, n = pt[0], pt[0], pt[1], pt[1]
				first = false
				continue
			}
			w = math.Min(w, pt[0])
			e = math.Max(e, pt[0])
			s = math.Min(s, pt[1])
			n = math.Max(n, pt[1])
		}
	}
	return w, s, e, n
}
