package geo

import (
	"encoding/json"
	"fmt"
	"math"

	geojson "github.com/paulmach/go.geojson"
)

// Area 服务区域，点或多边形（外环 + 洞）
type Area struct {
	point *Point
	rings [][]Point
	bbox  BBox
}

// ParseArea 解析 GeoJSON 几何，仅支持 Point 与 Polygon
func ParseArea(raw []byte) (*Area, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("parse service area: %w", err)
	}
	return AreaFromGeometry(g)
}

// AreaFromGeometry 从 geojson.Geometry 构造 Area
func AreaFromGeometry(g *geojson.Geometry) (*Area, error) {
	switch {
	case g.IsPoint():
		if len(g.Point) < 2 {
			return nil, fmt.Errorf("point needs two coordinates")
		}
		p := Point{Lon: g.Point[0], Lat: g.Point[1]}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return &Area{point: &p, bbox: BBox{p.Lon, p.Lat, p.Lon, p.Lat}}, nil
	case g.IsPolygon():
		if len(g.Polygon) == 0 {
			return nil, fmt.Errorf("polygon has no rings")
		}
		a := &Area{bbox: BBox{180, 90, -180, -90}}
		for _, ring := range g.Polygon {
			pts := make([]Point, 0, len(ring))
			for _, c := range ring {
				if len(c) < 2 {
					return nil, fmt.Errorf("polygon vertex needs two coordinates")
				}
				pts = append(pts, Point{Lon: c[0], Lat: c[1]})
			}
			a.rings = append(a.rings, pts)
		}
		for _, p := range a.rings[0] {
			a.bbox[0] = min(a.bbox[0], p.Lon)
			a.bbox[1] = min(a.bbox[1], p.Lat)
			a.bbox[2] = max(a.bbox[2], p.Lon)
			a.bbox[3] = max(a.bbox[3], p.Lat)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported service area type %q", g.Type)
	}
}

// PointArea 点状服务区域
func PointArea(p Point) *Area {
	return &Area{point: &p, bbox: BBox{p.Lon, p.Lat, p.Lon, p.Lat}}
}

// PolygonArea 由外环构造多边形服务区域
func PolygonArea(outer []Point) *Area {
	coords := make([][]float64, 0, len(outer))
	for _, p := range outer {
		coords = append(coords, p.Coordinates())
	}
	a, _ := AreaFromGeometry(geojson.NewPolygonGeometry([][][]float64{coords}))
	return a
}

// MarshalJSON 输出 GeoJSON
func (a *Area) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Geometry())
}

// Geometry 转回 geojson.Geometry
func (a *Area) Geometry() *geojson.Geometry {
	if a.point != nil {
		return geojson.NewPointGeometry(a.point.Coordinates())
	}
	poly := make([][][]float64, 0, len(a.rings))
	for _, ring := range a.rings {
		coords := make([][]float64, 0, len(ring))
		for _, p := range ring {
			coords = append(coords, p.Coordinates())
		}
		poly = append(poly, coords)
	}
	return geojson.NewPolygonGeometry(poly)
}

// Within 区域到 center 的最近距离是否不超过 radiusKm
func (a *Area) Within(center Point, radiusKm float64) bool {
	return a.Distance(center) <= radiusKm
}

// Distance center 到区域的最近距离（千米）
//
// 点：球面距离；多边形：center 在内部为 0，否则取到各环边的最小距离。
func (a *Area) Distance(center Point) float64 {
	if a.point != nil {
		return Haversine(center, *a.point)
	}
	if a.Contains(center) {
		return 0
	}
	best := math.Inf(1)
	for _, ring := range a.rings {
		n := len(ring)
		for i := 0; i < n; i++ {
			best = math.Min(best, segmentDistance(center, ring[i], ring[(i+1)%n]))
		}
	}
	return best
}

// segmentDistance 点到线段的距离
//
// 以 c 为原点做等距圆柱投影求线段上的最近点，再换回经纬度算大圆距离。
func segmentDistance(c, a, b Point) float64 {
	k := math.Max(math.Cos(rad(c.Lat)), 1e-6)
	ax, ay := lonDelta(c.Lon, a.Lon)*k, a.Lat-c.Lat
	bx, by := lonDelta(c.Lon, b.Lon)*k, b.Lat-c.Lat
	dx, dy := bx-ax, by-ay
	t := 0.0
	if l := dx*dx + dy*dy; l > 0 {
		t = math.Max(0, math.Min(1, -(ax*dx+ay*dy)/l))
	}
	near := Point{Lon: c.Lon + (ax+t*dx)/k, Lat: c.Lat + ay + t*dy}
	return Haversine(c, near)
}

// lonDelta to-from 的经度差，归一到 [-180, 180]
func lonDelta(from, to float64) float64 {
	return math.Mod(to-from+540, 360) - 180
}

// Contains 点是否在多边形内（偶奇规则，洞内不算）
func (a *Area) Contains(p Point) bool {
	if a.point != nil || len(a.rings) == 0 {
		return false
	}
	if !a.bbox.Contains(p) || !pointInRing(p, a.rings[0]) {
		return false
	}
	for _, hole := range a.rings[1:] {
		if pointInRing(p, hole) {
			return false
		}
	}
	return true
}

// 射线法
func pointInRing(pt Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > pt.Lat) != (yj > pt.Lat) && pt.Lon < (xj-xi)*(pt.Lat-yi)/(yj-yi+1e-12)+xi {
			inside = !inside
		}
	}
	return inside
}
