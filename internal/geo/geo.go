// Package geo 提供经纬度点、多边形与球面距离计算
//
// 坐标为 WGS84，经度在前；距离单位为千米。
package geo

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
)

const earthRadiusKm = 6371.0

// Point 经纬度坐标
type Point struct {
	Lon float64 `json:"longitude" gorm:"column:lon"`
	Lat float64 `json:"latitude" gorm:"column:lat"`
}

// NewPoint 构造并校验坐标
func NewPoint(lat, lon float64) (Point, error) {
	p := Point{Lon: lon, Lat: lat}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Validate 校验经纬度范围
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lon)
	}
	return nil
}

// IsZero 是否为默认的 (0,0) 位置
func (p Point) IsZero() bool {
	return p.Lon == 0 && p.Lat == 0
}

// Coordinates GeoJSON 顺序的坐标 [lon, lat]
func (p Point) Coordinates() []float64 {
	return []float64{p.Lon, p.Lat}
}

// Geohash 指定精度的 geohash，用作缓存键
func (p Point) Geohash(precision uint) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, precision)
}

// Haversine 两点间大圆距离（千米）
func Haversine(a, b Point) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(s)))
}

// WithinRadius 判断 b 是否在以 a 为圆心 radiusKm 的球冠内
func WithinRadius(a, b Point, radiusKm float64) bool {
	return Haversine(a, b) <= radiusKm
}

// Midpoint 两点的算术中点，仅用于近似的沿途查询
func Midpoint(a, b Point) Point {
	return Point{Lon: (a.Lon + b.Lon) / 2, Lat: (a.Lat + b.Lat) / 2}
}

// BBox 包围盒 [minLon, minLat, maxLon, maxLat]
type BBox [4]float64

// Contains 点是否在包围盒内
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b[0] && p.Lon <= b[2] && p.Lat >= b[1] && p.Lat <= b[3]
}

// RadiusBBox 以 center 为圆心 radiusKm 的外接包围盒，用于数据库预过滤
//
// 跨越反子午线或接近极点时经度范围退化为全范围
func RadiusBBox(center Point, radiusKm float64) BBox {
	dLat := radiusKm / earthRadiusKm * 180 / math.Pi
	minLat := math.Max(-90, center.Lat-dLat)
	maxLat := math.Min(90, center.Lat+dLat)

	cosLat := math.Cos(rad(center.Lat))
	if cosLat < 1e-6 || maxLat >= 90 || minLat <= -90 {
		return BBox{-180, minLat, 180, maxLat}
	}
	dLon := dLat / cosLat
	minLon, maxLon := center.Lon-dLon, center.Lon+dLon
	if minLon < -180 || maxLon > 180 {
		return BBox{-180, minLat, 180, maxLat}
	}
	return BBox{minLon, minLat, maxLon, maxLat}
}

func rad(d float64) float64 { return d * math.Pi / 180 }
