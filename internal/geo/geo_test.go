package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rome  = Point{Lon: 12.4964, Lat: 41.9028}
	paris = Point{Lon: 2.3522, Lat: 48.8566}
)

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 1105.8, Haversine(rome, paris), 5)
	assert.Zero(t, Haversine(rome, rome))
}

func TestWithinRadius(t *testing.T) {
	near := Point{Lon: 12.55, Lat: 41.92}
	assert.True(t, WithinRadius(rome, near, 10))
	assert.False(t, WithinRadius(rome, paris, 50))
}

func TestNewPointValidates(t *testing.T) {
	_, err := NewPoint(91, 0)
	assert.Error(t, err)
	_, err = NewPoint(0, -181)
	assert.Error(t, err)
	p, err := NewPoint(41.9, 12.5)
	require.NoError(t, err)
	assert.Equal(t, Point{Lon: 12.5, Lat: 41.9}, p)
}

func TestRadiusBBoxCoversCircle(t *testing.T) {
	b := RadiusBBox(rome, 50)
	assert.True(t, b.Contains(rome))
	assert.True(t, b.Contains(Point{Lon: 12.4964, Lat: 42.3}))
	assert.False(t, b.Contains(paris))

	wrap := RadiusBBox(Point{Lon: 179.9, Lat: 0}, 50)
	assert.Equal(t, -180.0, wrap[0])
	assert.Equal(t, 180.0, wrap[2])
}

func TestMidpoint(t *testing.T) {
	m := Midpoint(Point{Lon: 0, Lat: 0}, Point{Lon: 2, Lat: 4})
	assert.Equal(t, Point{Lon: 1, Lat: 2}, m)
}

func TestGeohash(t *testing.T) {
	assert.Len(t, rome.Geohash(6), 6)
	assert.Equal(t, rome.Geohash(6), Point{Lon: 12.4965, Lat: 41.9029}.Geohash(6))
}

func TestParseAreaPoint(t *testing.T) {
	a, err := ParseArea([]byte(`{"type":"Point","coordinates":[12.5,41.9]}`))
	require.NoError(t, err)
	assert.True(t, a.Within(rome, 50))
	assert.False(t, a.Within(paris, 50))
}

func TestParseAreaPolygonWithHole(t *testing.T) {
	raw := `{"type":"Polygon","coordinates":[
		[[0,0],[10,0],[10,10],[0,10],[0,0]],
		[[4,4],[6,4],[6,6],[4,6],[4,4]]
	]}`
	a, err := ParseArea([]byte(raw))
	require.NoError(t, err)

	assert.True(t, a.Contains(Point{Lon: 2, Lat: 2}))
	assert.False(t, a.Contains(Point{Lon: 5, Lat: 5}))
	assert.False(t, a.Contains(Point{Lon: 11, Lat: 5}))

	// 圆心在外但顶点在半径内
	assert.True(t, a.Within(Point{Lon: 10.2, Lat: 10.2}, 50))
	assert.False(t, a.Within(Point{Lon: 20, Lat: 20}, 50))
	// 洞内的点到洞边界的距离
	assert.InDelta(t, 111.2, a.Distance(Point{Lon: 5, Lat: 5}), 1)
}

func TestAreaDistanceToEdge(t *testing.T) {
	// 东西向的长条，顶点都远离查询点，北边界在 28km 外
	strip := PolygonArea([]Point{{0, 48}, {4, 48}, {4, 48.05}, {0, 48.05}, {0, 48}})
	q := Point{Lon: 2, Lat: 48.3}

	assert.Greater(t, Haversine(q, Point{Lon: 0, Lat: 48.05}), 150.0)
	assert.InDelta(t, 27.8, strip.Distance(q), 0.5)
	assert.True(t, strip.Within(q, 50))
	assert.False(t, strip.Within(q, 20))
	assert.Zero(t, strip.Distance(Point{Lon: 2, Lat: 48.02}))

	// 跨越 180 度经线的边
	dateline := PolygonArea([]Point{{179, -1}, {-179, -1}, {-179, 1}, {179, 1}, {179, -1}})
	assert.InDelta(t, 0, dateline.Distance(Point{Lon: 180, Lat: 1.1}), 12)
	assert.True(t, dateline.Within(Point{Lon: 180, Lat: 1.2}, 50))
}

func TestParseAreaRejectsLineString(t *testing.T) {
	_, err := ParseArea([]byte(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`))
	assert.Error(t, err)
}

func TestAreaJSONRoundTrip(t *testing.T) {
	a := PolygonArea([]Point{{0, 0}, {1, 0}, {1, 1}, {0, 0}})
	data, err := a.MarshalJSON()
	require.NoError(t, err)
	b, err := ParseArea(data)
	require.NoError(t, err)
	assert.True(t, b.Contains(Point{Lon: 0.7, Lat: 0.2}))
}
