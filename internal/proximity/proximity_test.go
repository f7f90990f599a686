package proximity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/pkg/cache"
	"Travault/pkg/errors"
	"Travault/pkg/util"
	"Travault/pkg/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	paris    = geo.Point{Lon: 2.3522, Lat: 48.8566}
	lyon     = geo.Point{Lon: 4.8357, Lat: 45.7640}
	orly     = geo.Point{Lon: 2.3795, Lat: 48.7262}
)

func setup(t *testing.T) (*gorm.DB, *Service) {
	t.Helper()
	db, err := util.InitDatabase(nil, "", "")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db, NewService(db, nil).WithClock(func() time.Time { return fixedNow })
}

func ptr(f float64) *float64 { return &f }

func addContact(t *testing.T, db *gorm.DB, c models.EmergencyContact, area *geo.Area) {
	t.Helper()
	if area != nil {
		require.NoError(t, c.SetArea(area))
	}
	require.NoError(t, models.CreateContact(db, &c))
}

func names(contacts []models.EmergencyContact) []string {
	out := make([]string, len(contacts))
	for i, c := range contacts {
		out[i] = c.Name
	}
	return out
}

func seedFrance(t *testing.T, db *gorm.DB) {
	addContact(t, db, models.EmergencyContact{Name: "Police Nationale", Type: models.ContactPolice, Phone: "17", Country: "FR", Priority: 1, IsActive: true}, nil)
	addContact(t, db, models.EmergencyContact{Name: "Europe", Type: models.ContactGeneral, Phone: "112", Country: "FR", Priority: 1, IsActive: true}, nil)
	addContact(t, db, models.EmergencyContact{Name: "SAMU", Type: models.ContactMedical, Phone: "15", Country: "FR", Priority: 2, IsActive: true}, nil)
	addContact(t, db, models.EmergencyContact{Name: "Retired", Type: models.ContactFire, Phone: "18", Country: "FR", Priority: 1, IsActive: false}, nil)

	// 服务区域
	addContact(t, db, models.EmergencyContact{Name: "Paris Police", Type: models.ContactPolice, Phone: "17", Country: "FR", Priority: 1, IsActive: true}, geo.PointArea(paris))
	addContact(t, db, models.EmergencyContact{Name: "Ile-de-France Rescue", Type: models.ContactMountainRescue, Phone: "0100", Country: "FR", Priority: 2, IsActive: true},
		geo.PolygonArea([]geo.Point{{Lon: 1.5, Lat: 48.1}, {Lon: 3.5, Lat: 48.1}, {Lon: 3.5, Lat: 49.2}, {Lon: 1.5, Lat: 49.2}, {Lon: 1.5, Lat: 48.1}}))
	addContact(t, db, models.EmergencyContact{Name: "Tourist Police Paris", Type: models.ContactTouristPolice, Phone: "0200", Country: "FR", Priority: 3, IsActive: true}, geo.PointArea(orly))
	addContact(t, db, models.EmergencyContact{Name: "Lyon Police", Type: models.ContactPolice, Phone: "0300", Country: "FR", Priority: 1, IsActive: true}, geo.PointArea(lyon))
}

func TestFindNearbyContactsCountryOnly(t *testing.T) {
	db, svc := setup(t)
	seedFrance(t, db)

	contacts, err := svc.FindNearbyContacts(context.Background(), "fr", nil)
	require.NoError(t, err)
	// priority 升序，同级按名称；(17, police) 只保留先出现的
	assert.Equal(t, []string{"Europe", "Lyon Police", "Paris Police", "Ile-de-France Rescue", "SAMU", "Tourist Police Paris"}, names(contacts))
}

func TestFindNearbyContactsLocationFirst(t *testing.T) {
	db, svc := setup(t)
	seedFrance(t, db)

	contacts, err := svc.FindNearbyContacts(context.Background(), "FR", &paris)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Paris Police", "Ile-de-France Rescue", "Tourist Police Paris",
		"Europe", "Lyon Police", "SAMU",
	}, names(contacts))

	seen := map[string]bool{}
	for _, c := range contacts {
		k := c.Phone + "|" + string(c.Type)
		assert.False(t, seen[k], "duplicate %s", k)
		seen[k] = true
	}
}

func TestFindNearbyContactsCap(t *testing.T) {
	db, svc := setup(t)
	for i := 0; i < 15; i++ {
		addContact(t, db, models.EmergencyContact{Name: fmt.Sprintf("Station %02d", i), Type: models.ContactPolice, Phone: fmt.Sprintf("911-%d", i), Country: "US", Priority: 5, IsActive: true}, nil)
	}
	contacts, err := svc.FindNearbyContacts(context.Background(), "US", nil)
	require.NoError(t, err)
	assert.Len(t, contacts, MaxContacts)
	assert.Equal(t, "Station 00", contacts[0].Name)
}

func TestFindNearbyContactsLongServiceArea(t *testing.T) {
	db, svc := setup(t)
	// 顶点距查询点 150km 以上，北边界约 28km
	addContact(t, db, models.EmergencyContact{Name: "Loire Valley Rescue", Type: models.ContactMountainRescue, Phone: "0400", Country: "BE", Priority: 1, IsActive: true},
		geo.PolygonArea([]geo.Point{{Lon: 0, Lat: 48}, {Lon: 4, Lat: 48}, {Lon: 4, Lat: 48.05}, {Lon: 0, Lat: 48.05}, {Lon: 0, Lat: 48}}))

	contacts, err := svc.FindNearbyContacts(context.Background(), "FR", &geo.Point{Lon: 2, Lat: 48.3})
	require.NoError(t, err)
	assert.Equal(t, []string{"Loire Valley Rescue"}, names(contacts))

	contacts, err = svc.FindNearbyContacts(context.Background(), "FR", &geo.Point{Lon: 2, Lat: 49})
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestFindNearbyContactsRejectsBadPoint(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.FindNearbyContacts(context.Background(), "US", &geo.Point{Lon: 200, Lat: 0})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}

type cacheCounter struct{ hits, misses int }

func (c *cacheCounter) RecordCache(name string, hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func TestFindNearbyContactsCached(t *testing.T) {
	db, svc := setup(t)
	seedFrance(t, db)
	c, err := cache.NewCache(cache.Config{Type: "lru", Local: cache.LocalConfig{MaxSize: 16}})
	require.NoError(t, err)
	counter := &cacheCounter{}
	svc.WithCache(c, time.Minute).WithRecorder(counter)
	ctx := context.Background()

	first, err := svc.FindNearbyContacts(ctx, "FR", &paris)
	require.NoError(t, err)

	require.NoError(t, db.Where("1 = 1").Delete(&models.EmergencyContact{}).Error)
	second, err := svc.FindNearbyContacts(ctx, "FR", &paris)
	require.NoError(t, err)
	assert.Equal(t, names(first), names(second))
	assert.Equal(t, 1, counter.hits)
	assert.Equal(t, 1, counter.misses)

	// 不同 geohash 单元不命中
	other, err := svc.FindNearbyContacts(ctx, "FR", &lyon)
	require.NoError(t, err)
	assert.Empty(t, other)
	assert.Equal(t, 2, counter.misses)
}

func TestFindNearbyContactsCacheStaleUntilTTL(t *testing.T) {
	db, svc := setup(t)
	c, err := cache.NewCache(cache.Config{Type: "lru", Local: cache.LocalConfig{MaxSize: 16}})
	require.NoError(t, err)
	svc.WithCache(c, 50*time.Millisecond)
	ctx := context.Background()

	first, err := svc.FindNearbyContacts(ctx, "FR", nil)
	require.NoError(t, err)
	assert.Empty(t, first)

	addContact(t, db, models.EmergencyContact{Name: "SAMU", Type: models.ContactMedical, Phone: "15", Country: "FR", Priority: 1, IsActive: true}, nil)
	stale, err := svc.FindNearbyContacts(ctx, "FR", nil)
	require.NoError(t, err)
	assert.Empty(t, stale)

	time.Sleep(80 * time.Millisecond)
	fresh, err := svc.FindNearbyContacts(ctx, "FR", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"SAMU"}, names(fresh))
}

func TestMergeContacts(t *testing.T) {
	a := []models.EmergencyContact{{Name: "a", Phone: "1", Type: models.ContactPolice}, {Name: "b", Phone: "1", Type: models.ContactFire}}
	b := []models.EmergencyContact{{Name: "c", Phone: "1", Type: models.ContactPolice}, {Name: "d", Phone: "2", Type: models.ContactPolice}}
	assert.Equal(t, []string{"a", "b", "d"}, names(MergeContacts(10, a, b)))
	assert.Equal(t, []string{"a", "b"}, names(MergeContacts(2, a, b)))
}

func addAlert(t *testing.T, db *gorm.DB, sev models.Severity, loc geo.Point, created time.Time) *models.SafetyAlert {
	t.Helper()
	a, err := models.NewSafetyAlert(1, models.AlertCrime, sev, "Pickpockets", "Pickpockets near the station", loc, "", created)
	require.NoError(t, err)
	require.NoError(t, models.CreateSafetyAlert(db, a))
	return a
}

func alertIDs(alerts []models.SafetyAlert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

var userSeq int

func newUser(t *testing.T, db *gorm.DB, loc geo.Point) *models.User {
	t.Helper()
	userSeq++
	u := &models.User{FirstName: "Ada", LastName: "L", Email: fmt.Sprintf("u%d@example.com", userSeq), Country: "FR",
		CurrentLocation: models.CurrentLocation{Point: loc}}
	require.NoError(t, models.CreateUser(db, u, "secret123"))
	return u
}

func TestFindSafetyAlerts(t *testing.T) {
	db, svc := setup(t)
	u := newUser(t, db, geo.Point{})
	low := addAlert(t, db, models.SeverityLow, paris, fixedNow.Add(-time.Hour))
	crit := addAlert(t, db, models.SeverityCritical, orly, fixedNow.Add(-2*time.Hour))
	newerLow := addAlert(t, db, models.SeverityLow, paris, fixedNow.Add(-time.Minute))
	farHigh := addAlert(t, db, models.SeverityHigh, lyon, fixedNow.Add(-time.Hour))
	addAlert(t, db, models.SeverityLow, paris, fixedNow.Add(-100*time.Hour)) // 已过期
	inactive := addAlert(t, db, models.SeverityCritical, paris, fixedNow.Add(-time.Hour))
	_, err := models.DeactivateAlerts(db, []string{inactive.ID})
	require.NoError(t, err)
	ctx := context.Background()

	alerts, err := svc.FindSafetyAlerts(ctx, u.ID, AlertQuery{Latitude: ptr(paris.Lat), Longitude: ptr(paris.Lon)})
	require.NoError(t, err)
	assert.Equal(t, []string{crit.ID, newerLow.ID, low.ID}, alertIDs(alerts))

	// 半径 5km 排除 Orly
	alerts, err = svc.FindSafetyAlerts(ctx, u.ID, AlertQuery{Latitude: ptr(paris.Lat), Longitude: ptr(paris.Lon), RadiusKm: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{newerLow.ID, low.ID}, alertIDs(alerts))

	// 没有坐标也没有位置时不过滤
	alerts, err = svc.FindSafetyAlerts(ctx, u.ID, AlertQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{crit.ID, farHigh.ID, newerLow.ID, low.ID}, alertIDs(alerts))
	for _, a := range alerts {
		assert.True(t, a.IsActive)
		assert.True(t, a.ExpiresAt.After(fixedNow))
	}

	// 使用用户最近位置
	lyonUser := newUser(t, db, lyon)
	alerts, err = svc.FindSafetyAlerts(ctx, lyonUser.ID, AlertQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{farHigh.ID}, alertIDs(alerts))
}

func TestFindSafetyAlertsCap(t *testing.T) {
	db, svc := setup(t)
	u := newUser(t, db, geo.Point{})
	for i := 0; i < 25; i++ {
		addAlert(t, db, models.SeverityMedium, paris, fixedNow.Add(-time.Duration(i)*time.Minute))
	}
	alerts, err := svc.FindSafetyAlerts(context.Background(), u.ID, AlertQuery{})
	require.NoError(t, err)
	assert.Len(t, alerts, MaxAlerts)
}

func TestFindSafetyAlertsValidation(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.FindSafetyAlerts(context.Background(), 1, AlertQuery{Latitude: ptr(95), Longitude: ptr(0)})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}

func addRoute(t *testing.T, db *gorm.DB, name string, mode models.TravelMode, start, end geo.Point, rating int) *models.SafeRoute {
	t.Helper()
	r := &models.SafeRoute{Name: name, Mode: mode, Start: start, End: end, SafetyRating: rating, IsActive: true, CreatedBy: 1}
	require.NoError(t, models.CreateRoute(db, r))
	return r
}

func TestFindSafeRoutes(t *testing.T) {
	db, svc := setup(t)
	nearStart := geo.Point{Lon: paris.Lon + 0.005, Lat: paris.Lat}
	nearEnd := geo.Point{Lon: orly.Lon, Lat: orly.Lat + 0.005}
	addRoute(t, db, "Start match", models.ModeWalking, nearStart, lyon, 3)
	addRoute(t, db, "End match", models.ModeWalking, lyon, nearEnd, 5)
	addRoute(t, db, "No match", models.ModeWalking, lyon, lyon, 5)
	addRoute(t, db, "Driving", models.ModeDriving, nearStart, nearEnd, 5)

	mid := geo.Midpoint(paris, orly)
	high := addAlert(t, db, models.SeverityHigh, mid, fixedNow.Add(-time.Hour))
	addAlert(t, db, models.SeverityLow, mid, fixedNow.Add(-time.Hour))
	addAlert(t, db, models.SeverityCritical, lyon, fixedNow.Add(-time.Hour))

	res, err := svc.FindSafeRoutes(context.Background(), RouteQuery{
		StartLat: ptr(paris.Lat), StartLng: ptr(paris.Lon),
		EndLat: ptr(orly.Lat), EndLng: ptr(orly.Lon),
	})
	require.NoError(t, err)
	require.Len(t, res.Routes, 2)
	assert.Equal(t, "End match", res.Routes[0].Name)
	assert.Equal(t, "Start match", res.Routes[1].Name)
	assert.Equal(t, []string{high.ID}, alertIDs(res.Alerts))
	assert.Equal(t, models.ModeWalking, res.RouteInfo.Mode)
	assert.Equal(t, paris.Lat, res.RouteInfo.Start.Lat)

	res, err = svc.FindSafeRoutes(context.Background(), RouteQuery{
		StartLat: ptr(paris.Lat), StartLng: ptr(paris.Lon),
		EndLat: ptr(orly.Lat), EndLng: ptr(orly.Lon), Mode: models.ModeDriving,
	})
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	assert.Equal(t, "Driving", res.Routes[0].Name)
}

func TestFindSafeRoutesCapAndErrors(t *testing.T) {
	db, svc := setup(t)
	for i := 0; i < 7; i++ {
		addRoute(t, db, fmt.Sprintf("Route %d", i), models.ModeCycling, paris, orly, 1+i%5)
	}
	q := RouteQuery{StartLat: ptr(paris.Lat), StartLng: ptr(paris.Lon), EndLat: ptr(orly.Lat), EndLng: ptr(orly.Lon), Mode: models.ModeCycling}
	res, err := svc.FindSafeRoutes(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, res.Routes, MaxRoutes)
	assert.Equal(t, 5, res.Routes[0].SafetyRating)

	_, err = svc.FindSafeRoutes(context.Background(), RouteQuery{StartLat: ptr(1)})
	assert.ErrorIs(t, err, ErrRouteEndpointsRequired)

	q.Mode = "teleport"
	_, err = svc.FindSafeRoutes(context.Background(), q)
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}

type recordingPublisher struct {
	topics []string
	events []websocket.Event
}

func (p *recordingPublisher) Publish(topic string, ev websocket.Event) {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
}

func TestUpdateLocation(t *testing.T) {
	db, svc := setup(t)
	pub := &recordingPublisher{}
	svc.publisher = pub
	u := newUser(t, db, geo.Point{})

	loc, err := svc.UpdateLocationInput(context.Background(), u.ID, LocationInput{Latitude: ptr(paris.Lat), Longitude: ptr(paris.Lon), Address: " Rue de Rivoli "})
	require.NoError(t, err)
	assert.Equal(t, paris, loc.Point)
	assert.Equal(t, "Rue de Rivoli", loc.Address)

	stored, err := models.GetUserByID(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, paris, stored.CurrentLocation.Point)
	require.NotNil(t, stored.CurrentLocation.LastUpdated)

	require.Len(t, pub.topics, 1)
	assert.Equal(t, fmt.Sprintf("user_%d_contacts", u.ID), pub.topics[0])
	assert.Equal(t, websocket.MessageTypeContactLocationUpdate, pub.events[0].Type)

	_, err = svc.UpdateLocationInput(context.Background(), u.ID, LocationInput{Latitude: ptr(1)})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))

	_, err = svc.UpdateLocation(context.Background(), 9999, paris, "")
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}
