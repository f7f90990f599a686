package emergency

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"Travault/internal/geo"
	"Travault/internal/models"
	constants "Travault/pkg/constant"
	"Travault/pkg/errors"
	"Travault/pkg/notification"
	"Travault/pkg/util"
	"Travault/pkg/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type call struct {
	channel notification.Channel
	payload notification.Payload
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []call
	fail  map[notification.Channel]error
	// reportStatus 派发时报告在库中的状态
	db           *gorm.DB
	reportStatus []models.ReportStatus
}

func (f *fakeNotifier) Dispatch(ctx context.Context, ch notification.Channel, p notification.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{channel: ch, payload: p})
	if f.db != nil {
		if r, err := models.GetReport(f.db, p.ReportID); err == nil {
			f.reportStatus = append(f.reportStatus, r.Status)
		}
	}
	if err := f.fail[ch]; err != nil {
		return &notification.DispatchError{Channel: ch, Err: err}
	}
	return nil
}

func (f *fakeNotifier) channels() []notification.Channel {
	var out []notification.Channel
	for _, c := range f.calls {
		out = append(out, c.channel)
	}
	return out
}

type published struct {
	topic string
	ev    websocket.Event
}

type fakePublisher struct {
	events []published
}

func (p *fakePublisher) Publish(topic string, ev websocket.Event) {
	p.events = append(p.events, published{topic: topic, ev: ev})
}

type fakeRecorder struct {
	emergencies int
	dispatches  map[string]int
}

func (r *fakeRecorder) RecordEmergency(string, string) { r.emergencies++ }

func (r *fakeRecorder) RecordDispatch(channel string, err error) {
	if r.dispatches == nil {
		r.dispatches = map[string]int{}
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.dispatches[channel+":"+result]++
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, *fakeNotifier, *fakePublisher, *Service) {
	t.Helper()
	db, err := util.InitDatabase(nil, "", "")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	n := &fakeNotifier{db: db}
	p := &fakePublisher{}
	svc := NewService(db, n, p).WithClock(func() time.Time { return fixedNow })
	return db, n, p, svc
}

func createUser(t *testing.T, db *gorm.DB, email string, contactPhone string, loc geo.Point) *models.User {
	t.Helper()
	u := &models.User{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Phone:     "+391234567",
		Country:   "IT",
		EmergencyContact: models.ContactPerson{
			Name:  "Charles",
			Phone: contactPhone,
		},
		CurrentLocation: models.CurrentLocation{Point: loc},
	}
	require.NoError(t, models.CreateUser(db, u, "secret123"))
	return u
}

func ptr(f float64) *float64 { return &f }

func TestRaiseEmergencyUsesStoredLocation(t *testing.T) {
	db, n, p, svc := setup(t)
	rec := &fakeRecorder{}
	svc.WithRecorder(rec)
	u := createUser(t, db, "ada@example.com", "", geo.Point{Lon: 12.5, Lat: 41.9})

	res, err := svc.RaiseEmergency(context.Background(), u.ID, RaiseInput{Type: models.EmergencyMedical, Severity: models.SeverityHigh})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDispatched, res.Status)
	assert.Equal(t, "5-15 minutes", res.EstimatedResponse)

	report, err := models.GetReport(db, res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lon: 12.5, Lat: 41.9}, report.Location)
	assert.Equal(t, models.StatusDispatched, report.Status)
	require.NotNil(t, report.DispatchedAt)
	assert.True(t, report.DispatchedAt.Equal(fixedNow))

	// 没有联系人电话，只发急救渠道
	assert.Equal(t, []notification.Channel{notification.ChannelEmergencyServices}, n.channels())
	assert.Equal(t, "medical emergency reported", n.calls[0].payload.Message)
	assert.Equal(t, "Ada Lovelace", n.calls[0].payload.UserName)
	assert.Equal(t, []models.ReportStatus{models.StatusActive}, n.reportStatus)

	require.Len(t, p.events, 1)
	assert.Equal(t, constants.TopicEmergencyResponders, p.events[0].topic)
	assert.Equal(t, websocket.MessageTypeNewEmergency, p.events[0].ev.Type)

	assert.Equal(t, 1, rec.emergencies)
	assert.Equal(t, 1, rec.dispatches["emergency-services:success"])
}

func TestRaiseEmergencyExplicitCoordinatesAndSMS(t *testing.T) {
	db, n, _, svc := setup(t)
	u := createUser(t, db, "ada@example.com", "+15550001", geo.Point{Lon: 12.5, Lat: 41.9})

	res, err := svc.RaiseEmergency(context.Background(), u.ID, RaiseInput{
		Type:      models.EmergencyCrime,
		Severity:  models.SeverityCritical,
		Message:   "  wallet stolen  ",
		Latitude:  ptr(48.85),
		Longitude: ptr(2.35),
	})
	require.NoError(t, err)

	report, err := models.GetReport(db, res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lon: 2.35, Lat: 48.85}, report.Location)
	assert.Equal(t, "wallet stolen", report.Message)

	assert.Equal(t, []notification.Channel{notification.ChannelEmergencyServices, notification.ChannelSMS}, n.channels())
	sms := n.calls[1].payload
	require.NotNil(t, sms.EmergencyContact)
	assert.Equal(t, "+15550001", sms.EmergencyContact.Phone)
	assert.Equal(t, "wallet stolen", sms.Message)
}

func TestRaiseEmergencyDispatchFailure(t *testing.T) {
	db, n, p, svc := setup(t)
	n.fail = map[notification.Channel]error{notification.ChannelEmergencyServices: stderrors.New("smtp down")}
	u := createUser(t, db, "ada@example.com", "+15550001", geo.Point{})

	res, err := svc.RaiseEmergency(context.Background(), u.ID, RaiseInput{Type: models.EmergencyAccident, Severity: models.SeverityLow})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, errors.CodeDispatch, errors.GetCode(err))
	assert.Equal(t, ErrDispatchFailed.Message, errors.GetMessage(err))
	var de *notification.DispatchError
	assert.True(t, errors.As(err, &de))

	// 急救渠道失败后仍尝试短信
	assert.Len(t, n.calls, 2)

	report, err := models.GetReport(db, res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Contains(t, report.ErrorMessage, "smtp down")
	assert.Nil(t, report.DispatchedAt)
	assert.Empty(t, res.EstimatedResponse)
	assert.Len(t, p.events, 1)
}

func TestRaiseEmergencyValidation(t *testing.T) {
	db, n, _, svc := setup(t)
	u := createUser(t, db, "ada@example.com", "", geo.Point{})

	_, err := svc.RaiseEmergency(context.Background(), u.ID, RaiseInput{Type: "flood", Severity: "extreme", Latitude: ptr(91)})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
	assert.Len(t, errors.GetFields(err), 3)

	var count int64
	require.NoError(t, db.Model(&models.EmergencyReport{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, n.calls)
}

func TestRaiseEmergencyUnknownUser(t *testing.T) {
	_, _, _, svc := setup(t)
	_, err := svc.RaiseEmergency(context.Background(), 42, RaiseInput{Type: models.EmergencyGeneral, Severity: models.SeverityLow})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestRaiseEmergencyWithoutNotifier(t *testing.T) {
	db, _, _, _ := setup(t)
	svc := NewService(db, nil, nil)
	u := createUser(t, db, "ada@example.com", "", geo.Point{})

	res, err := svc.RaiseEmergency(context.Background(), u.ID, RaiseInput{Type: models.EmergencyGeneral, Severity: models.SeverityLow})
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
}

func TestRaiseEmergencyDetachedFromCancellation(t *testing.T) {
	db, n, _, svc := setup(t)
	u := createUser(t, db, "ada@example.com", "", geo.Point{})
	ctx, cancel := context.WithCancel(context.Background())

	// 派发时取消客户端 context，报告状态仍然更新
	n.fail = nil
	svc.notifier = notifierFunc(func(dctx context.Context, ch notification.Channel, p notification.Payload) error {
		cancel()
		return dctx.Err()
	})
	res, err := svc.RaiseEmergency(ctx, u.ID, RaiseInput{Type: models.EmergencyGeneral, Severity: models.SeverityLow})
	require.NoError(t, err)
	report, err := models.GetReport(db, res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDispatched, report.Status)
}

func TestRaiseEmergencyStalledChannelMarksFailed(t *testing.T) {
	db, _, _, svc := setup(t)
	u := createUser(t, db, "ada@example.com", "+15550001", geo.Point{})

	block := make(chan struct{})
	defer close(block)
	stalled := notification.SenderFunc(func(ctx context.Context, p notification.Payload) error {
		<-block
		return nil
	})
	svc.notifier = notification.NewDispatcher().WithTimeout(50*time.Millisecond).
		Register(notification.ChannelEmergencyServices, stalled).
		Register(notification.ChannelSMS, notification.SenderFunc(func(context.Context, notification.Payload) error { return nil }))

	done := make(chan struct{})
	var res *RaiseResult
	var err error
	go func() {
		defer close(done)
		res, err = svc.RaiseEmergency(context.Background(), u.ID, RaiseInput{Type: models.EmergencyMedical, Severity: models.SeverityHigh})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("raise emergency blocked on a stalled channel")
	}

	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, errors.CodeDispatch, errors.GetCode(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	report, err := models.GetReport(db, res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Contains(t, report.ErrorMessage, "emergency-services")
	assert.Nil(t, report.DispatchedAt)
}

func TestRaiseEmergencyStatusSaveFailureKeepsID(t *testing.T) {
	db, _, _, svc := setup(t)
	u := createUser(t, db, "ada@example.com", "", geo.Point{})
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_update", func(tx *gorm.DB) {
		tx.AddError(stderrors.New("disk full"))
	}))

	res, err := svc.RaiseEmergency(context.Background(), u.ID, RaiseInput{Type: models.EmergencyGeneral, Severity: models.SeverityLow})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.ReportID)
	assert.Equal(t, errors.CodeInternal, errors.GetCode(err))

	report, err := models.GetReport(db, res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, report.Status)
}

type notifierFunc func(ctx context.Context, ch notification.Channel, p notification.Payload) error

func (f notifierFunc) Dispatch(ctx context.Context, ch notification.Channel, p notification.Payload) error {
	return f(ctx, ch, p)
}

func TestCheckInHelpNeededSwallowsSMSFailure(t *testing.T) {
	db, n, p, svc := setup(t)
	n.fail = map[notification.Channel]error{notification.ChannelSMS: stderrors.New("gateway 500")}
	u := createUser(t, db, "ada@example.com", "+15550001", geo.Point{})

	res, err := svc.CheckIn(context.Background(), u.ID, CheckInInput{
		Status:    CheckInHelpNeeded,
		Latitude:  ptr(35.68),
		Longitude: ptr(139.69),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.EmergencyID)
	assert.Equal(t, geo.Point{Lon: 139.69, Lat: 35.68}, res.CheckIn.Location)

	report, err := models.GetReport(db, res.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyGeneral, report.Type)
	assert.Equal(t, models.SeverityMedium, report.Severity)
	assert.Equal(t, checkInHelpMessage, report.Message)
	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Contains(t, report.ErrorMessage, "gateway 500")

	sms := n.calls[1].payload
	assert.True(t, sms.CheckIn)
	assert.Contains(t, notification.SMSText(sms), "No additional message")

	stored, err := models.GetUserByID(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lon: 139.69, Lat: 35.68}, stored.CurrentLocation.Point)
	assert.Len(t, p.events, 1)
}

func TestCheckInSafeCreatesNoReport(t *testing.T) {
	db, n, _, svc := setup(t)
	u := createUser(t, db, "ada@example.com", "+15550001", geo.Point{Lon: 1, Lat: 2})

	res, err := svc.CheckIn(context.Background(), u.ID, CheckInInput{Status: CheckInSafe, Message: "all good"})
	require.NoError(t, err)
	assert.Empty(t, res.EmergencyID)
	assert.Equal(t, "all good", res.CheckIn.Message)
	assert.Equal(t, geo.Point{Lon: 1, Lat: 2}, res.CheckIn.Location)
	assert.Empty(t, n.calls)

	_, err = svc.CheckIn(context.Background(), u.ID, CheckInInput{Status: "fine"})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}

type fakeLocator struct{ calls int }

func (l *fakeLocator) UpdateLocation(ctx context.Context, userID uint, p geo.Point, address string) (*models.CurrentLocation, error) {
	l.calls++
	return &models.CurrentLocation{Point: p}, nil
}

func TestCheckInUsesLocationUpdater(t *testing.T) {
	db, _, _, svc := setup(t)
	loc := &fakeLocator{}
	svc.WithLocationUpdater(loc)
	u := createUser(t, db, "ada@example.com", "", geo.Point{})

	res, err := svc.CheckIn(context.Background(), u.ID, CheckInInput{Status: CheckInConcern, Latitude: ptr(10), Longitude: ptr(20)})
	require.NoError(t, err)
	assert.Equal(t, 1, loc.calls)
	assert.Equal(t, geo.Point{Lon: 20, Lat: 10}, res.CheckIn.Location)
}

func raise(t *testing.T, svc *Service, userID uint) string {
	t.Helper()
	res, err := svc.RaiseEmergency(context.Background(), userID, RaiseInput{Type: models.EmergencyMedical, Severity: models.SeverityHigh})
	require.NoError(t, err)
	return res.ReportID
}

func TestUpdateReport(t *testing.T) {
	db, _, _, svc := setup(t)
	owner := createUser(t, db, "ada@example.com", "", geo.Point{})
	other := createUser(t, db, "bob@example.com", "", geo.Point{})
	id := raise(t, svc, owner.ID)
	ctx := context.Background()

	_, err := svc.UpdateReport(ctx, other.ID, id, UpdateReportInput{Status: models.StatusResolved})
	assert.Equal(t, errors.CodeForbidden, errors.GetCode(err))

	_, err = svc.UpdateReport(ctx, owner.ID, "missing", UpdateReportInput{Status: models.StatusResolved})
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	_, err = svc.UpdateReport(ctx, owner.ID, id, UpdateReportInput{Status: models.StatusActive})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))

	// 与当前状态相同也不行，dispatched 只能由派发流程写入
	_, err = svc.UpdateReport(ctx, owner.ID, id, UpdateReportInput{Status: models.StatusDispatched})
	require.Equal(t, errors.CodeValidation, errors.GetCode(err))
	assert.Equal(t, "status", errors.GetFields(err)[0].Field)

	report, err := svc.UpdateReport(ctx, owner.ID, id, UpdateReportInput{Status: models.StatusResponded})
	require.NoError(t, err)
	require.NotNil(t, report.RespondedAt)

	report, err = svc.UpdateReport(ctx, owner.ID, id, UpdateReportInput{Status: models.StatusResolved, Resolution: "treated on site"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, report.Status)
	require.NotNil(t, report.ResolvedAt)

	stored, err := models.GetReport(db, id)
	require.NoError(t, err)
	assert.Equal(t, "treated on site", stored.Resolution)

	_, err = svc.UpdateReport(ctx, owner.ID, id, UpdateReportInput{Status: models.StatusCancelled})
	assert.ErrorIs(t, err, models.ErrReportClosed)

	_, err = svc.UpdateReport(ctx, owner.ID, id, UpdateReportInput{Status: "failed"})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}

func TestAddUpdateOnClosedReport(t *testing.T) {
	db, _, _, svc := setup(t)
	owner := createUser(t, db, "ada@example.com", "", geo.Point{})
	id := raise(t, svc, owner.ID)
	ctx := context.Background()

	_, err := svc.UpdateReport(ctx, owner.ID, id, UpdateReportInput{Status: models.StatusFalseAlarm})
	require.NoError(t, err)

	u, err := svc.AddUpdate(ctx, owner.ID, id, AddUpdateInput{Message: "sorry, pocket dial"})
	require.NoError(t, err)
	assert.Equal(t, models.UpdateInfo, u.Status)

	_, err = svc.AddUpdate(ctx, owner.ID, id, AddUpdateInput{Message: "second", Status: models.UpdateWarning})
	require.NoError(t, err)

	report, err := svc.GetReport(ctx, owner.ID, id)
	require.NoError(t, err)
	require.Len(t, report.Updates, 2)
	assert.Equal(t, "sorry, pocket dial", report.Updates[0].Message)
	assert.Equal(t, owner.ID, report.Updates[0].UpdatedBy)

	_, err = svc.AddUpdate(ctx, owner.ID, id, AddUpdateInput{})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}

func TestListReports(t *testing.T) {
	db, _, _, svc := setup(t)
	owner := createUser(t, db, "ada@example.com", "", geo.Point{})
	for i := 0; i < 3; i++ {
		raise(t, svc, owner.ID)
	}
	ctx := context.Background()

	reports, page, err := svc.ListReports(ctx, owner.ID, ListInput{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.Equal(t, Pagination{Current: 1, Pages: 2, Total: 3}, page)

	reports, _, err = svc.ListReports(ctx, owner.ID, ListInput{Status: models.StatusFailed})
	require.NoError(t, err)
	assert.Empty(t, reports)

	_, _, err = svc.ListReports(ctx, owner.ID, ListInput{Status: "bogus"})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}

func TestServices(t *testing.T) {
	code, numbers, err := Services("fr")
	require.NoError(t, err)
	assert.Equal(t, "FR", code)
	assert.Equal(t, "17", numbers["police"])
	assert.Equal(t, "112", numbers["general"])

	_, jp, err := Services("JP")
	require.NoError(t, err)
	_, ok := jp["general"]
	assert.False(t, ok)

	_, _, err = Services("XX")
	assert.ErrorIs(t, err, ErrUnknownCountry)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	// 返回的是副本
	numbers["police"] = "000"
	_, again, _ := Services("FR")
	assert.Equal(t, "17", again["police"])
}
