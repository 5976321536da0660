package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodbank/internal/apperr"
	"bloodbank/internal/audit"
	"bloodbank/internal/catalog"
	"bloodbank/internal/logging"
	"bloodbank/internal/models"
	"bloodbank/internal/ranking"
	"bloodbank/internal/repository"
	"bloodbank/internal/service"
)

var (
	buyer = models.Actor{ID: "user-1", Role: models.RolePurchaser}
	other = models.Actor{ID: "user-2", Role: models.RolePurchaser}
	admin = models.Actor{ID: "admin", Role: models.RoleAdmin}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type auditSink struct {
	mu      sync.Mutex
	records []audit.AuditLog
}

func (a *auditSink) Log(r audit.AuditLog) {
	a.mu.Lock()
	a.records = append(a.records, r)
	a.mu.Unlock()
}

func (a *auditSink) all() []audit.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.AuditLog(nil), a.records...)
}

type fixture struct {
	svc      *service.PurchaseService
	orders   *repository.MemoryOrderRepository
	clock    *clock
	audit    *auditSink
	tracking int
}

func newFixture(t *testing.T, reserver catalog.Reserver) *fixture {
	t.Helper()
	f := &fixture{
		orders: repository.NewMemoryOrderRepository(),
		clock:  &clock{now: time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC)},
		audit:  &auditSink{},
	}
	var mu sync.Mutex
	f.svc = service.NewPurchaseService(service.Deps{
		Orders:   f.orders,
		Reserver: reserver,
		Audit:    f.audit,
		Log:      logging.Discard(),
		Now:      f.clock.Now,
		Seed:     func() uint64 { return 42 },
		Tracking: func() (string, error) {
			mu.Lock()
			f.tracking++
			mu.Unlock()
			return service.NewTrackingNumber()
		},
	})
	return f
}

func schedule(blood, processing, screening, service int64) *models.FeeSchedule {
	return &models.FeeSchedule{
		BloodPrice:    decimal.NewFromInt(blood),
		ProcessingFee: decimal.NewFromInt(processing),
		ScreeningFee:  decimal.NewFromInt(screening),
		ServiceCharge: decimal.NewFromInt(service),
	}
}

func validRequest() service.CreateRequest {
	return service.CreateRequest{
		SourceID:     "org-b",
		SourceType:   models.SourceOrganization,
		SourceName:   "Source B",
		BloodType:    "O+",
		Units:        1,
		Pricing:      schedule(1000, 200, 200, 100),
		PatientName:  "Rahim Uddin",
		ContactName:  "Karim Uddin",
		ContactPhone: "+8801700000000",
		Urgency:      models.UrgencyUrgent,
		RequiredDate: "2026-10-20",
	}
}

func (f *fixture) create(t *testing.T) *models.PurchaseOrder {
	t.Helper()
	o, err := f.svc.Create(context.Background(), buyer, validRequest())
	require.NoError(t, err)
	return o
}

func (f *fixture) stored(t *testing.T, id string) *models.PurchaseOrder {
	t.Helper()
	o, err := f.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func TestCreatePendingOrder(t *testing.T) {
	f := newFixture(t, nil)
	o := f.create(t)

	assert.Equal(t, models.StatusPending, o.Status)
	assert.Regexp(t, `^BB[A-Z2-9]{8}$`, o.TrackingNumber)
	assert.Equal(t, buyer.ID, o.PurchasedBy)
	assert.Equal(t, models.BloodOPos, o.BloodType)
	assert.True(t, o.Pricing.TotalCost.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), o.RequiredDate)
	assert.Equal(t, service.ExpiryDate(f.clock.Now(), 42), o.ExpiryDate)
	assert.Equal(t, o.CreatedAt, o.UpdatedAt)

	recs := f.audit.all()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.ActionCreated, recs[0].Action)
	assert.Equal(t, "pending", recs[0].NewStatus)
}

func TestCreateTotalScalesBloodPriceOnly(t *testing.T) {
	f := newFixture(t, nil)
	req := validRequest()
	req.Units = 3
	req.Pricing = schedule(1200, 300, 200, 100)
	o, err := f.svc.Create(context.Background(), buyer, req)
	require.NoError(t, err)
	assert.True(t, o.Pricing.TotalCost.Equal(decimal.NewFromInt(4200)))
}

func TestSearchThenPurchaseFreezesPrice(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog(
		models.Source{ID: "A", Name: "Source A", Kind: models.SourceHospital,
			Inventory: map[models.BloodType]int{models.BloodOPos: 5}, Pricing: schedule(1200, 300, 200, 100)},
		models.Source{ID: "B", Name: "Source B", Kind: models.SourceOrganization,
			Inventory: map[models.BloodType]int{models.BloodOPos: 2}, Pricing: schedule(1000, 200, 200, 100)},
	)
	offers, err := ranking.NewEngine(cat).Search(ctx, models.BloodOPos, models.FilterAll)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	best := offers[0]
	require.True(t, best.BestPrice)
	require.Equal(t, "B", best.SourceID)

	f := newFixture(t, nil)
	pricing := best.Pricing
	observed := best.AvailableUnits
	req := validRequest()
	req.SourceID, req.SourceName, req.SourceType = best.SourceID, best.SourceName, best.SourceType
	req.Pricing = &pricing
	req.ObservedUnits = &observed
	o, err := f.svc.Create(ctx, buyer, req)
	require.NoError(t, err)

	cat.Put(models.Source{ID: "B", Name: "Source B", Kind: models.SourceOrganization,
		Inventory: map[models.BloodType]int{models.BloodOPos: 2}, Pricing: schedule(5000, 900, 900, 900)})
	pricing.BloodPrice = decimal.NewFromInt(9999)

	stored := f.stored(t, o.ID)
	assert.True(t, stored.Pricing.TotalCost.Equal(decimal.NewFromInt(1500)))
	assert.True(t, stored.Pricing.BloodPrice.Equal(decimal.NewFromInt(1000)))
}

// Without reservation, an order larger than live stock is accepted and stock
// is left untouched.
func TestCreateOverLiveStockAccepted(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog(models.Source{ID: "org-b", Name: "Source B", Kind: models.SourceOrganization,
		Inventory: map[models.BloodType]int{models.BloodOPos: 2}, Pricing: schedule(1000, 200, 200, 100)})

	f := newFixture(t, nil)
	req := validRequest()
	req.Units = 3
	o, err := f.svc.Create(ctx, buyer, req)
	require.NoError(t, err)
	assert.Equal(t, 3, o.Units)

	assert.Equal(t, 2, unitsLeft(t, cat, "org-b", models.BloodOPos))
}

func TestCreateAboveObservedStock(t *testing.T) {
	f := newFixture(t, nil)
	req := validRequest()
	req.Units = 3
	observed := 2
	req.ObservedUnits = &observed

	_, err := f.svc.Create(context.Background(), buyer, req)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock))
	assert.Equal(t, 0, f.tracking)
}

func TestCreateWithReservation(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog(models.Source{ID: "org-b", Name: "Source B", Kind: models.SourceOrganization,
		Inventory: map[models.BloodType]int{models.BloodOPos: 2}, Pricing: schedule(1000, 200, 200, 100)})
	f := newFixture(t, cat)

	req := validRequest()
	req.Units = 2
	_, err := f.svc.Create(ctx, buyer, req)
	require.NoError(t, err)

	req.Units = 1
	_, err = f.svc.Create(ctx, buyer, req)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock))

	req.SourceID = "missing"
	_, err = f.svc.Create(ctx, buyer, req)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.Equal(t, 0, unitsLeft(t, cat, "org-b", models.BloodOPos))
}

func TestFailedCreateReturnsReservedUnits(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog(models.Source{ID: "org-b", Name: "Source B", Kind: models.SourceOrganization,
		Inventory: map[models.BloodType]int{models.BloodOPos: 3}, Pricing: schedule(1000, 200, 200, 100)})
	svc := service.NewPurchaseService(service.Deps{
		Orders:   repository.NewMemoryOrderRepository(),
		Reserver: cat,
		Audit:    &auditSink{},
		Log:      logging.Discard(),
		Tracking: func() (string, error) { return "BBSAMESAME", nil },
	})

	_, err := svc.Create(ctx, buyer, validRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, unitsLeft(t, cat, "org-b", models.BloodOPos))

	_, err = svc.Create(ctx, buyer, validRequest())
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, 2, unitsLeft(t, cat, "org-b", models.BloodOPos))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.Create(cancelled, buyer, validRequest())
	assert.Error(t, err)
	assert.Equal(t, 2, unitsLeft(t, cat, "org-b", models.BloodOPos))
}

func unitsLeft(t *testing.T, c catalog.Catalog, id string, bt models.BloodType) int {
	t.Helper()
	sources, err := c.Sources(context.Background())
	require.NoError(t, err)
	for _, s := range sources {
		if s.ID == id {
			return s.UnitsOf(bt)
		}
	}
	t.Fatalf("source %s not in catalog", id)
	return 0
}

func TestCreateMissingContactPhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	req := validRequest()
	req.ContactPhone = "   "

	_, err := f.svc.Create(ctx, buyer, req)
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "contactPhone")

	orders, err := f.orders.List(ctx, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 0, f.tracking)
}

func TestCreateValidationFields(t *testing.T) {
	f := newFixture(t, nil)
	cm := decimal.NewFromInt(500)
	req := service.CreateRequest{
		SourceID:     "org-b",
		SourceType:   models.SourceOrganization,
		SourceName:   "B",
		BloodType:    "Z+",
		Units:        0,
		Pricing:      &models.FeeSchedule{BloodPrice: decimal.NewFromInt(-1), AdditionalFees: &models.AdditionalFees{CrossMatching: &cm}},
		ContactEmail: "not-an-email",
		RequiredDate: "next tuesday",
		Urgency:      "whenever",
	}
	_, err := f.svc.Create(context.Background(), buyer, req)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	for _, field := range []string{
		"bloodType", "units", "patientName", "contactName", "contactPhone",
		"contactEmail", "requiredDate", "urgency", "pricing.bloodPrice",
		"pricing.additionalFees.cross_matching",
	} {
		assert.Contains(t, ae.Fields, field)
	}
}

func TestCreateRequiresPurchaser(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create(context.Background(), models.Actor{}, validRequest())
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	_, err = f.svc.Create(context.Background(), admin, validRequest())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestVerifyThenCancelThenCancelAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.create(t)

	_, err := f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{Status: models.StatusVerified})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, buyer, o.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
	assert.Equal(t, models.StatusCancelled, f.stored(t, o.ID).Status)
}

func TestCancelRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.create(t)

	_, err := f.svc.Cancel(ctx, other, o.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	for _, s := range []models.OrderStatus{models.StatusVerified, models.StatusConfirmed} {
		_, err = f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{Status: s})
		require.NoError(t, err)
	}
	_, err = f.svc.Cancel(ctx, buyer, o.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	_, err = f.svc.Cancel(ctx, buyer, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPurchaserCannotAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.create(t)

	_, err := f.svc.Transition(ctx, buyer, o.ID, service.TransitionRequest{Status: models.StatusVerified})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.Transition(ctx, buyer, o.ID, service.TransitionRequest{Status: models.StatusPending})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Equal(t, models.StatusPending, f.stored(t, o.ID).Status)
}

// walk drives a fresh order to status s along the happy path or a terminal branch.
func (f *fixture) walk(t *testing.T, s models.OrderStatus) *models.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	o := f.create(t)
	paths := map[models.OrderStatus][]models.OrderStatus{
		models.StatusPending:   nil,
		models.StatusVerified:  {models.StatusVerified},
		models.StatusConfirmed: {models.StatusVerified, models.StatusConfirmed},
		models.StatusReady:     {models.StatusVerified, models.StatusConfirmed, models.StatusReady},
		models.StatusCompleted: {models.StatusVerified, models.StatusConfirmed, models.StatusReady, models.StatusCompleted},
		models.StatusCancelled: {models.StatusCancelled},
		models.StatusRejected:  {models.StatusRejected},
	}
	for _, step := range paths[s] {
		_, err := f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{Status: step})
		require.NoError(t, err)
	}
	return f.stored(t, o.ID)
}

func TestTransitionClosure(t *testing.T) {
	ctx := context.Background()
	allowed := map[models.OrderStatus][]models.OrderStatus{
		models.StatusPending:   {models.StatusVerified, models.StatusCancelled, models.StatusRejected},
		models.StatusVerified:  {models.StatusConfirmed, models.StatusCancelled, models.StatusRejected},
		models.StatusConfirmed: {models.StatusReady},
		models.StatusReady:     {models.StatusCompleted},
	}
	f := newFixture(t, nil)
	for _, from := range models.OrderStatuses {
		for _, to := range models.OrderStatuses {
			if from == to && !from.Terminal() {
				continue
			}
			o := f.walk(t, from)
			before := o.UpdatedAt
			f.clock.Advance(time.Minute)

			_, err := f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{Status: to})
			stored := f.stored(t, o.ID)
			if contains(allowed[from], to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, stored.Status)
				continue
			}
			assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), "%s -> %s: %v", from, to, err)
			assert.Equal(t, from, stored.Status)
			assert.Equal(t, before, stored.UpdatedAt)
		}
	}
}

func contains(list []models.OrderStatus, s models.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestSameStatusIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.walk(t, models.StatusVerified)
	settled := o.UpdatedAt

	f.clock.Advance(time.Hour)
	for i := 0; i < 2; i++ {
		got, err := f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{Status: models.StatusVerified})
		require.NoError(t, err)
		assert.Equal(t, models.StatusVerified, got.Status)
	}
	assert.Equal(t, settled, f.stored(t, o.ID).UpdatedAt)
	assert.Len(t, f.audit.all(), 2)
}

func TestAdminNotesAndPickupMerge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.walk(t, models.StatusVerified)

	addr := "DMCH blood bank, ground floor"
	date := "2026-10-18"
	_, err := f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{
		Status:        models.StatusVerified,
		PickupDetails: &models.PickupPatch{Address: &addr},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	notes := "donor screening done"
	got, err := f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{
		Status:        models.StatusConfirmed,
		AdminNotes:    &notes,
		PickupDetails: &models.PickupPatch{Address: &addr, Date: &date},
	})
	require.NoError(t, err)
	assert.Equal(t, notes, got.AdminNotes)
	require.NotNil(t, got.PickupDetails)
	assert.Equal(t, addr, got.PickupDetails.Address)

	f.clock.Advance(time.Minute)
	tm := "11:00"
	got, err = f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{
		Status:        models.StatusConfirmed,
		PickupDetails: &models.PickupPatch{Time: &tm},
	})
	require.NoError(t, err)
	assert.Equal(t, addr, got.PickupDetails.Address)
	assert.Equal(t, date, got.PickupDetails.Date)
	assert.Equal(t, tm, got.PickupDetails.Time)
	assert.Equal(t, notes, got.AdminNotes)
	assert.Equal(t, f.clock.Now(), got.UpdatedAt)
}

func TestPurchaserExtrasIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.create(t)

	notes := "please hurry"
	got, err := f.svc.Transition(ctx, buyer, o.ID, service.TransitionRequest{
		Status:     models.StatusCancelled,
		AdminNotes: &notes,
	})
	require.NoError(t, err)
	assert.Empty(t, got.AdminNotes)
}

func TestUnknownStatus(t *testing.T) {
	f := newFixture(t, nil)
	o := f.create(t)
	_, err := f.svc.Transition(context.Background(), admin, o.ID, service.TransitionRequest{Status: "shipped"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestConcurrentCancelAndConfirm(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		f := newFixture(t, nil)
		o := f.walk(t, models.StatusVerified)

		var wg sync.WaitGroup
		var cancelErr, confirmErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = f.svc.Cancel(ctx, buyer, o.ID)
		}()
		go func() {
			defer wg.Done()
			_, confirmErr = f.svc.Transition(ctx, admin, o.ID, service.TransitionRequest{Status: models.StatusConfirmed})
		}()
		wg.Wait()

		final := f.stored(t, o.ID).Status
		switch final {
		case models.StatusCancelled:
			require.NoError(t, cancelErr)
			if confirmErr != nil {
				assert.True(t, apperr.Is(confirmErr, apperr.KindInvalidTransition))
			}
		case models.StatusConfirmed:
			require.NoError(t, confirmErr)
			assert.True(t, apperr.Is(cancelErr, apperr.KindInvalidTransition))
		default:
			t.Fatalf("unexpected final status %s", final)
		}
	}
}

func TestGetAndTrackAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.create(t)

	got, err := f.svc.Get(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TrackingNumber, got.TrackingNumber)

	_, err = f.svc.Get(ctx, other, o.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	got, err = f.svc.GetByTracking(ctx, admin, o.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.GetByTracking(ctx, buyer, "BBNOTHERE")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListMineAndAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	for i := 0; i < 3; i++ {
		f.create(t)
		f.clock.Advance(time.Minute)
	}
	req := validRequest()
	req.Urgency = models.UrgencyEmergency
	_, err := f.svc.Create(ctx, other, req)
	require.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, buyer, 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
	assert.True(t, mine[0].CreatedAt.After(mine[2].CreatedAt))

	_, err = f.svc.ListAll(ctx, buyer, repository.OrderFilter{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	emergencies, err := f.svc.ListAll(ctx, admin, repository.OrderFilter{Urgency: models.UrgencyEmergency})
	require.NoError(t, err)
	require.Len(t, emergencies, 1)
	assert.Equal(t, other.ID, emergencies[0].PurchasedBy)

	_, err = f.svc.ListAll(ctx, admin, repository.OrderFilter{Status: "lost"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestTrackingNumbersUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		o, err := f.svc.Create(ctx, buyer, validRequest())
		require.NoError(t, err)
		seen[o.TrackingNumber] = struct{}{}
	}
	assert.Len(t, seen, 10000)
}

func TestTrackingCollisionRetried(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewMemoryOrderRepository()
	numbers := []string{"BBAAAAAAAA", "BBAAAAAAAA", "BBBBBBBBBB"}
	i := 0
	svc := service.NewPurchaseService(service.Deps{
		Orders: orders,
		Log:    logging.Discard(),
		Tracking: func() (string, error) {
			n := numbers[i]
			i++
			return n, nil
		},
	})

	first, err := svc.Create(ctx, buyer, validRequest())
	require.NoError(t, err)
	second, err := svc.Create(ctx, buyer, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "BBAAAAAAAA", first.TrackingNumber)
	assert.Equal(t, "BBBBBBBBBB", second.TrackingNumber)
}

func TestTrackingExhausted(t *testing.T) {
	ctx := context.Background()
	svc := service.NewPurchaseService(service.Deps{
		Orders:   repository.NewMemoryOrderRepository(),
		Log:      logging.Discard(),
		Tracking: func() (string, error) { return "BBSAMESAME", nil },
	})
	_, err := svc.Create(ctx, buyer, validRequest())
	require.NoError(t, err)
	_, err = svc.Create(ctx, buyer, validRequest())
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestExpiryDateBounds(t *testing.T) {
	created := time.Date(2026, 10, 14, 23, 59, 0, 0, time.UTC)
	day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	for seed := uint64(0); seed < 2000; seed++ {
		exp := service.ExpiryDate(created, seed)
		days := int(exp.Sub(day).Hours() / 24)
		require.GreaterOrEqual(t, days, 35, fmt.Sprint(seed))
		require.LessOrEqual(t, days, 42, fmt.Sprint(seed))
	}
	assert.Equal(t, service.ExpiryDate(created, 7), service.ExpiryDate(created, 7))
}
