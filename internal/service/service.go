package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"time"

	"github.com/google/uuid"

	"bloodbank/internal/apperr"
	"bloodbank/internal/audit"
	"bloodbank/internal/catalog"
	"bloodbank/internal/fees"
	"bloodbank/internal/lifecycle"
	"bloodbank/internal/models"
	"bloodbank/internal/repository"
)

const (
	maxTrackingAttempts = 5
	maxWriteAttempts    = 3
)

// Auditor receives one record per successful order change.
type Auditor interface {
	Log(record audit.AuditLog)
}

type Deps struct {
	Orders repository.OrderRepository
	Fees   fees.Registry
	// Reserver, when set, atomically takes stock at creation time.
	Reserver catalog.Reserver
	Audit    Auditor
	Log      *slog.Logger

	Now      func() time.Time
	NewID    func() string
	Tracking func() (string, error)
	Seed     func() uint64
}

// PurchaseService is the purchase order lifecycle manager.
type PurchaseService struct {
	orders   repository.OrderRepository
	fees     fees.Registry
	reserver catalog.Reserver
	audit    Auditor
	log      *slog.Logger

	now      func() time.Time
	newID    func() string
	tracking func() (string, error)
	seed     func() uint64
}

func NewPurchaseService(d Deps) *PurchaseService {
	s := &PurchaseService{
		orders:   d.Orders,
		fees:     d.Fees,
		reserver: d.Reserver,
		audit:    d.Audit,
		log:      d.Log,
		now:      d.Now,
		newID:    d.NewID,
		tracking: d.Tracking,
		seed:     d.Seed,
	}
	if s.fees == nil {
		s.fees = fees.NewRegistry()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.tracking == nil {
		s.tracking = NewTrackingNumber
	}
	if s.seed == nil {
		s.seed = mrand.Uint64
	}
	return s
}

func (s *PurchaseService) Create(ctx context.Context, actor models.Actor, req CreateRequest) (*models.PurchaseOrder, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != models.RolePurchaser {
		return nil, apperr.Forbidden("only purchasers can place orders")
	}

	req.normalize()
	bloodType, requiredDate, fields := req.check()
	if req.Pricing != nil && req.SourceType.Valid() {
		for k, v := range s.fees.Validate(req.SourceType, req.Pricing.AdditionalFees) {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	if req.ObservedUnits != nil && req.Units > *req.ObservedUnits {
		return nil, apperr.InsufficientStock("requested %d units of %s but only %d are available at %s",
			req.Units, bloodType, *req.ObservedUnits, req.SourceName)
	}

	if s.reserver != nil {
		if err := s.reserve(ctx, req.SourceID, bloodType, req.Units); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	order := &models.PurchaseOrder{
		ID:               s.newID(),
		SourceID:         req.SourceID,
		SourceType:       req.SourceType,
		SourceName:       req.SourceName,
		BloodType:        bloodType,
		Units:            req.Units,
		Pricing:          models.FreezePricing(*req.Pricing, req.Units),
		PatientName:      req.PatientName,
		PatientAge:       req.PatientAge,
		PatientCondition: req.PatientCondition,
		ContactName:      req.ContactName,
		ContactPhone:     req.ContactPhone,
		ContactEmail:     req.ContactEmail,
		Urgency:          req.Urgency,
		RequiredDate:     requiredDate,
		ExpiryDate:       ExpiryDate(now, s.seed()),
		Status:           models.StatusPending,
		PurchasedBy:      actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.insert(ctx, order); err != nil {
		if s.reserver != nil {
			s.release(ctx, order)
		}
		return nil, err
	}

	s.emit(order, "", actor, audit.ActionCreated, "order placed")
	return order.Clone(), nil
}

func (s *PurchaseService) reserve(ctx context.Context, sourceID string, bt models.BloodType, units int) error {
	err := s.reserver.Reserve(ctx, sourceID, bt, units)
	switch {
	case err == nil:
		return nil
	case apperr.Is(err, apperr.KindInsufficientStock):
		return err
	case errors.Is(err, catalog.ErrSourceNotFound):
		return apperr.Validation(map[string]string{"sourceId": "unknown source"})
	default:
		return apperr.SourceUnavailable(err)
	}
}

// release gives back units reserved for an order that was never stored. It
// runs detached from ctx so a cancelled request still returns its stock.
func (s *PurchaseService) release(ctx context.Context, o *models.PurchaseOrder) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.reserver.Release(relCtx, o.SourceID, o.BloodType, o.Units); err != nil {
		s.log.Error("release reserved units", "source_id", o.SourceID, "blood_type", o.BloodType, "units", o.Units, "err", err)
	}
}

// insert assigns a tracking number that is not in use and stores the order,
// retrying with a fresh number if the store reports a duplicate.
func (s *PurchaseService) insert(ctx context.Context, order *models.PurchaseOrder) error {
	for attempt := 0; attempt < maxTrackingAttempts; attempt++ {
		tn, err := s.tracking()
		if err != nil {
			return fmt.Errorf("generate tracking number: %w", err)
		}
		exists, err := s.orders.TrackingExists(ctx, tn)
		if err != nil {
			return fmt.Errorf("check tracking number: %w", err)
		}
		if exists {
			continue
		}
		order.TrackingNumber = tn
		err = s.orders.Create(ctx, order)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return fmt.Errorf("store order: %w", err)
		}
		return nil
	}
	return apperr.New(apperr.KindConflict, "could not allocate a unique tracking number")
}

// Transition moves an order to req.Status. Re-requesting the current status of
// a non-terminal order is a no-op success; admins may use it to edit notes and
// pickup details without changing status.
func (s *PurchaseService) Transition(ctx context.Context, actor models.Actor, id string, req TransitionRequest) (*models.PurchaseOrder, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "unknown status " + string(req.Status)})
	}
	if !actor.IsAdmin() {
		req.AdminNotes = nil
		req.PickupDetails = nil
	}

	// Concurrent writers are resolved by compare-and-set on the status the
	// change was planned against; a lost race re-plans on the fresh state.
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cur, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := canAccess(actor, cur); err != nil {
			return nil, err
		}

		next, action, err := s.plan(cur, actor, req)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return cur, nil
		}

		err = s.orders.Update(ctx, next, cur.Status)
		if errors.Is(err, repository.ErrStatusConflict) {
			s.log.Info("order changed concurrently, retrying", "order_id", id, "attempt", attempt+1)
			continue
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("order %s not found", id)
		}
		if err != nil {
			return nil, fmt.Errorf("update order: %w", err)
		}

		s.emit(next, cur.Status, actor, action, transitionMessage(cur.Status, next.Status, actor))
		return next, nil
	}
	return nil, apperr.New(apperr.KindConflict, "order %s is being changed concurrently, try again", id)
}

// plan computes the order after the change. A nil order means nothing to write.
func (s *PurchaseService) plan(cur *models.PurchaseOrder, actor models.Actor, req TransitionRequest) (*models.PurchaseOrder, string, error) {
	from, to := cur.Status, req.Status
	action := audit.ActionTransition

	if from == to {
		if from.Terminal() {
			return nil, "", apperr.InvalidTransition(string(from), string(to))
		}
		if !actor.IsAdmin() {
			return nil, "", apperr.Forbidden("purchasers may only cancel their orders")
		}
		action = audit.ActionUpdated
	} else if err := lifecycle.Authorize(from, to, actor.Role); err != nil {
		return nil, "", err
	}

	if !req.PickupDetails.Empty() && !lifecycle.AcceptsPickup(to) {
		return nil, "", apperr.Validation(map[string]string{
			"pickupDetails": "pickup details can be set once the order is confirmed",
		})
	}

	next := cur.Clone()
	changed := from != to
	if req.AdminNotes != nil && *req.AdminNotes != cur.AdminNotes {
		next.AdminNotes = *req.AdminNotes
		changed = true
	}
	if !req.PickupDetails.Empty() {
		merged := req.PickupDetails.Apply(cur.PickupDetails)
		if cur.PickupDetails == nil || *merged != *cur.PickupDetails {
			next.PickupDetails = merged
			changed = true
		}
	}
	if !changed {
		return nil, "", nil
	}
	next.UpdateState(to, s.now())
	return next, action, nil
}

// Cancel is a purchaser or admin cancellation.
func (s *PurchaseService) Cancel(ctx context.Context, actor models.Actor, id string) (*models.PurchaseOrder, error) {
	return s.Transition(ctx, actor, id, TransitionRequest{Status: models.StatusCancelled})
}

func (s *PurchaseService) Get(ctx context.Context, actor models.Actor, id string) (*models.PurchaseOrder, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canAccess(actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PurchaseService) GetByTracking(ctx context.Context, actor models.Actor, trackingNumber string) (*models.PurchaseOrder, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	o, err := s.orders.GetByTracking(ctx, trackingNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("no order with tracking number %s", trackingNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("get order by tracking number: %w", err)
	}
	if err := canAccess(actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListMine returns the actor's own orders, newest first.
func (s *PurchaseService) ListMine(ctx context.Context, actor models.Actor, limit, offset int) ([]*models.PurchaseOrder, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	orders, err := s.orders.List(ctx, repository.OrderFilter{PurchasedBy: actor.ID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListAll is the admin dashboard listing.
func (s *PurchaseService) ListAll(ctx context.Context, actor models.Actor, f repository.OrderFilter) ([]*models.PurchaseOrder, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("admin access required")
	}
	fields := map[string]string{}
	if f.Status != "" && !f.Status.Valid() {
		fields["status"] = "unknown status " + string(f.Status)
	}
	if f.BloodType != "" && !f.BloodType.Valid() {
		fields["bloodType"] = "must be one of A+, A-, B+, B-, AB+, AB-, O+, O-"
	}
	if f.Urgency != "" && !f.Urgency.Valid() {
		fields["urgency"] = "must be one of normal, urgent, emergency"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *PurchaseService) load(ctx context.Context, id string) (*models.PurchaseOrder, error) {
	o, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PurchaseService) emit(o *models.PurchaseOrder, old models.OrderStatus, actor models.Actor, action, msg string) {
	if s.audit == nil {
		return
	}
	now := s.now().UTC()
	s.audit.Log(audit.AuditLog{
		EventID:        audit.NewEventID(now),
		Timestamp:      now,
		OrderID:        o.ID,
		TrackingNumber: o.TrackingNumber,
		OldStatus:      string(old),
		NewStatus:      string(o.Status),
		ActorID:        actor.ID,
		ActorRole:      string(actor.Role),
		Action:         action,
		Message:        msg,
	})
}

func transitionMessage(from, to models.OrderStatus, actor models.Actor) string {
	if from == to {
		return fmt.Sprintf("%s updated order details", actor.Role)
	}
	return fmt.Sprintf("%s moved order %s -> %s", actor.Role, from, to)
}

func requireActor(a models.Actor) error {
	if a.ID == "" {
		return apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	return nil
}

func canAccess(a models.Actor, o *models.PurchaseOrder) error {
	if a.IsAdmin() || o.PurchasedBy == a.ID {
		return nil
	}
	return apperr.Forbidden("order %s belongs to another purchaser", o.ID)
}
