package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bloodbank/internal/apperr"
	"bloodbank/internal/idempotency"
	"bloodbank/internal/lifecycle"
	"bloodbank/internal/middleware"
	"bloodbank/internal/models"
	"bloodbank/internal/receipt"
	"bloodbank/internal/repository"
	"bloodbank/internal/service"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	bindAttempts = 2
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.log.Error("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}
	bt, err := models.ParseBloodType(q.Get("bloodType"))
	if err != nil {
		fields["bloodType"] = "must be one of A+, A-, B+, B-, AB+, AB-, O+, O-"
	}
	filter, err := models.ParseSourceFilter(q.Get("filter"))
	if err != nil {
		fields["filter"] = "must be one of all, hospitals, organizations"
	}
	if len(fields) > 0 {
		writeError(w, s.log, apperr.Validation(fields))
		return
	}

	offers, err := s.search.Search(r.Context(), bt, filter)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	var req service.CreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	clientKey := r.Header.Get(IdempotencyHeader)
	if clientKey == "" || s.idem == nil {
		o, err := s.purchases.Create(r.Context(), actor, req)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeOrder(w, http.StatusCreated, actor, o)
		return
	}

	key := idempotency.Key(actor.ID, clientKey)
	existing, err := s.idem.Claim(r.Context(), key)
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		writeError(w, s.log, apperr.New(apperr.KindConflict, "a request with this idempotency key is still in progress"))
		return
	case err != nil:
		writeError(w, s.log, err)
		return
	case existing != "":
		o, err := s.purchases.Get(r.Context(), actor, existing)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeOrder(w, http.StatusOK, actor, o)
		return
	}

	o, err := s.purchases.Create(r.Context(), actor, req)
	if err != nil {
		if relErr := s.idem.Release(r.Context(), key); relErr != nil {
			s.log.Warn("release idempotency key", "err", relErr)
		}
		writeError(w, s.log, err)
		return
	}
	s.bindKey(r.Context(), key, o.ID)
	writeOrder(w, http.StatusCreated, actor, o)
}

// bindKey records the created order under key. If that keeps failing the
// pending claim is dropped, so retries are not stuck on a conflict until the
// claim expires.
func (s *Server) bindKey(ctx context.Context, key, orderID string) {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt < bindAttempts; attempt++ {
		if err = s.idem.Bind(ctx, key, orderID); err == nil {
			return
		}
	}
	s.log.Warn("bind idempotency key", "order_id", orderID, "err", err)
	if err := s.idem.Release(ctx, key); err != nil {
		s.log.Error("release idempotency key", "order_id", orderID, "err", err)
	}
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	orders, err := s.purchases.ListMine(r.Context(), actorOf(r), limit, offset)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	o, err := s.purchases.Get(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOrder(w, http.StatusOK, actorOf(r), o)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	o, err := s.purchases.GetByTracking(r.Context(), actorOf(r), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOrder(w, http.StatusOK, actorOf(r), o)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	o, err := s.purchases.Cancel(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOrder(w, http.StatusOK, actorOf(r), o)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req service.TransitionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	o, err := s.purchases.Transition(r.Context(), actorOf(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOrder(w, http.StatusOK, actorOf(r), o)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	o, err := s.purchases.Get(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	doc, err := s.receipts.Render(o)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, doc)
		return
	}

	var buf bytes.Buffer
	if err := receipt.WritePDF(&buf, doc, o.UpdatedAt); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, o.TrackingNumber))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	f := repository.OrderFilter{
		Status:  models.OrderStatus(q.Get("status")),
		Urgency: models.Urgency(q.Get("urgency")),
		Limit:   limit,
		Offset:  offset,
	}
	if raw := q.Get("bloodType"); raw != "" {
		bt, err := models.ParseBloodType(raw)
		if err != nil {
			writeError(w, s.log, apperr.Validation(map[string]string{"bloodType": "must be one of A+, A-, B+, B-, AB+, AB-, O+, O-"}))
			return
		}
		f.BloodType = bt
	}
	orders, err := s.purchases.ListAll(r.Context(), actorOf(r), f)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// orderView is a single order as the dashboards see it, with the statuses the
// caller may move it to next.
type orderView struct {
	*models.PurchaseOrder
	AllowedNext []models.OrderStatus `json:"allowedNext"`
}

func writeOrder(w http.ResponseWriter, code int, actor models.Actor, o *models.PurchaseOrder) {
	writeJSON(w, code, orderView{PurchaseOrder: o, AllowedNext: allowedNext(actor, o.Status)})
}

func allowedNext(actor models.Actor, status models.OrderStatus) []models.OrderStatus {
	if actor.IsAdmin() {
		return lifecycle.Next(status)
	}
	if lifecycle.Allowed(status, models.StatusCancelled) {
		return []models.OrderStatus{models.StatusCancelled}
	}
	return []models.OrderStatus{}
}

func actorOf(r *http.Request) models.Actor {
	a, _ := middleware.ActorFrom(r.Context())
	return a
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation(map[string]string{"body": err.Error()})
	}
	return nil
}

func page(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	fields := map[string]string{}
	atoi := func(name string) int {
		raw := q.Get(name)
		if raw == "" {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields[name] = "must be a non-negative integer"
		}
		return n
	}
	limit, offset := atoi("limit"), atoi("offset")
	if len(fields) > 0 {
		return 0, 0, apperr.Validation(fields)
	}
	return limit, offset, nil
}
