package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"bloodbank/internal/idempotency"
	"bloodbank/internal/middleware"
	"bloodbank/internal/models"
	"bloodbank/internal/receipt"
	"bloodbank/internal/repository"
	"bloodbank/internal/service"
)

type Searcher interface {
	Search(ctx context.Context, bloodType models.BloodType, filter models.SourceFilter) ([]models.RankedOffer, error)
}

type Purchases interface {
	Create(ctx context.Context, actor models.Actor, req service.CreateRequest) (*models.PurchaseOrder, error)
	Transition(ctx context.Context, actor models.Actor, id string, req service.TransitionRequest) (*models.PurchaseOrder, error)
	Cancel(ctx context.Context, actor models.Actor, id string) (*models.PurchaseOrder, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.PurchaseOrder, error)
	GetByTracking(ctx context.Context, actor models.Actor, trackingNumber string) (*models.PurchaseOrder, error)
	ListMine(ctx context.Context, actor models.Actor, limit, offset int) ([]*models.PurchaseOrder, error)
	ListAll(ctx context.Context, actor models.Actor, f repository.OrderFilter) ([]*models.PurchaseOrder, error)
}

type Config struct {
	Addr     string
	Username string
	Password string
}

type Server struct {
	search    Searcher
	purchases Purchases
	receipts  *receipt.Generator
	idem      idempotency.Store
	ping      func(ctx context.Context) error
	log       *slog.Logger
	cfg       Config
}

// NewServer wires the HTTP surface. idem and ping may be nil.
func NewServer(search Searcher, purchases Purchases, receipts *receipt.Generator, idem idempotency.Store, ping func(ctx context.Context) error, cfg Config, log *slog.Logger) *Server {
	return &Server{
		search:    search,
		purchases: purchases,
		receipts:  receipts,
		idem:      idem,
		ping:      ping,
		log:       log,
		cfg:       cfg,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, middleware.LogMiddleware(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Get("/sources", s.handleSearch)

	r.Route("/purchases", func(r chi.Router) {
		r.Use(middleware.ActorMiddleware)
		r.Post("/", s.handleCreate)
		r.Get("/mine", s.handleListMine)
		r.Get("/track/{trackingNumber}", s.handleTrack)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleCancel)
		r.Get("/{id}/receipt", s.handleReceipt)
	})

	if s.cfg.Password == "" {
		s.log.Warn("admin password not configured, admin routes disabled")
		return r
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.BasicAuthMiddleware(s.cfg.Username, s.cfg.Password))
		r.Get("/purchases", s.handleAdminList)
		r.Get("/purchases/{id}", s.handleGet)
		r.Get("/purchases/{id}/receipt", s.handleReceipt)
		r.Patch("/purchases/{id}/status", s.handleTransition)
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
