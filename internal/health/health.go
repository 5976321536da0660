package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported for the purchase API in the health service.
const Service = "bloodbank.PurchaseAPI"

// Checker mirrors a dependency probe into gRPC health statuses.
type Checker struct {
	srv   *health.Server
	probe func(ctx context.Context) error
	log   *slog.Logger
}

// NewChecker returns a checker. A nil probe always reports SERVING.
func NewChecker(probe func(ctx context.Context) error, log *slog.Logger) *Checker {
	return &Checker{srv: health.NewServer(), probe: probe, log: log}
}

func (c *Checker) Server() healthpb.HealthServer { return c.srv }

// Check runs the probe once and updates both the overall and per-service status.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if c.probe != nil {
		if err := c.probe(ctx); err != nil {
			c.log.Warn("health probe failed", "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	c.srv.SetServingStatus("", status)
	c.srv.SetServingStatus(Service, status)
	return status
}

// Watch re-checks every interval until ctx is done, then marks everything NOT_SERVING.
func (c *Checker) Watch(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.srv.Shutdown()
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			c.Check(probeCtx)
			cancel()
		}
	}
}

// Serve exposes the health service on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, c *Checker, log *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, c.Server())

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	log.Info("grpc health listening", "addr", addr)
	if err := s.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
