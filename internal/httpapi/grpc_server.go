package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer publishes readiness over grpc.health.v1, both for the empty
// service name and for serviceName.
type HealthServer struct {
	health    *health.Server
	readiness readinessChecker
	interval  time.Duration
}

// NewHealthServer creates the gRPC health service. It reports NOT_SERVING
// until the first Refresh.
func NewHealthServer(r readinessChecker, interval time.Duration) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthServer{health: health.NewServer(), readiness: r, interval: interval}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Refresh runs the readiness probe once and publishes the result.
func (h *HealthServer) Refresh(ctx context.Context) error {
	if err := h.readiness.Check(ctx); err != nil {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run refreshes on every interval until ctx is done, then marks every
// service NOT_SERVING for the remainder of shutdown.
func (h *HealthServer) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, h.interval)
		_ = h.Refresh(probeCtx)
		cancel()
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(serviceName, status)
}
