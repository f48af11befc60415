package grpcx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zapagenda/zapagenda/libs/runtime"
)

// HealthServer exposes grpc.health.v1 for orchestrator probes. The serving
// status follows the same dependency checks as /readyz.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

func NewHealthServer(addr string, logger *slog.Logger) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", addr, err)
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{srv: srv, health: hs, lis: lis, logger: logger}, nil
}

func (h *HealthServer) Addr() string {
	return h.lis.Addr().String()
}

// Run serves until ctx is cancelled, re-evaluating checks every interval.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration, checks ...runtime.ReadyCheck) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.refresh(ctx, checks)

	errCh := make(chan error, 1)
	go func() { errCh <- h.srv.Serve(h.lis) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			h.srv.GracefulStop()
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			h.refresh(ctx, checks)
		}
	}
}

func (h *HealthServer) refresh(ctx context.Context, checks []runtime.ReadyCheck) {
	failures := runtime.RunChecks(ctx, checks)
	st := healthpb.HealthCheckResponse_SERVING
	if len(failures) > 0 {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("grpc health not serving", "failures", failures)
	}
	h.health.SetServingStatus("", st)
}
