package grpcx

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer is a gRPC server exposing only grpc.health.v1.Health.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

// NewHealthServer binds addr and registers the health service. service is
// the name health checkers use; "" always reports the overall status.
func NewHealthServer(addr, service string, logger *slog.Logger) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor(), UnaryServerLogInterceptor(logger)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if service != "" {
		hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{srv: srv, health: hs, lis: lis, logger: logger}, nil
}

func (h *HealthServer) Addr() string { return h.lis.Addr().String() }

// Serve blocks until Stop is called.
func (h *HealthServer) Serve() {
	h.logger.Info("grpc health listening", "addr", h.Addr())
	if err := h.srv.Serve(h.lis); err != nil && err != grpc.ErrServerStopped {
		h.logger.Error("grpc server error", "err", err)
	}
}

// Stop flips every service to NOT_SERVING and drains in-flight calls until
// ctx expires.
func (h *HealthServer) Stop(ctx context.Context) {
	h.health.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.srv.Stop()
	}
}
