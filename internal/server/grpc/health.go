// Package grpc serves the standard gRPC health service so orchestrators can
// probe the worker.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the job handler.
const ServiceName = "rfworker.Jobs"

// HealthServer wraps a grpc.Server exposing grpc.health.v1.Health.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer creates a server reporting SERVING for the worker.
func NewHealthServer() *HealthServer {
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &HealthServer{server: s, health: hs}
}

// Serve accepts connections on lis until ctx is done.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		h.health.Shutdown()
		h.server.GracefulStop()
	}()

	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := h.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on port and serves until ctx is done.
func (h *HealthServer) ListenAndServe(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return h.Serve(ctx, lis)
}
