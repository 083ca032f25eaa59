package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/codeready-toolchain/tarsy-core/pkg/database"
)

// GRPCServiceName is the service name reported by the gRPC health server
// alongside the overall ("") status.
const GRPCServiceName = "tarsy.SessionCore"

// NewGRPCServer returns a gRPC server exposing grpc.health.v1.Health, and
// the health server behind it.
func NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// MirrorHealth sets the serving status of hs from check, immediately and
// then every interval, until ctx is done.
func MirrorHealth(ctx context.Context, hs *health.Server, check func() bool, interval time.Duration) {
	update := func() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if check() {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(GRPCServiceName, status)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// DatabaseCheck returns a check that pings the database behind db.
func DatabaseCheck(db DatabaseSource, timeout time.Duration) func() bool {
	return func() bool {
		client := db.Client()
		if client == nil {
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := database.Health(ctx, client)
		return err == nil
	}
}
