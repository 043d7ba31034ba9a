package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"brokerage-gateway/internal/health"
	"brokerage-gateway/internal/server/interceptors"
)

// healthCheckMethod is polled by load balancers and not logged.
const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds the dependencies of the gRPC services.
type Deps struct {
	// Health backs grpc.health.v1.Health. If nil, the service always reports SERVING.
	Health *health.Checker
}

// RegisterServices registers the gateway's gRPC services with s.
//
//   - grpc.health.v1.Health → internal/health
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	healthpb.RegisterHealthServer(s, health.NewServer(deps.Health))
}

// NewGRPCServer returns a server with OTel stats, panic recovery and request logging, and every
// service registered.
func NewGRPCServer(deps Deps, logger *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryUnary(logger),
			interceptors.LoggingUnary(logger, map[string]bool{healthCheckMethod: true}),
		),
	)
	RegisterServices(s, deps)
	return s
}
