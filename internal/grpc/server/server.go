package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer creates a new gRPC server with recommended options
func NewGRPCServer() *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(1024 * 1024 * 4), // 4MB max receive message size
		grpc.MaxSendMsgSize(1024 * 1024 * 4), // 4MB max send message size
	}

	return grpc.NewServer(opts...)
}

// RegisterHealthServer registers the standard health service used by platform
// liveness probes and returns it so serving status can be flipped during
// shutdown drain.
func RegisterHealthServer(s *grpc.Server) *health.Server {
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	return healthServer
}
