package health

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the pool.
const ServiceName = "botkeeper.Pool"

// GRPCServer exposes the monitor through the standard gRPC health protocol.
type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
	port   int
}

// NewGRPCServer registers a health service whose status follows the monitor.
func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	hs := grpchealth.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	g := &GRPCServer{server: s, health: hs, port: port}
	monitor.OnChange(g.set)
	return g
}

func (g *GRPCServer) set(status SystemStatus) {
	serving := healthpb.HealthCheckResponse_SERVING
	if status == StatusCritical {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", serving)
	g.health.SetServingStatus(ServiceName, serving)
}

// Start listens and serves until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	slog.Info("gRPC health service listening", "port", g.port)
	return g.Serve(lis)
}

// Serve serves on an existing listener.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Stop drains in-flight calls.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
