package grpcserver

import (
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/clinicdesk/libs/grpcx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported to health clients that ask about this service specifically.
const ServiceName = "clinicdesk.scheduling.v1"

// Server is the gRPC side of the scheduling service. It only serves grpc.health.v1 so that
// orchestrators and schedctl can probe the process without going through HTTP.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func New(logger *slog.Logger, extra ...grpc.ServerOption) *Server {
	srv := grpc.NewServer(grpcx.ServerOptions(extra...)...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	s := &Server{srv: srv, health: hs, logger: logger}
	s.SetServing(false)
	return s
}

// SetServing flips both the overall status and the service-specific status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve marks the server healthy and blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.SetServing(true)
	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

// Stop reports NOT_SERVING to watchers, then drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
	s.logger.Info("grpc server stopped")
}
