package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/balaji-balu/vps-screener/internal/fleet"
	"github.com/balaji-balu/vps-screener/internal/lifecycle"
	"github.com/balaji-balu/vps-screener/pkg/model"
)

const ReasonMalformedPayload = "MalformedPayload"

type Fleet interface {
	Submit(ctx context.Context, req model.IngestRequest) error
	QueryStatus(ctx context.Context) []model.StatusRecord
	FetchTasks(ctx context.Context, nodeID string) ([]model.Task, error)
}

type fleetServer struct {
	svc Fleet
}

func (s *fleetServer) SubmitMetrics(ctx context.Context, req *model.IngestRequest) (*SubmitMetricsResponse, error) {
	if err := s.svc.Submit(ctx, *req); err != nil {
		if fleet.IsRejection(err) {
			return nil, status.Errorf(codes.InvalidArgument, "%s: %v", fleet.Reason(err), err)
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &SubmitMetricsResponse{Message: "Metrics received successfully"}, nil
}

func (s *fleetServer) QueryStatus(ctx context.Context, _ *QueryStatusRequest) (*QueryStatusResponse, error) {
	return &QueryStatusResponse{Nodes: s.svc.QueryStatus(ctx)}, nil
}

func (s *fleetServer) FetchTasks(ctx context.Context, req *FetchTasksRequest) (*FetchTasksResponse, error) {
	tasks, err := s.svc.FetchTasks(ctx, req.Node)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &FetchTasksResponse{Tasks: tasks}, nil
}

func malformed(err error) error {
	return status.Errorf(codes.InvalidArgument, "%s: %v", ReasonMalformedPayload, err)
}

// NewServer builds a gRPC server carrying FleetService and the standard
// health service. Health follows the lifecycle: SERVING only while serving.
func NewServer(svc Fleet, life *lifecycle.Lifecycle, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	srv := grpc.NewServer(opts...)

	RegisterFleetServer(srv, &fleetServer{svc: svc})

	hs := health.NewServer()
	setHealth := func(serving bool) {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if serving {
			st = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(ServiceName, st)
	}
	setHealth(life.Ready())
	life.OnChange(func(state string) {
		setHealth(state == lifecycle.StateServing)
		if state == lifecycle.StateStopped {
			hs.Shutdown()
		}
	})
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil && status.Code(err) != codes.InvalidArgument {
			logger.Error("grpc call failed", append(fields, zap.Error(err))...)
			return resp, err
		}
		logger.Debug("grpc call", fields...)
		return resp, err
	}
}

// Serve runs srv on lis until ctx is done, then stops it gracefully.
func Serve(ctx context.Context, srv *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	}
}
