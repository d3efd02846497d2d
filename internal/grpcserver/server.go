// Package grpcserver implements the ScrapeRequests gRPC service used by the
// Gateway.
//
// It delegates all business logic to pipeline.Service and handles only the
// gRPC transport concerns: metadata extraction, error mapping and the JSON
// message shapes.
package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/pipeline"
	"jobmate/leads-service/internal/respond"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "jobmate.leads.v1.ScrapeRequests"

// ─── Messages ─────────────────────────────────────────────────────────────────

type GetRequestRequest struct {
	RequestID string `json:"requestId"`
}

type AbortRequestRequest struct {
	RequestID string `json:"requestId"`
}

type AbortRequestResponse struct {
	Success bool `json:"success"`
}

// ─── Service ──────────────────────────────────────────────────────────────────

// RequestService is the slice of pipeline.Service exposed over gRPC.
type RequestService interface {
	Get(ctx context.Context, ownerID, id string) (*model.ScrapingRequest, error)
	Abort(ctx context.Context, ownerID, id string) error
}

// ScrapeRequestsServer is the server API of ServiceName.
type ScrapeRequestsServer interface {
	GetRequest(context.Context, *GetRequestRequest) (*pipeline.RequestView, error)
	AbortRequest(context.Context, *AbortRequestRequest) (*AbortRequestResponse, error)
}

// Server implements ScrapeRequestsServer.
type Server struct {
	svc RequestService
}

// NewServer constructs a gRPC Server backed by svc.
func NewServer(svc RequestService) *Server {
	return &Server{svc: svc}
}

// Register mounts the service and the standard health service on s and
// returns the health server so the caller can flip it on shutdown.
func Register(s *grpc.Server, srv ScrapeRequestsServer) *health.Server {
	s.RegisterService(&serviceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// GetRequest returns the status and results of one of the caller's requests.
func (s *Server) GetRequest(ctx context.Context, req *GetRequestRequest) (*pipeline.RequestView, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.svc.Get(ctx, userID, req.RequestID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	view := pipeline.NewRequestView(r)
	return &view, nil
}

// AbortRequest stops one of the caller's requests. It is idempotent.
func (s *Server) AbortRequest(ctx context.Context, req *AbortRequestRequest) (*AbortRequestResponse, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Abort(ctx, userID, req.RequestID); err != nil {
		return nil, toGRPCError(err)
	}
	return &AbortRequestResponse{Success: true}, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(respond.OwnerHeader)
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return vals[0], nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return status.Error(codes.NotFound, "not found")
	}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, ve.Msg)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, "internal server error")
}
