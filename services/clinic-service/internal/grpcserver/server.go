//go:build protogen

package grpcserver

import (
	"context"

	clinicv1 "github.com/salud-online/sos/protos/gen/clinic/v1"
	"github.com/salud-online/sos/services/clinic-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type server struct {
	clinicv1.UnimplementedClinicServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	clinicv1.RegisterClinicServiceServer(grpcServer, &server{repo: repo})
}

func (s *server) GetProviderSchedule(ctx context.Context, req *clinicv1.ProviderScheduleRequest) (*clinicv1.ProviderScheduleResponse, error) {
	if req.GetProviderId() == "" {
		return nil, status.Error(codes.InvalidArgument, "provider_id is required")
	}
	shifts, err := s.repo.GetProviderShifts(ctx, req.GetProviderId())
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, status.Error(codes.NotFound, "provider not found")
		}
		return nil, status.Error(codes.Internal, "failed to load schedule")
	}
	return &clinicv1.ProviderScheduleResponse{
		ProviderId: req.GetProviderId(),
		Shifts:     shifts,
	}, nil
}
