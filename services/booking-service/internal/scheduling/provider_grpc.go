//go:build protogen

package scheduling

import (
	"context"
	"time"

	"github.com/salud-online/sos/libs/grpcx"
	"github.com/salud-online/sos/libs/schedule"
	clinicv1 "github.com/salud-online/sos/protos/gen/clinic/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type grpcProvider struct {
	client clinicv1.ClinicServiceClient
}

// NewGRPCProvider returns a gRPC-backed schedule provider, or nil when no
// address is configured.
func NewGRPCProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: clinicv1.NewClinicServiceClient(conn)}, nil
}

func (p *grpcProvider) WeekSchedule(ctx context.Context, providerID string) (*schedule.WeekSchedule, error) {
	resp, err := p.client.GetProviderSchedule(ctx, &clinicv1.ProviderScheduleRequest{ProviderId: providerID})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return schedule.ParseWeekSchedule(resp.GetShifts())
}
