package handlers

import (
	"context"

	log "github.com/sirupsen/logrus"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

// ReadinessSource reports whether the task mirror holds a fresh snapshot and
// signals every time it changes.
type ReadinessSource interface {
	Ready() bool
	SubscribeMirror(ctx context.Context) <-chan struct{}
}

type healthHandler struct {
	svc ReadinessSource
}

func NewHealthHandler(svc ReadinessSource) grpchealth.HealthServer {
	return &healthHandler{svc: svc}
}

func (h *healthHandler) Check(
	_ context.Context,
	_ *grpchealth.HealthCheckRequest,
) (*grpchealth.HealthCheckResponse, error) {
	status := h.status()
	if status != grpchealth.HealthCheckResponse_SERVING {
		log.Debug("health check: task mirror not loaded or stale")
	}
	return &grpchealth.HealthCheckResponse{Status: status}, nil
}

// Watch streams the serving status, sending an update only when it changes.
func (h *healthHandler) Watch(
	_ *grpchealth.HealthCheckRequest,
	stream grpchealth.Health_WatchServer,
) error {
	if h.svc == nil {
		return stream.Send(&grpchealth.HealthCheckResponse{
			Status: grpchealth.HealthCheckResponse_NOT_SERVING,
		})
	}

	ctx := stream.Context()
	updates := h.svc.SubscribeMirror(ctx)

	last := h.status()
	if err := stream.Send(&grpchealth.HealthCheckResponse{Status: last}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			status := h.status()
			if status == last {
				continue
			}
			last = status
			if err := stream.Send(&grpchealth.HealthCheckResponse{Status: status}); err != nil {
				return err
			}
		}
	}
}

func (h *healthHandler) status() grpchealth.HealthCheckResponse_ServingStatus {
	if h.svc == nil || !h.svc.Ready() {
		return grpchealth.HealthCheckResponse_NOT_SERVING
	}
	return grpchealth.HealthCheckResponse_SERVING
}
