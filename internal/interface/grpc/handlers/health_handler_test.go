package handlers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/interface/grpc/handlers"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeReadiness struct {
	mu      sync.Mutex
	ready   bool
	updates chan struct{}
}

func (f *fakeReadiness) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeReadiness) set(ready bool) {
	f.mu.Lock()
	f.ready = ready
	f.mu.Unlock()
	f.updates <- struct{}{}
}

func (f *fakeReadiness) SubscribeMirror(context.Context) <-chan struct{} {
	return f.updates
}

type fakeWatchStream struct {
	grpc.ServerStream
	ctx  context.Context
	sent chan grpchealth.HealthCheckResponse_ServingStatus
}

func (s *fakeWatchStream) Context() context.Context { return s.ctx }

func (s *fakeWatchStream) Send(resp *grpchealth.HealthCheckResponse) error {
	s.sent <- resp.GetStatus()
	return nil
}

func TestHealthCheck(t *testing.T) {
	t.Run("no service", func(t *testing.T) {
		handler := handlers.NewHealthHandler(nil)

		resp, err := handler.Check(context.Background(), &grpchealth.HealthCheckRequest{})
		require.NoError(t, err)
		require.Equal(t, grpchealth.HealthCheckResponse_NOT_SERVING, resp.Status)
	})

	t.Run("follows readiness", func(t *testing.T) {
		svc := &fakeReadiness{updates: make(chan struct{}, 1)}
		handler := handlers.NewHealthHandler(svc)

		resp, err := handler.Check(context.Background(), &grpchealth.HealthCheckRequest{})
		require.NoError(t, err)
		require.Equal(t, grpchealth.HealthCheckResponse_NOT_SERVING, resp.Status)

		svc.ready = true
		resp, err = handler.Check(context.Background(), &grpchealth.HealthCheckRequest{})
		require.NoError(t, err)
		require.Equal(t, grpchealth.HealthCheckResponse_SERVING, resp.Status)
	})
}

func TestHealthWatch(t *testing.T) {
	svc := &fakeReadiness{updates: make(chan struct{})}
	handler := handlers.NewHealthHandler(svc)

	ctx, cancel := context.WithCancel(context.Background())
	stream := &fakeWatchStream{
		ctx:  ctx,
		sent: make(chan grpchealth.HealthCheckResponse_ServingStatus, 4),
	}

	done := make(chan error, 1)
	go func() {
		done <- handler.Watch(&grpchealth.HealthCheckRequest{}, stream)
	}()

	require.Equal(t, grpchealth.HealthCheckResponse_NOT_SERVING, <-stream.sent)

	// An update that leaves the status unchanged is not forwarded.
	svc.set(false)
	svc.set(true)
	require.Equal(t, grpchealth.HealthCheckResponse_SERVING, <-stream.sent)

	svc.set(false)
	require.Equal(t, grpchealth.HealthCheckResponse_NOT_SERVING, <-stream.sent)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
	require.Empty(t, stream.sent)
}
