package grpc_interface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/application"
	"github.com/ArkLabsHQ/fastertasks/internal/interface/grpc/handlers"
	"github.com/ArkLabsHQ/fastertasks/internal/interface/grpc/interceptors"
	"github.com/ArkLabsHQ/fastertasks/internal/interface/web"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

type service struct {
	cfg        Config
	appSvc     *application.Service
	httpServer *http.Server
	grpcServer *grpc.Server
	healthConn *grpc.ClientConn
	cancel     context.CancelFunc
}

func NewService(
	cfg Config, appSvc *application.Service, sentryEnabled bool,
) (*service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}

	grpcServer := grpc.NewServer(
		interceptors.UnaryInterceptor(sentryEnabled),
		interceptors.StreamInterceptor(sentryEnabled),
		grpc.Creds(insecure.NewCredentials()),
	)

	healthHandler := handlers.NewHealthHandler(appSvc)
	grpchealth.RegisterHealthServer(grpcServer, healthHandler)

	// /healthz goes through the grpc server so both surfaces report the same.
	conn, err := grpc.NewClient(
		cfg.gatewayAddress(), grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	healthzClient := grpchealth.NewHealthClient(conn)

	apiHandler := web.NewService(
		appSvc, appSvc.Network(), appSvc.BuildInfo.Version, sentryEnabled,
	)

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthzClient.Check(r.Context(), &grpchealth.HealthCheckRequest{})
		if err != nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}

		switch resp.Status {
		case grpchealth.HealthCheckResponse_SERVING:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		case grpchealth.HealthCheckResponse_NOT_SERVING:
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		default:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	})

	// Request contexts derive from baseCtx so Stop can end open event streams.
	baseCtx, cancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Addr:              cfg.httpAddress(),
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	return &service{
		cfg:        cfg,
		appSvc:     appSvc,
		httpServer: httpServer,
		grpcServer: grpcServer,
		healthConn: conn,
		cancel:     cancel,
	}, nil
}

func (s *service) Start() error {
	if err := s.appSvc.Start(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.cfg.grpcAddress())
	if err != nil {
		return err
	}
	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			log.WithError(err).Error("grpc server stopped")
		}
	}()
	log.Infof("started GRPC server at %s", s.cfg.grpcAddress())

	go func() {
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
		}
	}()
	log.Infof("started HTTP server at %s", s.cfg.httpAddress())

	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to shutdown HTTP server")
	}
	log.Info("stopped HTTP server")

	s.grpcServer.GracefulStop()
	_ = s.healthConn.Close()
	log.Info("stopped GRPC server")

	s.appSvc.Stop()
}
