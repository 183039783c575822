package interceptors

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Health probes are polled often, keep them out of the debug log.
const healthPrefix = "/grpc.health.v1.Health/"

func unaryLogger(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logCall(info.FullMethod, start, err)
	return resp, err
}

func streamLogger(
	srv interface{},
	stream grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	start := time.Now()
	err := handler(srv, stream)
	logCall(info.FullMethod, start, err)
	return err
}

func logCall(method string, start time.Time, err error) {
	entry := log.WithFields(log.Fields{
		"method":  method,
		"latency": time.Since(start).String(),
	})
	if err != nil {
		entry.WithField("code", status.Code(err).String()).WithError(err).Warn("grpc call failed")
		return
	}
	if strings.HasPrefix(method, healthPrefix) {
		entry.Trace("grpc call served")
		return
	}
	entry.Debug("grpc call served")
}
