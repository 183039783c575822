package interceptors

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func unaryRecoveryInterceptor(sentryEnabled bool) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				reportPanic(sentryEnabled, r, info.FullMethod, "grpc_unary", map[string]interface{}{
					"method": info.FullMethod,
					"data":   req,
				})
				err = status.Errorf(codes.Internal, "Internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// streamRecoveryInterceptor recovers from panics in stream handlers and reports them to Sentry
func streamRecoveryInterceptor(sentryEnabled bool) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				reportPanic(sentryEnabled, r, info.FullMethod, "grpc_stream", map[string]interface{}{
					"method":   info.FullMethod,
					"isClient": info.IsClientStream,
					"isServer": info.IsServerStream,
				})
				err = status.Errorf(codes.Internal, "Internal server error")
			}
		}()

		return handler(srv, ss)
	}
}

func reportPanic(
	sentryEnabled bool, r interface{}, method, kind string, details map[string]interface{},
) {
	stackTrace := string(debug.Stack())
	fields := log.Fields{
		"method":      method,
		"panic":       r,
		"stack_trace": stackTrace,
	}

	if sentryEnabled {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("method", method)
			scope.SetTag("type", kind)
			scope.SetContext("call", details)
			scope.SetExtra("stack_trace", stackTrace)
			sentry.CaptureException(fmt.Errorf("panic: %v", r))
		})
		// Already reported, the logrus hook must not send it twice.
		fields["skip_sentry"] = true
	}

	log.WithFields(fields).Errorf("Panic recovered in %s interceptor", kind)
}
