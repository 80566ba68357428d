package clog

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
)

// NewSlogConnectInterceptor logs one line per unary call. The only connect
// handler served here is gRPC health, so streaming calls pass through.
func NewSlogConnectInterceptor() connect.Interceptor {
	return &slogConnectInterceptor{}
}

type slogConnectInterceptor struct{}

func (s *slogConnectInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		startTime := time.Now()
		ctx = ContextWithSlog(ctx)
		AddAttributes(ctx, map[string]any{
			"method":    req.HTTPMethod(),
			"procedure": req.Spec().Procedure,
		})

		resp, err := next(ctx, req)

		codeStr := "ok"
		level := LevelDebug
		msg := "Finished"
		if err != nil {
			var cerr *connect.Error
			if !errors.As(err, &cerr) {
				cerr = connect.NewError(connect.CodeUnknown, err)
			}
			codeStr = cerr.Code().String()
			level = ConnectCodeToLevel(cerr.Code())
			msg = cerr.Message()
		}
		AddAttributes(ctx, map[string]any{
			"code":     codeStr,
			"duration": time.Since(startTime),
		})
		log(ctx, level, msg)
		return resp, err
	}
}

func (s *slogConnectInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (s *slogConnectInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
