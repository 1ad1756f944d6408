package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// WithRequestID stores the request id for loggers derived with FromContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// FromContext returns base annotated with whatever request scope ctx carries.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	var fields []interface{}
	if id := RequestID(ctx); id != "" {
		fields = append(fields, "request_id", id)
	}
	if id, ok := ctx.Value(userIDKey).(int64); ok {
		fields = append(fields, "user_id", id)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
