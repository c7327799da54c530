// Package ctxkeys 集中定义跨包传递的 context 键，避免各包自建键类型互相冲突。
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sessionIDKey contextKey = "session_id"
	runIDKey     contextKey = "run_id"
)

func with(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func get(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, requestIDKey, id)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) { return get(ctx, requestIDKey) }

// WithSessionID 设置远程浏览器会话 ID
func WithSessionID(ctx context.Context, id string) context.Context {
	return with(ctx, sessionIDKey, id)
}

// SessionID 获取远程浏览器会话 ID
func SessionID(ctx context.Context) (string, bool) { return get(ctx, sessionIDKey) }

// WithRunID 设置无人值守运行 ID
func WithRunID(ctx context.Context, id string) context.Context {
	return with(ctx, runIDKey, id)
}

// RunID 获取无人值守运行 ID
func RunID(ctx context.Context) (string, bool) { return get(ctx, runIDKey) }

// Fields 把 ctx 中已设置的 ID 转成日志字段
func Fields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	for _, key := range []contextKey{requestIDKey, sessionIDKey, runIDKey} {
		if v, ok := get(ctx, key); ok {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	return fields
}
