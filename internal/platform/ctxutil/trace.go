package ctxutil

import "context"

type traceDataKey struct{}
type callerKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

// CallerInfo identifies the authenticated API caller for the request.
type CallerInfo struct {
	CallerID string
	KeyID    string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

func WithCaller(ctx context.Context, c *CallerInfo) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func GetCaller(ctx context.Context) *CallerInfo {
	val := ctx.Value(callerKey{})
	if c, ok := val.(*CallerInfo); ok {
		return c
	}
	return nil
}
