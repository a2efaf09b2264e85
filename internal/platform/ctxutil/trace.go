package ctxutil

import "context"

type traceKey struct{}

// Trace identifies one inbound request across logs and spans.
type Trace struct {
	TraceID   string
	RequestID string
}

func WithTrace(ctx context.Context, t Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

func TraceFrom(ctx context.Context) (Trace, bool) {
	t, ok := ctx.Value(traceKey{}).(Trace)
	return t, ok
}

// LogFields returns the key/value pairs every request-scoped log line carries.
func LogFields(ctx context.Context) []interface{} {
	var kv []interface{}
	if t, ok := TraceFrom(ctx); ok {
		if t.TraceID != "" {
			kv = append(kv, "trace_id", t.TraceID)
		}
		if t.RequestID != "" {
			kv = append(kv, "request_id", t.RequestID)
		}
	}
	if rd := GetRequestData(ctx); rd != nil {
		kv = append(kv, "user_id", rd.UserID.String(), "organization_id", rd.OrganizationID.String())
	}
	return kv
}
