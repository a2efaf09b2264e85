package logger

import (
	"context"

	"github.com/primestride/atlas-backend/internal/platform/ctxutil"
)

// Ctx tags the logger with the trace and request ids carried by ctx, if any.
func (l *Logger) Ctx(ctx context.Context) *Logger {
	t, ok := ctxutil.TraceFrom(ctx)
	if !ok || (t.TraceID == "" && t.RequestID == "") {
		return l
	}
	return l.With("trace_id", t.TraceID, "request_id", t.RequestID)
}
