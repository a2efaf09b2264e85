package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/primestride/atlas-backend/internal/platform/ctxutil"
)

func TestAttachTraceContextKeepsCleanRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen ctxutil.Trace
	r.GET("/x", func(c *gin.Context) {
		seen, _ = ctxutil.TraceFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen.RequestID != "req-123" || w.Header().Get(headerRequestID) != "req-123" {
		t.Fatalf("request id = %q header %q", seen.RequestID, w.Header().Get(headerRequestID))
	}
	// no span is active, so the trace id falls back to the request id
	if seen.TraceID != "req-123" || w.Header().Get(headerTraceID) != "req-123" {
		t.Fatalf("trace id = %q", seen.TraceID)
	}
}

func TestAttachTraceContextReplacesBadRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "evil\tid")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	got := w.Header().Get(headerRequestID)
	if got == "" || strings.Contains(got, "evil") {
		t.Fatalf("request id = %q, want a generated one", got)
	}
}

func TestCleanRequestID(t *testing.T) {
	cases := map[string]string{
		"  abc-1 ":               "abc-1",
		"":                       "",
		"has space":              "",
		"café":                   "",
		strings.Repeat("a", 129): "",
		strings.Repeat("b", 128): strings.Repeat("b", 128),
	}
	for in, want := range cases {
		if got := cleanRequestID(in); got != want {
			t.Fatalf("cleanRequestID(%q) = %q, want %q", in, got, want)
		}
	}
}
