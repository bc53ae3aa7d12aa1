package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	if got := FromContext(ctx); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
	if got := FromContext(context.Background()); got != "" {
		t.Errorf("expected empty trace id, got %q", got)
	}
	if len(GenerateTraceID()) != 32 {
		t.Error("expected 32 hex chars")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		seen = FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	t.Run("propagates incoming header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Trace-ID", "incoming")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if seen != "incoming" {
			t.Errorf("expected incoming, got %q", seen)
		}
		if w.Header().Get("X-Trace-ID") != "incoming" {
			t.Errorf("expected response header to echo trace id")
		}
	})

	t.Run("generates when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if seen == "" {
			t.Error("expected generated trace id")
		}
	})
}
