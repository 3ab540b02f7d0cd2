package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/community-notify/internal/handler"
	"github.com/kursadbilgin/community-notify/internal/observability"
)

func TestNewHTTPServerRoutes(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics()
	metrics.IncWorkflowTransition("pending")

	server := NewHTTPServer("test", nil, metrics, handler.ReadinessCheck{
		Name:  "postgres",
		Check: func(ctx context.Context) error { return errors.New("down") },
	})
	server.Get("/boom", func(c *fiber.Ctx) error {
		panic("boom")
	})

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/livez", wantStatus: http.StatusOK, wantBody: "ok"},
		{path: "/readyz", wantStatus: http.StatusServiceUnavailable, wantBody: "postgres"},
		{path: "/metrics", wantStatus: http.StatusOK, wantBody: "pending"},
		{path: "/boom", wantStatus: http.StatusInternalServerError, wantBody: "internal server error"},
		{path: "/missing", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		resp, err := server.Test(httptest.NewRequest(http.MethodGet, tt.path, nil), -1)
		if err != nil {
			t.Fatalf("%s: Test() error = %v", tt.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != tt.wantStatus {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.path, resp.StatusCode, tt.wantStatus, body)
		}
		if tt.wantBody != "" && !strings.Contains(string(body), tt.wantBody) {
			t.Fatalf("%s: body %q does not contain %q", tt.path, body, tt.wantBody)
		}
		if resp.Header.Get(fiber.HeaderXRequestID) == "" {
			t.Fatalf("%s: missing request id header", tt.path)
		}
	}
}
