package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		level        string
		wantErr      bool
		debugEnabled bool
	}{
		{name: "debug", level: "debug", debugEnabled: true},
		{name: "info", level: "info"},
		{name: "upper case with spaces", level: " WARN "},
		{name: "empty defaults to info", level: ""},
		{name: "unknown level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger("community-notify-test", tt.level)
			if tt.wantErr {
				if err == nil || logger != nil {
					t.Fatalf("NewLogger(%q) = %v, %v, want error", tt.level, logger, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger(%q) error = %v", tt.level, err)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.debugEnabled {
				t.Fatalf("debug enabled = %v, want %v", got, tt.debugEnabled)
			}
		})
	}
}

func TestContextIDs(t *testing.T) {
	t.Parallel()

	ctx := WithWorkflowID(WithCorrelationID(context.Background(), "cid-1"), "wf-1")

	if got, ok := CorrelationIDFromContext(ctx); !ok || got != "cid-1" {
		t.Fatalf("CorrelationIDFromContext() = %q, %v", got, ok)
	}
	if got, ok := WorkflowIDFromContext(ctx); !ok || got != "wf-1" {
		t.Fatalf("WorkflowIDFromContext() = %q, %v", got, ok)
	}

	//nolint:staticcheck // nil context is accepted on purpose
	if _, ok := CorrelationIDFromContext(nil); ok {
		t.Fatal("nil context should carry no correlation id")
	}
	if _, ok := WorkflowIDFromContext(WithWorkflowID(context.Background(), "")); ok {
		t.Fatal("empty workflow id should be treated as missing")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ctx        context.Context
		wantFields map[string]string
	}{
		{name: "no ids", ctx: context.Background(), wantFields: map[string]string{}},
		{
			name:       "correlation only",
			ctx:        WithCorrelationID(context.Background(), "cid-9"),
			wantFields: map[string]string{"correlationId": "cid-9"},
		},
		{
			name:       "correlation and workflow",
			ctx:        WithWorkflowID(WithCorrelationID(context.Background(), "cid-1"), "wf-1"),
			wantFields: map[string]string{"correlationId": "cid-1", "workflowId": "wf-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, recorded := observer.New(zapcore.InfoLevel)
			WithContextLogger(zap.New(core), tt.ctx).Info("sending")

			fields := recorded.All()[0].ContextMap()
			if len(fields) != len(tt.wantFields) {
				t.Fatalf("fields = %v, want %v", fields, tt.wantFields)
			}
			for k, v := range tt.wantFields {
				if fields[k] != v {
					t.Fatalf("field %s = %v, want %s", k, fields[k], v)
				}
			}
		})
	}

	if WithContextLogger(nil, context.Background()) != nil {
		t.Fatal("nil logger should stay nil")
	}
}
