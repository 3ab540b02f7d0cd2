package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type correlationIDKey struct{}

type workflowIDKey struct{}

func NewLogger(service string, level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	if service = strings.TrimSpace(service); service != "" {
		cfg.InitialFields = map[string]any{"service": service}
	}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

// contextFields lists the ids carried in a context and the log field each
// one is written under.
var contextFields = []struct {
	key  any
	name string
}{
	{key: correlationIDKey{}, name: "correlationId"},
	{key: workflowIDKey{}, name: "workflowId"},
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withID(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	return idFromContext(ctx, correlationIDKey{})
}

func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return withID(ctx, workflowIDKey{}, workflowID)
}

func WorkflowIDFromContext(ctx context.Context) (string, bool) {
	return idFromContext(ctx, workflowIDKey{})
}

func withID(ctx context.Context, key any, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

// idFromContext treats an empty id as missing.
func idFromContext(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(key).(string)
	return id, ok && id != ""
}

// WithContextLogger attaches the correlation and workflow ids carried by ctx.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	var fields []zap.Field
	for _, f := range contextFields {
		if id, ok := idFromContext(ctx, f.key); ok {
			fields = append(fields, zap.String(f.name, id))
		}
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
