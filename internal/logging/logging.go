// Package logging configures slog for the gateway and carries request-scoped
// loggers through context.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/logging"
)

type ctxKey struct{}

// TraceKey is the context key read for the Cloud Trace id.
type TraceKey struct{}

// ErrorField is the attribute name used for error values.
const ErrorField = "error"

// CloudHandler writes records as single-line JSON in the Google Cloud structured
// logging format.
type CloudHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewCloudHandler creates a handler writing to out.
func NewCloudHandler(out io.Writer, level slog.Leveler) *CloudHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &CloudHandler{mu: &sync.Mutex{}, out: out, level: level}
}

// Enabled reports whether level passes the configured minimum.
func (h *CloudHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle encodes the record.
func (h *CloudHandler) Handle(ctx context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := map[string]any{
		"severity": severity(r.Level),
		"time":     ts.Format(time.RFC3339Nano),
		"message":  r.Message,
	}
	if traceID := traceFromContext(ctx); traceID != "" {
		entry["logging.googleapis.com/trace"] = traceID
	}

	for _, attr := range h.attrs {
		entry[attr.Key] = attrValue(attr.Value)
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry[h.key(attr.Key)] = attrValue(attr.Value)
		return true
	})

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(data)
	return err
}

// WithAttrs returns a handler with additional attributes.
func (h *CloudHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &clone
}

// WithGroup prefixes subsequent keys with name.
func (h *CloudHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.key(name)
	return &clone
}

func (h *CloudHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

func severity(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// WithTrace stores the trace id from an X-Cloud-Trace-Context header value
// ("TRACE_ID/SPAN_ID;o=1").
func WithTrace(ctx context.Context, header string) context.Context {
	traceID, _, _ := strings.Cut(header, "/")
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceKey{}, traceID)
}

func traceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(TraceKey{}).(string)
	return traceID
}

// ParseLevel converts a LOG_LEVEL value, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the process logger. format is "json" (cloud structured) or "text".
func New(level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(NewCloudHandler(os.Stdout, lvl))
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// NewCloudStandardLogger connects to Cloud Logging and returns a *log.Logger
// that writes entries under logName, plus a close func flushing the client.
func NewCloudStandardLogger(ctx context.Context, projectID, logName string) (*log.Logger, func() error, error) {
	client, err := logging.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	return client.Logger(logName).StandardLogger(logging.Info), client.Close, nil
}
