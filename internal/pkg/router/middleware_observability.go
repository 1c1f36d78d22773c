package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxLoggedBodyBytes = 32 << 10

// alwaysMasked are masked even when instrument.log_mask_fields omits them.
//
//nolint:gochecknoglobals // fixed list
var alwaysMasked = []string{"authorization", "code", "grant_token"}

var errHijackUnsupported = errors.New("router: hijack not supported")

// capture is a bounded copy of a body kept for logging.
type capture struct {
	buf       bytes.Buffer
	truncated bool
}

func (c *capture) keep(p []byte) {
	room := maxLoggedBodyBytes - c.buf.Len()
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return
	}
	if len(p) > room {
		p, c.truncated = p[:room], true
	}
	c.buf.Write(p)
}

// responseRecorder tracks what the handler wrote. It keeps the optional
// writer interfaces reachable so streaming handlers still work.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int
	body    capture
	err     error
}

func (w *responseRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.keep(p)
	n, err := w.ResponseWriter.Write(p)
	w.written += n
	return n, err
}

// SetError lets the error encoder attach the cause to the request span.
func (w *responseRecorder) SetError(err error) { w.err = err }

func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errHijackUnsupported
}

func (w *responseRecorder) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func matchedRoutePath(r *http.Request) string {
	if pattern := httprouter.ParamsFromContext(r.Context()).MatchedRoutePath(); pattern != "" {
		return pattern
	}
	return r.URL.Path
}

func newMasker(cfg config.Config) *instrument.Masker {
	fields := append([]string{}, alwaysMasked...)
	if cfg != nil {
		fields = append(fields, cfg.GetArray("instrument.log_mask_fields")...)
	}
	return instrument.NewMasker(fields...)
}

// peekRequestBody copies up to maxLoggedBodyBytes of the request body and
// puts the bytes back so the handler still reads the whole stream. Multipart
// bodies are never buffered.
func peekRequestBody(r *http.Request) *capture {
	c := &capture{}
	if r.Body == nil || r.Body == http.NoBody || isMultipart(r.Header.Get("Content-Type")) {
		return c
	}

	head, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes+1)) //nolint:errcheck // logging only
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), r.Body))
	c.keep(head)
	return c
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "multipart/")
}

// describeBody renders a captured body for the log line with masked fields.
func describeBody(contentType string, c *capture, m *instrument.Masker) any {
	if isMultipart(contentType) {
		return "<multipart body omitted>"
	}
	raw := c.buf.Bytes()
	if len(raw) == 0 {
		return nil
	}

	var out any
	switch {
	case !c.truncated && json.Valid(raw):
		masked, _ := m.JSON(raw)
		out = json.RawMessage(masked)
	case strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded"):
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			out = "<malformed form omitted>"
			break
		}
		form := make(map[string]any, len(values))
		for k, v := range values {
			form[k] = strings.Join(v, ",")
		}
		out = m.Value(form)
	case !utf8.Valid(raw):
		out = "<binary body omitted>"
	default:
		out = string(raw)
	}

	if c.truncated {
		return map[string]any{"body": out, "truncated": true}
	}
	return out
}

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newHTTPMetrics(meter metric.Meter) httpMetrics {
	var hm httpMetrics
	var err error

	hm.requests, err = meter.Int64Counter("http.server.requests", metric.WithDescription("Number of HTTP requests received"))
	if err != nil {
		slog.Error("failed to create http request counter", "error", err)
	}
	hm.duration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration in milliseconds"), metric.WithUnit("ms"))
	if err != nil {
		slog.Error("failed to create http duration histogram", "error", err)
	}

	return hm
}

func middlewareObservability(cfg config.Config, ins instrument.Instrumentation) Middleware {
	masker := newMasker(cfg)
	tracer := ins.Tracer("http.server")
	hm := newHTTPMetrics(ins.Meter("http.server"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := matchedRoutePath(r)
			start := time.Now()

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRouteKey.String(route),
				),
			)
			defer span.End()

			reqBody := peekRequestBody(r)
			slog.InfoContext(ctx, "request received",
				"method", r.Method,
				"path", route,
				"uri", r.RequestURI,
				"headers", masker.Headers(r.Header),
				"body", describeBody(r.Header.Get("Content-Type"), reqBody, masker),
			)

			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.statusCode()
			elapsed := time.Since(start)
			attrs := metric.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCodeKey.Int(status),
			)

			if rec.err != nil {
				span.RecordError(rec.err)
			}
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			span.SetAttributes(
				semconv.HTTPResponseStatusCodeKey.Int(status),
				semconv.NetworkProtocolVersionKey.String(r.Proto),
				semconv.ServerAddressKey.String(r.Host),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.Int("http.response_content_length", rec.written),
			)
			if hm.requests != nil {
				hm.requests.Add(ctx, 1, attrs)
			}
			if hm.duration != nil {
				hm.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
			}

			slog.InfoContext(ctx, "response sent",
				"method", r.Method,
				"path", route,
				"status", status,
				"bytes", rec.written,
				"latency_ms", elapsed.Milliseconds(),
				"body", describeBody(rec.Header().Get("Content-Type"), &rec.body, masker),
			)
		})
	}
}
