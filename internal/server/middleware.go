package server

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ldi/taskboard/internal/server"

// requestObserver opens a span per request and logs one entry when the
// response has been written.
func requestObserver(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, span := otel.Tracer(tracerName).Start(req.Context(), "http.request",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", c.Path()),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			m := newRequestMetrics(logger, c.Path(), req.Method)
			err := next(c)
			if err != nil {
				// Commit the mapped error response so the status is known.
				c.Error(err)
			}

			status := c.Response().Status
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
				if err != nil {
					span.RecordError(err)
				}
			}

			m.SetRequestID(c.Response().Header().Get(echo.HeaderXRequestID))
			m.Log(status, err)
			return nil
		}
	}
}

type requestMetrics struct {
	logger    *log.Logger
	start     time.Time
	route     string
	method    string
	requestID string
}

func newRequestMetrics(logger *log.Logger, route, method string) *requestMetrics {
	return &requestMetrics{
		logger: logger,
		start:  time.Now(),
		route:  route,
		method: method,
	}
}

func (m *requestMetrics) SetRequestID(id string) {
	m.requestID = id
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    m.route,
		"method":   m.method,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.requestID != "" {
		fields["request_id"] = m.requestID
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	entry := m.logger.WithFields(fields)
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("http.request")
	case status >= http.StatusBadRequest:
		entry.Warn("http.request")
	default:
		entry.Info("http.request")
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// sonicSerializer writes responses with sonic. Request bodies go through
// decodeBody so PATCH fields keep their absent/null distinction.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	return decodeBody(c.Request().Body, i)
}
