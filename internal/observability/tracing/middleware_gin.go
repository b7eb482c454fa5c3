package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/facesaju/internal/observability/context"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware instruments inbound HTTP requests. The server span comes
// from otelgin; Annotate runs inside it.
func GinMiddleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/health"
		})),
		Annotate(),
	}
}

// Annotate copies request correlation onto the active span and marks 5xx
// responses as errors.
func Annotate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)

		requestID := obscontext.RequestIDFromContext(ctx)
		if requestID == "" {
			requestID = strings.TrimSpace(c.GetHeader("X-Request-Id"))
		}
		if requestID != "" {
			member, err := baggage.NewMember("request_id", requestID)
			if err == nil {
				bag, bagErr := baggage.New(member)
				if bagErr == nil {
					c.Request = c.Request.WithContext(baggage.ContextWithBaggage(ctx, bag))
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		if line := c.Param("line"); line != "" {
			span.SetAttributes(attribute.String("product_line", line))
		}

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}
