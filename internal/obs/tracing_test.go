package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := chi.NewRouter()
	r.Use(TracingMiddleware)
	r.Post("/api/v1/cart/items/{productID}/increment", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/cart/items/p1/increment", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "POST /api/v1/cart/items/{productID}/increment", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestSamplerFor(t *testing.T) {
	require.Contains(t, samplerFor(0).Description(), "AlwaysOnSampler")
	require.Contains(t, samplerFor(1.5).Description(), "AlwaysOnSampler")
	require.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}
