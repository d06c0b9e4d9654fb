package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/FACorreiaa/parts-catalog-ingest"

// Tracer returns the tracer for ingestion spans. Without a configured
// provider the global no-op provider is used.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
