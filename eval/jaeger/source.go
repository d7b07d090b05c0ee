package jaeger

import "context"

// TraceSource returns the traces matching a query.
type TraceSource interface {
	Traces(ctx context.Context, q TraceQuery) ([]Trace, error)
}

// ServiceSource lists the services known to the trace backend.
type ServiceSource interface {
	Services(ctx context.Context) ([]string, error)
}

// Source is a full trace backend.
type Source interface {
	TraceSource
	ServiceSource
}

var (
	_ Source = (*Client)(nil)
	_ Source = FileSource{}
)
