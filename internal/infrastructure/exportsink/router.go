package exportsink

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// Router sends each export to the sink registered for its destination and
// everything else to the fallback sink.
type Router struct {
	routes   map[string]ports.ExportSink
	fallback ports.ExportSink
}

func NewRouter(fallback ports.ExportSink) *Router {
	return &Router{routes: map[string]ports.ExportSink{}, fallback: fallback}
}

func (r *Router) Handle(destination string, sink ports.ExportSink) *Router {
	r.routes[strings.ToLower(strings.TrimSpace(destination))] = sink
	return r
}

func (r *Router) Send(ctx context.Context, destination string, payload domain.ExportPayload) error {
	if sink, ok := r.routes[strings.ToLower(strings.TrimSpace(destination))]; ok {
		return sink.Send(ctx, destination, payload)
	}
	if r.fallback == nil {
		return domain.WrapError(domain.ErrInvalidInput, "route export", fmt.Errorf("no sink for destination %q", destination))
	}
	return r.fallback.Send(ctx, destination, payload)
}
