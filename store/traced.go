package store

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedStore wraps a Store with OpenTelemetry tracing. Every operation
// gets a span carrying the write/read shape as attributes. Safe for
// concurrent use when the inner store is.
type TracedStore struct {
	inner  Store
	tracer trace.Tracer
}

// NewTracedStore decorates a store with tracing.
func NewTracedStore(inner Store, tracer trace.Tracer) *TracedStore {
	return &TracedStore{inner: inner, tracer: tracer}
}

// ApplyWrite traces the write round trip.
func (t *TracedStore) ApplyWrite(ctx context.Context, req *WriteRequest) (*WriteResult, error) {
	ctx, span := t.tracer.Start(ctx, "graphom.store.apply_write")
	defer span.End()

	span.SetAttributes(
		attribute.String("graphom.request_id", req.ID),
		attribute.Int("graphom.upserts", len(req.Upserts)),
		attribute.Int("graphom.rel_additions", len(req.RelAdds)),
		attribute.Int("graphom.rel_removals", len(req.RelRemovals)),
		attribute.Int("graphom.deletes", len(req.Deletes)),
	)

	result, err := t.inner.ApplyWrite(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("graphom.nodes_created", result.Summary.NodesCreated),
		attribute.Int("graphom.relationships_created", result.Summary.RelationshipsCreated),
	)
	return result, nil
}

// FetchSubgraph traces the read round trip.
func (t *TracedStore) FetchSubgraph(ctx context.Context, label, identity string, depth int) (*Subgraph, error) {
	ctx, span := t.tracer.Start(ctx, "graphom.store.fetch_subgraph")
	defer span.End()

	span.SetAttributes(
		attribute.String("graphom.label", label),
		attribute.Int("graphom.depth", depth),
	)

	sg, err := t.inner.FetchSubgraph(ctx, label, identity, depth)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("graphom.nodes_fetched", len(sg.Nodes)),
		attribute.Int("graphom.relationships_fetched", len(sg.Rels)),
	)
	return sg, nil
}

// Run traces an arbitrary read query.
func (t *TracedStore) Run(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	ctx, span := t.tracer.Start(ctx, "graphom.store.run")
	defer span.End()

	result, err := t.inner.Run(ctx, cypher, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("graphom.rows", len(result.Records)))
	return result, nil
}

// Ping traces the connectivity check.
func (t *TracedStore) Ping(ctx context.Context) error {
	ctx, span := t.tracer.Start(ctx, "graphom.store.ping")
	defer span.End()

	if err := t.inner.Ping(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Close closes the inner store.
func (t *TracedStore) Close(ctx context.Context) error {
	return t.inner.Close(ctx)
}

var _ Store = (*TracedStore)(nil)
