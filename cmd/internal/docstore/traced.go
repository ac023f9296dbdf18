package docstore

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "glowlogy/docstore"

// Traced wraps s so every call records a client span on the global tracer
// provider. With no provider installed the spans are no-ops.
func Traced(s Store) Store {
	if s == nil {
		return nil
	}
	return &traced{next: s, tracer: otel.Tracer(tracerName)}
}

type traced struct {
	next   Store
	tracer trace.Tracer
}

func (t *traced) start(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "docstore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("docstore.collection", collection)),
	)
}

func end(span trace.Span, err error) {
	// NotFound and Conflict are outcomes, not failures.
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if err != nil {
		span.SetAttributes(attribute.String("docstore.outcome", err.Error()))
	}
	span.End()
}

func (t *traced) Insert(ctx context.Context, collection string, f Fields) (Document, error) {
	ctx, span := t.start(ctx, "insert", collection)
	d, err := t.next.Insert(ctx, collection, f)
	end(span, err)
	return d, err
}

func (t *traced) InsertUnless(ctx context.Context, collection string, f Fields, guard []Filter) (Document, error) {
	ctx, span := t.start(ctx, "insert_unless", collection)
	span.SetAttributes(attribute.Int("docstore.guard_filters", len(guard)))
	d, err := t.next.InsertUnless(ctx, collection, f, guard)
	end(span, err)
	return d, err
}

func (t *traced) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	ctx, span := t.start(ctx, "query", collection)
	docs, err := t.next.Query(ctx, collection, q)
	span.SetAttributes(attribute.Int("docstore.results", len(docs)))
	end(span, err)
	return docs, err
}

func (t *traced) Get(ctx context.Context, collection, id string) (Document, error) {
	ctx, span := t.start(ctx, "get", collection)
	d, err := t.next.Get(ctx, collection, id)
	end(span, err)
	return d, err
}

func (t *traced) GetMany(ctx context.Context, collection string, ids []string) ([]Document, error) {
	ctx, span := t.start(ctx, "get_many", collection)
	span.SetAttributes(attribute.Int("docstore.ids", len(ids)))
	docs, err := t.next.GetMany(ctx, collection, ids)
	end(span, err)
	return docs, err
}

func (t *traced) Update(ctx context.Context, collection, id string, f Fields) error {
	ctx, span := t.start(ctx, "update", collection)
	err := t.next.Update(ctx, collection, id, f)
	end(span, err)
	return err
}

func (t *traced) UpdateIf(ctx context.Context, collection, id string, expect []Filter, f Fields) error {
	ctx, span := t.start(ctx, "update_if", collection)
	err := t.next.UpdateIf(ctx, collection, id, expect, f)
	end(span, err)
	return err
}

func (t *traced) Close() error { return t.next.Close() }
