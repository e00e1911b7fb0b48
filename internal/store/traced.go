package store

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/tracing"
)

// Traced wraps a Driver so every call runs inside a span named
// store.<collection>.<op>. Not-found is not recorded as an error.
type Traced[P any] struct {
	next       Driver[P]
	tracer     trace.Tracer
	backend    string
	collection string
}

var _ Driver[domain.PlayerState] = (*Traced[domain.PlayerState])(nil)

// NewTraced returns next unchanged when tracer is nil.
func NewTraced[P any](next Driver[P], tracer trace.Tracer, backend, collection string) Driver[P] {
	if tracer == nil {
		return next
	}
	return &Traced[P]{next: next, tracer: tracer, backend: backend, collection: collection}
}

func (t *Traced[P]) start(ctx context.Context, op, id string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, tracing.SpanPrefixStore+t.collection+"."+op,
		trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String(tracing.AttrBackend, t.backend),
		attribute.String(tracing.AttrCollection, t.collection),
	)
	if id != "" {
		span.SetAttributes(attribute.String(tracing.AttrRecordID, id))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (t *Traced[P]) Start(ctx context.Context) error {
	ctx, span := t.start(ctx, "start", "")
	err := t.next.Start(ctx)
	finish(span, err)
	return err
}

func (t *Traced[P]) Find(ctx context.Context, id string) (*domain.Aggregate[P], error) {
	ctx, span := t.start(ctx, "find", id)
	agg, err := t.next.Find(ctx, id)
	span.SetAttributes(attribute.Bool(tracing.AttrFound, err == nil))
	finish(span, err)
	return agg, err
}

func (t *Traced[P]) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := t.start(ctx, "exists", id)
	ok, err := t.next.Exists(ctx, id)
	span.SetAttributes(attribute.Bool(tracing.AttrFound, ok))
	finish(span, err)
	return ok, err
}

func (t *Traced[P]) Save(ctx context.Context, aggregate *domain.Aggregate[P]) error {
	ctx, span := t.start(ctx, "save", aggregate.ID())
	err := t.next.Save(ctx, aggregate)
	finish(span, err)
	return err
}

func (t *Traced[P]) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := t.start(ctx, "delete", id)
	removed, err := t.next.Delete(ctx, id)
	span.SetAttributes(attribute.Bool(tracing.AttrFound, removed))
	finish(span, err)
	return removed, err
}
