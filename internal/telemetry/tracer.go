package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for dispatch spans.
const (
	AttrRequestID = "rpc.request_id"
	AttrProcedure = "nfs.procedure"
	AttrHandle    = "fha.handle"
	AttrOp        = "fha.op"
	AttrOffset    = "fha.offset"
	AttrWorker    = "fha.worker"
	AttrReceiver  = "fha.receiver"
	AttrRule      = "fha.rule"
	AttrForwarded = "fha.forwarded"
)

// Span names.
const (
	SpanCall     = "svcpool.call"
	SpanAssign   = "fha.assign"
	SpanDispatch = "svcpool.dispatch"
)

func RequestID(id string) attribute.KeyValue      { return attribute.String(AttrRequestID, id) }
func Procedure(name string) attribute.KeyValue    { return attribute.String(AttrProcedure, name) }
func Handle(key string) attribute.KeyValue        { return attribute.String(AttrHandle, key) }
func Op(kind string) attribute.KeyValue           { return attribute.String(AttrOp, kind) }
func Offset(off uint64) attribute.KeyValue        { return attribute.Int64(AttrOffset, int64(off)) }
func Worker(id int) attribute.KeyValue            { return attribute.Int(AttrWorker, id) }
func Receiver(id int) attribute.KeyValue          { return attribute.Int(AttrReceiver, id) }
func Rule(name string) attribute.KeyValue         { return attribute.String(AttrRule, name) }
func Forwarded(forwarded bool) attribute.KeyValue { return attribute.Bool(AttrForwarded, forwarded) }

// StartCallSpan starts the root span of one dispatched call.
func StartCallSpan(ctx context.Context, requestID, procedure string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{RequestID(requestID), Procedure(procedure)}, attrs...)
	return StartSpan(ctx, SpanCall,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(all...))
}
