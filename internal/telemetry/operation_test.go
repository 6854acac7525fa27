package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestStartAndRunStepSuccess(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := Start(context.Background(), tracer, "bootstrap", Plan{Steps: []PlannedStep{
		{ID: "liveness", Title: "waiting for database"},
		{ID: "schema", Title: "waiting for schema"},
	}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err = op.RunStep(op.Context(), "liveness", func(ctx context.Context) error {
		Annotate(ctx, attribute.Int("attempts", 3))
		return nil
	})
	if err != nil {
		t.Fatalf("RunStep() error = %v", err)
	}
	op.End(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended span count = %d, want 2", len(spans))
	}

	root := findSpanByName(spans, "bootstrap")
	if root == nil {
		t.Fatal("missing root span")
	}
	if len(root.Events()) == 0 || root.Events()[0].Name != PlanEventName {
		t.Fatalf("root events = %v, want plan event", root.Events())
	}

	child := findSpanByName(spans, "liveness")
	if child == nil {
		t.Fatal("missing step span")
	}
	if child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatalf("step parent span id = %s, want %s", child.Parent().SpanID(), root.SpanContext().SpanID())
	}
	if got := getAttr(child.Attributes(), StepTitleKey); got != "waiting for database" {
		t.Fatalf("step title = %q, want %q", got, "waiting for database")
	}
	if got := getAttr(child.Attributes(), "attempts"); got != "3" {
		t.Fatalf("attempts attribute = %q, want 3", got)
	}
}

func TestRunStepFailureSetsErrorStatus(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := Start(context.Background(), tracer, "bootstrap", Plan{Steps: []PlannedStep{{ID: "schema", Title: "schema"}}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	boom := errors.New("boom")
	err = op.RunStep(op.Context(), "schema", func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("RunStep() error = %v, want boom", err)
	}
	op.End(err)

	child := findSpanByName(recorder.Ended(), "schema")
	if child == nil {
		t.Fatal("missing step span")
	}
	if child.Status().Code != codes.Error {
		t.Fatalf("step status = %v, want error", child.Status().Code)
	}
}

func TestNilOperationRunsStepsUntraced(t *testing.T) {
	t.Parallel()

	var op *Operation
	ran := false
	if err := op.RunStep(context.Background(), "x", func(context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("RunStep() error = %v", err)
	}
	if !ran {
		t.Fatal("step did not run")
	}
	op.End(nil)
}

func TestStartRejectsDuplicateStepIDs(t *testing.T) {
	t.Parallel()

	tracer, _ := newTestTracer()
	_, err := Start(context.Background(), tracer, "op", Plan{Steps: []PlannedStep{{ID: "a"}, {ID: "a"}}})
	if err == nil {
		t.Fatal("Start() error = nil, want duplicate id error")
	}
}

func newTestTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return provider.Tracer("test"), recorder
}

func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func getAttr(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.Emit()
		}
	}
	return ""
}
