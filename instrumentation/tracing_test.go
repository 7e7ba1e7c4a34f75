package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecording(t *testing.T) (*Instrumentation, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{
		Enabled:         true,
		MetricsExporter: ExporterNone,
		SpanProcessors:  []sdktrace.SpanProcessor{recorder},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	return inst, recorder
}

func attrsOf(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestRecordError(t *testing.T) {
	inst, recorder := newRecording(t)

	_, span := inst.Tracer("server").Start(context.Background(), "test-span")
	RecordError(span, errors.New("signing failed"))
	span.End()

	ended := recorder.Ended()[0]
	if ended.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", ended.Status().Code)
	}
	if ended.Status().Description != "signing failed" {
		t.Errorf("description = %q", ended.Status().Description)
	}
	if len(ended.Events()) != 1 {
		t.Errorf("events = %d, want 1 exception event", len(ended.Events()))
	}
}

func TestSetSpanSuccess(t *testing.T) {
	inst, recorder := newRecording(t)

	_, span := inst.Tracer("server").Start(context.Background(), "test-span")
	SetSpanSuccess(span)
	span.End()

	if got := recorder.Ended()[0].Status().Code; got != codes.Ok {
		t.Errorf("status = %v, want Ok", got)
	}
}

func TestSetSpanError(t *testing.T) {
	inst, recorder := newRecording(t)

	_, span := inst.Tracer("server").Start(context.Background(), "test-span")
	SetSpanError(span, "invalid_grant")
	span.End()

	status := recorder.Ended()[0].Status()
	if status.Code != codes.Error || status.Description != "invalid_grant" {
		t.Errorf("status = %+v", status)
	}
}

func TestSpanAttributeHelpers(t *testing.T) {
	inst, recorder := newRecording(t)

	_, span := inst.Tracer("server").Start(context.Background(), "oauth.exchange")
	AddOAuthFlowAttributes(span, "client-1", "user123", "openid email")
	AddPKCEAttributes(span, "S256")
	AddHTTPAttributes(span, "POST", "/api/token", 200)
	AddStorageAttributes(span, "consume", "memory")
	AddSecurityAttributes(span, "192.0.2.1")
	span.End()

	attrs := attrsOf(recorder.Ended()[0])
	want := map[attribute.Key]string{
		AttrClientID:         "client-1",
		AttrUserID:           "user123",
		AttrScope:            "openid email",
		AttrPKCEMethod:       "S256",
		AttrHTTPMethod:       "POST",
		AttrHTTPEndpoint:     "/api/token",
		AttrStorageOperation: "consume",
		AttrStorageType:      "memory",
		AttrClientIP:         "192.0.2.1",
	}
	for k, v := range want {
		if got := attrs[k].AsString(); got != v {
			t.Errorf("attribute %s = %q, want %q", k, got, v)
		}
	}
	if got := attrs[AttrHTTPStatusCode].AsInt64(); got != 200 {
		t.Errorf("attribute %s = %d, want 200", AttrHTTPStatusCode, got)
	}
}

func TestSpanAttributeHelpers_SkipEmpty(t *testing.T) {
	inst, recorder := newRecording(t)

	_, span := inst.Tracer("server").Start(context.Background(), "oauth.authorize")
	AddOAuthFlowAttributes(span, "", "", "")
	AddPKCEAttributes(span, "")
	AddSecurityAttributes(span, "")
	span.End()

	if attrs := recorder.Ended()[0].Attributes(); len(attrs) != 0 {
		t.Errorf("attributes = %v, want none", attrs)
	}
}

func TestSpanNesting(t *testing.T) {
	inst, recorder := newRecording(t)

	ctx, parent := inst.Tracer("http").Start(context.Background(), "http.token")
	_, child := inst.Tracer("server").Start(ctx, "oauth.exchange")
	child.End()
	parent.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(ended))
	}
	if ended[0].Parent().SpanID() != ended[1].SpanContext().SpanID() {
		t.Error("child span is not parented to the http span")
	}
}

func TestShouldLogClientIPs(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   bool
	}{
		{"enabled explicitly", Config{Enabled: true, LogClientIPs: true}, true},
		{"disabled explicitly", Config{Enabled: true, LogClientIPs: false}, false},
		{"not set defaults to false", Config{Enabled: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			if got := inst.ShouldLogClientIPs(); got != tt.want {
				t.Errorf("ShouldLogClientIPs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNilSafeHelpers_WithNilSpans(t *testing.T) {
	RecordError(nil, errors.New("x"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "x")
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddOAuthFlowAttributes(nil, "c", "u", "s")
	AddPKCEAttributes(nil, "S256")
	AddStorageAttributes(nil, "consume", "memory")
	AddHTTPAttributes(nil, "GET", "/", 200)
	AddSecurityAttributes(nil, "192.0.2.1")
}
