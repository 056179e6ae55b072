package hooks

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/stackline/ctxbudget/checkpoint"
	"github.com/stackline/ctxbudget/compaction"
	"github.com/stackline/ctxbudget/session"
)

func sampleUnit() *session.ContentUnit {
	return &session.ContentUnit{
		ID:     7,
		Origin: session.OriginUserInput,
		Body:   "hello",
		Cost:   3,
		Tier:   session.TierWorking,
	}
}

func sampleEvent() *compaction.Event {
	return &compaction.Event{
		SessionID:     "s1",
		Trigger:       "manual",
		PreUsage:      1000,
		PostUsage:     400,
		FirstID:       1,
		LastID:        20,
		UnitsReplaced: 18,
		DigestID:      25,
		Duration:      120 * time.Millisecond,
	}
}

func TestRegistryRunsHooksInOrder(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var order []string
	r.OnAfterAppend(func(ctx context.Context, sessionID string, unit *session.ContentUnit) error {
		order = append(order, "first")
		return nil
	})
	r.OnAfterAppend(func(ctx context.Context, sessionID string, unit *session.ContentUnit) error {
		order = append(order, "second")
		return nil
	})

	if err := r.RunAfterAppend(ctx, "s1", sampleUnit()); err != nil {
		t.Fatalf("RunAfterAppend error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("hook order = %v", order)
	}
}

func TestRegistryStopsOnError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	called := false

	r.OnAfterCompaction(func(ctx context.Context, event *compaction.Event) error {
		return boom
	})
	r.OnAfterCompaction(func(ctx context.Context, event *compaction.Event) error {
		called = true
		return nil
	})

	if err := r.RunAfterCompaction(context.Background(), sampleEvent()); !errors.Is(err, boom) {
		t.Errorf("RunAfterCompaction error = %v, want boom", err)
	}
	if called {
		t.Error("later hook ran after an earlier hook failed")
	}
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoggingHooks(log.New(&buf, "", 0))
	r := NewRegistry()
	h.Register(r)

	ctx := context.Background()
	if err := r.RunAfterAppend(ctx, "s1", sampleUnit()); err != nil {
		t.Fatal(err)
	}
	if err := r.RunAfterCompaction(ctx, sampleEvent()); err != nil {
		t.Fatal(err)
	}
	rec := &checkpoint.Record{Key: "current plan"}
	if err := r.RunCheckpointSaved(ctx, "s1", rec); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"appended unit 7", "reclaimed 600", "checkpoint \"current plan\" saved"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLoggingHooksFlagLossyCompaction(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoggingHooks(log.New(&buf, "", 0))

	ev := sampleEvent()
	ev.Degraded = true
	if err := h.AfterCompaction(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("LOSSY")) {
		t.Errorf("degraded compaction not flagged in log: %s", buf.String())
	}
}

func TestMetricsHooks(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background()) //nolint:errcheck

	m, err := NewMetricsHooks(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsHooks error: %v", err)
	}

	r := NewRegistry()
	m.Register(r)

	ctx := context.Background()
	if err := r.RunAfterAppend(ctx, "s1", sampleUnit()); err != nil {
		t.Fatal(err)
	}
	if err := r.RunAfterCompaction(ctx, sampleEvent()); err != nil {
		t.Fatal(err)
	}

	var rm metricdataSink
	if err := reader.Collect(ctx, &rm.data); err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	names := rm.metricNames()
	for _, want := range []string{"ctxbudget.units.appended", "ctxbudget.compactions", "ctxbudget.tokens.reclaimed"} {
		if !names[want] {
			t.Errorf("metric %q not recorded; got %v", want, names)
		}
	}
}
