package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"log"
	"reflect"
	"testing"
	"time"
)

func sampleRecord() *Record {
	return &Record{
		Key:       "current plan",
		Goal:      "Migrate the billing service to the new ledger API",
		Completed: []string{"Inventory callers of the old API", "Write adapter layer"},
		Current:   "Porting the invoice worker",
		Pending:   []string{"Port the refund worker", "Delete the old client"},
		Decisions: []Decision{
			{Topic: "rollout", Choice: "feature flag per tenant"},
			{Topic: "schema", Choice: "dual-write during migration"},
		},
		ModifiedResources: []string{"billing/ledger.go", "billing/worker/invoice.go"},
		Notes:             "Refund worker shares the retry queue; port them together.",
	}
}

func TestMemoryStoreUpsertGetList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := sampleRecord()
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	// Upsert replaces the whole record by key, never merges.
	replacement := &Record{Key: rec.Key, Goal: "A different goal"}
	if err := store.Upsert(ctx, replacement); err != nil {
		t.Fatalf("Upsert() replace error: %v", err)
	}

	got, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Goal != "A different goal" || len(got.Completed) != 0 {
		t.Errorf("Get() after replace = %+v, want full replacement", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.Upsert(ctx, &Record{Key: "another"}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 || all[0].Key != "another" {
		t.Errorf("List() = %d records starting with %q, want 2 starting with \"another\"", len(all), all[0].Key)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := sampleRecord()
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get(ctx, rec.Key)
	got.Completed[0] = "mutated"

	again, _ := store.Get(ctx, rec.Key)
	if again.Completed[0] != rec.Completed[0] {
		t.Error("mutating a returned record changed the stored copy")
	}
}

func TestUpsertRequiresKey(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Upsert(context.Background(), &Record{}); err == nil {
		t.Error("Upsert with empty key succeeded, want validation error")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	rec := sampleRecord()
	doc := FormatDocument(rec)

	parsed, err := ParseDocument(doc)
	if err != nil {
		t.Fatalf("ParseDocument() error: %v", err)
	}

	if parsed.Key != rec.Key {
		t.Errorf("Key = %q, want %q", parsed.Key, rec.Key)
	}
	if parsed.Goal != rec.Goal {
		t.Errorf("Goal = %q, want %q", parsed.Goal, rec.Goal)
	}
	if parsed.Current != rec.Current {
		t.Errorf("Current = %q, want %q", parsed.Current, rec.Current)
	}
	if parsed.Notes != rec.Notes {
		t.Errorf("Notes = %q, want %q", parsed.Notes, rec.Notes)
	}
	if !reflect.DeepEqual(parsed.Completed, rec.Completed) {
		t.Errorf("Completed = %v, want %v", parsed.Completed, rec.Completed)
	}
	if !reflect.DeepEqual(parsed.Pending, rec.Pending) {
		t.Errorf("Pending = %v, want %v", parsed.Pending, rec.Pending)
	}
	if !reflect.DeepEqual(parsed.Decisions, rec.Decisions) {
		t.Errorf("Decisions = %v, want %v", parsed.Decisions, rec.Decisions)
	}
	if !reflect.DeepEqual(parsed.ModifiedResources, rec.ModifiedResources) {
		t.Errorf("ModifiedResources = %v, want %v", parsed.ModifiedResources, rec.ModifiedResources)
	}
}

func TestParseDocumentWithoutTitle(t *testing.T) {
	_, err := ParseDocument([]byte("## Goal\n\nNo title here.\n"))
	if err == nil {
		t.Error("ParseDocument without title succeeded, want error")
	}
}

func TestParseDocumentSparseSections(t *testing.T) {
	doc := []byte("# Checkpoint: sparse\n\n## Goal\n\nShip it.\n")
	rec, err := ParseDocument(doc)
	if err != nil {
		t.Fatalf("ParseDocument() error: %v", err)
	}
	if rec.Key != "sparse" || rec.Goal != "Ship it." {
		t.Errorf("parsed = %+v", rec)
	}
	if len(rec.Completed) != 0 || len(rec.Decisions) != 0 {
		t.Error("absent sections should stay empty")
	}
}

func TestRecordMarker(t *testing.T) {
	rec := sampleRecord()
	marker := rec.Marker()
	if marker != "[checkpoint saved: current plan]" {
		t.Errorf("Marker() = %q", marker)
	}
	// The marker must stay small relative to the record body it references.
	if len(marker) > 64 {
		t.Errorf("marker unexpectedly large: %d bytes", len(marker))
	}
}

// flakyStore fails a fixed number of times before succeeding.
type flakyStore struct {
	*MemoryStore
	failures int
}

func (f *flakyStore) Upsert(ctx context.Context, rec *Record) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("transient storage error")
	}
	return f.MemoryStore.Upsert(ctx, rec)
}

func TestManagerRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}

	var logs bytes.Buffer
	m := NewManager(store, log.New(&logs, "", 0))
	m.SetRetry(3, time.Millisecond)

	if err := m.Upsert(ctx, sampleRecord()); err != nil {
		t.Fatalf("Upsert() error after retries: %v", err)
	}
	if _, err := store.Get(ctx, "current plan"); err != nil {
		t.Errorf("record not stored after retries: %v", err)
	}
	if logs.Len() == 0 {
		t.Error("expected retry attempts to be logged")
	}
}

func TestManagerExhaustsRetries(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 100}
	m := NewManager(store, log.New(&bytes.Buffer{}, "", 0))
	m.SetRetry(2, time.Millisecond)

	err := m.Upsert(context.Background(), sampleRecord())
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Upsert() error = %v, want ErrWriteFailed", err)
	}
}

func TestManagerSeedMissingIsNil(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	rec, err := m.Seed(context.Background(), "never written")
	if err != nil || rec != nil {
		t.Errorf("Seed(missing) = (%v, %v), want (nil, nil)", rec, err)
	}
}
