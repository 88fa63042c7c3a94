package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/meliorhq/melior/internal/types"
)

type fakeWriter struct {
	signals []types.RawSignal
	err     error
	log     *[]string
}

func (w *fakeWriter) AddSignal(ctx context.Context, sig types.RawSignal, embedding []float32) error {
	if w.err != nil {
		return w.err
	}
	w.signals = append(w.signals, sig)
	if w.log != nil {
		*w.log = append(*w.log, "persist")
	}
	return nil
}

type fakeInvalidator struct {
	users []string
	log   *[]string
}

func (f *fakeInvalidator) Invalidate(userID string) {
	f.users = append(f.users, userID)
	if f.log != nil {
		*f.log = append(*f.log, "invalidate")
	}
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding service down")
}

func (failingEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding service down")
}

func TestRecordPersistsBeforeInvalidation(t *testing.T) {
	var log []string
	writer := &fakeWriter{log: &log}
	invalidator := &fakeInvalidator{log: &log}
	ingestor := NewIngestor(writer, invalidator, nil)

	sig, err := ingestor.Record(context.Background(), types.RawSignal{
		UserID:  "user-1",
		Kind:    types.SignalKindMessage,
		Role:    "user",
		Content: "rough day today",
	})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if sig.ID == "" || sig.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled: %+v", sig)
	}
	if len(log) != 2 || log[0] != "persist" || log[1] != "invalidate" {
		t.Fatalf("expected persist before invalidate, got %v", log)
	}
	if len(invalidator.users) != 1 || invalidator.users[0] != "user-1" {
		t.Fatalf("unexpected invalidations: %v", invalidator.users)
	}
}

func TestRecordWriteFailureSkipsInvalidation(t *testing.T) {
	writer := &fakeWriter{err: fmt.Errorf("db down")}
	invalidator := &fakeInvalidator{}
	ingestor := NewIngestor(writer, invalidator, nil)

	_, err := ingestor.Record(context.Background(), types.RawSignal{
		UserID:  "user-1",
		Kind:    types.SignalKindJournal,
		Content: "entry",
	})
	if err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if len(invalidator.users) != 0 {
		t.Fatalf("cache must not be invalidated when the write failed: %v", invalidator.users)
	}
}

func TestRecordEmbeddingFailureStillPersists(t *testing.T) {
	writer := &fakeWriter{}
	ingestor := NewIngestor(writer, &fakeInvalidator{}, failingEmbedder{})

	if _, err := ingestor.Record(context.Background(), types.RawSignal{
		UserID:  "user-1",
		Kind:    types.SignalKindJournal,
		Content: "grateful for small things",
	}); err != nil {
		t.Fatalf("Record should survive embedding failure, got %v", err)
	}
	if len(writer.signals) != 1 {
		t.Fatalf("expected signal persisted without vector, got %d", len(writer.signals))
	}
}

func TestRecordRejectsUnknownKind(t *testing.T) {
	ingestor := NewIngestor(&fakeWriter{}, &fakeInvalidator{}, nil)

	if _, err := ingestor.Record(context.Background(), types.RawSignal{
		UserID: "user-1",
		Kind:   "voice",
	}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
