package exportsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

func samplePayload() domain.ExportPayload {
	return domain.ExportPayload{
		DocumentID:       "doc-1",
		DocumentType:     domain.TypeCMR,
		OriginalFilename: "cmr.pdf",
		Data: map[string]any{
			"shipper_name": "ACME GmbH",
			"weight":       "1250 kg",
			"items":        []any{map[string]any{"sku": "A1"}},
		},
		ExportedAt: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestTMSSinkPostsPayload(t *testing.T) {
	var got domain.ExportPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/shipments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := NewTMSSink(server.URL+"/api/", TMSOptions{APIKey: "secret"})
	if err := sink.Send(context.Background(), "shipments", samplePayload()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.DocumentID != "doc-1" || got.Data["shipper_name"] != "ACME GmbH" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestTMSSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, RetryInitialBackoff: time.Millisecond, RetryMaxBackoff: time.Millisecond})
	sink := NewTMSSink(server.URL, TMSOptions{ResilienceExecutor: exec})
	if err := sink.Send(context.Background(), "tms", samplePayload()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestTMSSinkDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad weight", http.StatusBadRequest)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, RetryInitialBackoff: time.Millisecond})
	err := NewTMSSink(server.URL, TMSOptions{ResilienceExecutor: exec}).Send(context.Background(), "tms", samplePayload())
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 status error, got %v", err)
	}
	if statusErr.Error() != "tms status 400: bad weight" {
		t.Fatalf("unexpected message %q", statusErr.Error())
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestTMSSinkRequiresDestination(t *testing.T) {
	err := NewTMSSink("http://tms.invalid", TMSOptions{}).Send(context.Background(), " / ", samplePayload())
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

type memoryStorage struct {
	objects map[string][]byte
	putErr  error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) Put(_ context.Context, key string, data []byte) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.NotFound("object", key)
	}
	return data, nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func TestArchiveSinkWritesWorkbook(t *testing.T) {
	storage := newMemoryStorage()
	payload := samplePayload()

	if err := NewArchiveSink(storage).Send(context.Background(), ArchiveDestination, payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	key := "exports/doc-1/20260301T103000.000Z.xlsx"
	if ArchiveKey(payload) != key {
		t.Fatalf("unexpected key %s", ArchiveKey(payload))
	}
	raw, ok := storage.objects[key]
	if !ok {
		t.Fatalf("workbook not stored, have %v", storage.objects)
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if v, _ := f.GetCellValue(summarySheet, "B2"); v != "CMR" {
		t.Fatalf("expected document type in B2, got %q", v)
	}
	rows, err := f.GetRows(fieldsSheet)
	if err != nil {
		t.Fatalf("read fields: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 fields, got %v", rows)
	}
	if rows[1][0] != "items" || rows[1][1] != `[{"sku":"A1"}]` {
		t.Fatalf("expected nested value as json, got %v", rows[1])
	}
	if rows[3][0] != "weight" || rows[3][1] != "1250 kg" {
		t.Fatalf("unexpected last row %v", rows[3])
	}
}

func TestArchiveSinkPropagatesStorageError(t *testing.T) {
	storage := newMemoryStorage()
	storage.putErr = errors.New("disk full")
	if err := NewArchiveSink(storage).Send(context.Background(), ArchiveDestination, samplePayload()); err == nil {
		t.Fatalf("expected error")
	}
}

type recordingSink struct {
	destinations []string
}

func (r *recordingSink) Send(_ context.Context, destination string, _ domain.ExportPayload) error {
	r.destinations = append(r.destinations, destination)
	return nil
}

func TestRouterDispatchesByDestination(t *testing.T) {
	archive := &recordingSink{}
	tms := &recordingSink{}
	router := NewRouter(tms).Handle(ArchiveDestination, archive)

	for _, dest := range []string{"XLSX-Archive", "tms", "erp"} {
		if err := router.Send(context.Background(), dest, samplePayload()); err != nil {
			t.Fatalf("Send(%s) error = %v", dest, err)
		}
	}
	if len(archive.destinations) != 1 || len(tms.destinations) != 2 {
		t.Fatalf("archive=%v tms=%v", archive.destinations, tms.destinations)
	}
}

func TestRouterWithoutFallbackRejectsUnknown(t *testing.T) {
	err := NewRouter(nil).Send(context.Background(), "erp", samplePayload())
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
