package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/classification"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/validation"
)

// memStore backs every repository fake so cascades and cross-entity reads behave
// like the database.
type memStore struct {
	mu          sync.Mutex
	docs        map[string]domain.Document
	extractions []domain.Extraction
	validations []domain.ValidationResult
	reviews     map[string]domain.Review
	exports     map[string]domain.Export
	audit       []domain.AuditTrail

	createDocErr error
}

func newMemStore() *memStore {
	return &memStore{
		docs:    map[string]domain.Document{},
		reviews: map[string]domain.Review{},
		exports: map[string]domain.Export{},
	}
}

func (s *memStore) auditActions(documentID string) []domain.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditAction
	for _, a := range s.audit {
		if a.DocumentID == documentID {
			out = append(out, a.Action)
		}
	}
	return out
}

func (s *memStore) doc(t *testing.T, id string) domain.Document {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		t.Fatalf("document %s not stored", id)
	}
	return d
}

type memDocs struct{ s *memStore }

func (r memDocs) Create(_ context.Context, doc *domain.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createDocErr != nil {
		return r.s.createDocErr
	}
	r.s.docs[doc.ID] = *doc
	return nil
}

func (r memDocs) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return &d, nil
}

func (r memDocs) Update(_ context.Context, doc *domain.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.docs[doc.ID]; !ok {
		return domain.ErrDocumentNotFound
	}
	r.s.docs[doc.ID] = *doc
	return nil
}

func (r memDocs) List(_ context.Context, filter domain.DocumentFilter) (domain.DocumentPage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	page := domain.DocumentPage{Offset: filter.Offset, Limit: filter.Limit}
	for _, d := range r.s.docs {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		page.Total++
		page.Documents = append(page.Documents, d)
	}
	return page, nil
}

func (r memDocs) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(r.s.docs, id)
	delete(r.s.reviews, id)
	delete(r.s.exports, id)
	keptExtractions := r.s.extractions[:0]
	removed := map[string]bool{}
	for _, e := range r.s.extractions {
		if e.DocumentID == id {
			removed[e.ID] = true
			continue
		}
		keptExtractions = append(keptExtractions, e)
	}
	r.s.extractions = keptExtractions
	keptValidations := r.s.validations[:0]
	for _, v := range r.s.validations {
		if !removed[v.ExtractionID] {
			keptValidations = append(keptValidations, v)
		}
	}
	r.s.validations = keptValidations
	keptAudit := r.s.audit[:0]
	for _, a := range r.s.audit {
		if a.DocumentID != id {
			keptAudit = append(keptAudit, a)
		}
	}
	r.s.audit = keptAudit
	return nil
}

type memExtractions struct{ s *memStore }

func (r memExtractions) Create(_ context.Context, e *domain.Extraction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.extractions = append(r.s.extractions, *e)
	return nil
}

func (r memExtractions) LatestByDocument(_ context.Context, documentID string) (*domain.Extraction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.extractions) - 1; i >= 0; i-- {
		if r.s.extractions[i].DocumentID == documentID {
			e := r.s.extractions[i]
			return &e, nil
		}
	}
	return nil, domain.NotFound("extraction", documentID)
}

type memValidations struct{ s *memStore }

func (r memValidations) Save(_ context.Context, result *domain.ValidationResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, v := range r.s.validations {
		if v.ExtractionID == result.ExtractionID {
			r.s.validations[i] = *result
			return nil
		}
	}
	r.s.validations = append(r.s.validations, *result)
	return nil
}

func (r memValidations) LatestByExtraction(_ context.Context, extractionID string) (*domain.ValidationResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.validations) - 1; i >= 0; i-- {
		if r.s.validations[i].ExtractionID == extractionID {
			v := r.s.validations[i]
			return &v, nil
		}
	}
	return nil, domain.NotFound("validation result", extractionID)
}

func (r memValidations) count(extractionID string) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, v := range r.s.validations {
		if v.ExtractionID == extractionID {
			n++
		}
	}
	return n
}

type memReviews struct{ s *memStore }

func (r memReviews) GetByDocument(_ context.Context, documentID string) (*domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rv, ok := r.s.reviews[documentID]
	if !ok {
		return nil, domain.NotFound("review", documentID)
	}
	return &rv, nil
}

func (r memReviews) Save(_ context.Context, review *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reviews[review.DocumentID] = *review
	return nil
}

type memExports struct{ s *memStore }

func (r memExports) GetByDocument(_ context.Context, documentID string) (*domain.Export, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.exports[documentID]
	if !ok {
		return nil, domain.NotFound("export", documentID)
	}
	return &e, nil
}

func (r memExports) Save(_ context.Context, export *domain.Export) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.exports[export.DocumentID] = *export
	return nil
}

type memAudit struct{ s *memStore }

func (r memAudit) Append(_ context.Context, entry *domain.AuditTrail) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r memAudit) ListByDocument(_ context.Context, documentID string) ([]domain.AuditTrail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.AuditTrail
	for _, a := range r.s.audit {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

type txFake struct{ calls int }

// WithinTx refuses a done ctx the way BeginTx does.
func (f *txFake) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	f.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

type storageFake struct {
	mu        sync.Mutex
	objects   map[string][]byte
	getErr    error
	deleteErr error
	deleted   []string
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *storageFake) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, domain.NotFound("object", key)
	}
	return data, nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

func (f *storageFake) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

type queueFake struct {
	jobs []domain.ExtractionJob
	err  error
}

func (f *queueFake) Submit(_ context.Context, job domain.ExtractionJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) Consume(context.Context, func(context.Context, domain.ExtractionJob) error) error {
	return errors.New("not implemented")
}

type ocrFake struct {
	text string
	err  error
	// hang blocks until the caller's ctx is done.
	hang bool
}

func (f *ocrFake) ExtractText(ctx context.Context, _ []byte, _ string) (domain.OCRResult, error) {
	if f.hang {
		<-ctx.Done()
		return domain.OCRResult{}, ctx.Err()
	}
	if f.err != nil {
		return domain.OCRResult{}, f.err
	}
	return domain.OCRResult{Text: f.text}, nil
}

type fieldExtractorFake struct {
	result  domain.FieldExtractionResult
	err     error
	docType string
	schema  domain.Schema
}

func (f *fieldExtractorFake) ExtractFields(_ context.Context, _ string, docType string, schema domain.Schema) (domain.FieldExtractionResult, error) {
	f.docType = docType
	f.schema = schema
	if f.err != nil {
		return domain.FieldExtractionResult{}, f.err
	}
	return f.result, nil
}

type sinkFake struct {
	err      error
	payloads []domain.ExportPayload
	dests    []string
}

func (f *sinkFake) Send(_ context.Context, destination string, payload domain.ExportPayload) error {
	f.dests = append(f.dests, destination)
	f.payloads = append(f.payloads, payload)
	return f.err
}

type observerFake struct {
	classifications []domain.ClassificationResult
	validations     []domain.ValidationStatus
	exports         []domain.ExportStatus
}

func (o *observerFake) ObserveClassification(r domain.ClassificationResult) {
	o.classifications = append(o.classifications, r)
}
func (o *observerFake) ObserveValidation(s domain.ValidationStatus) {
	o.validations = append(o.validations, s)
}
func (o *observerFake) ObserveExport(s domain.ExportStatus) { o.exports = append(o.exports, s) }

type harness struct {
	store     *memStore
	storage   *storageFake
	queue     *queueFake
	ocr       *ocrFake
	extractor *fieldExtractorFake
	sink      *sinkFake
	observer  *observerFake
	tx        *txFake

	upload    *UploadDocumentUseCase
	extract   *ExtractDocumentUseCase
	validate  *ValidateDocumentUseCase
	review    *ReviewDocumentUseCase
	export    *ExportDocumentUseCase
	documents *DocumentsUseCase
}

var (
	testActor    = domain.Actor{ID: "11111111-1111-1111-1111-111111111111", Role: domain.RoleOperator}
	testPDF      = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
	cmrOCRText   = "CMR\nCONSIGNMENT NOTE\nLETTRE DE VOITURE\nShipper: ACME GmbH"
	fixedNow     = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cmrExtracted = map[string]any{
		"shipper_name":        "ACME GmbH",
		"consignee_name":      "Globex SA",
		"date_of_consignment": "2024-04-30",
		"weight":              "1200 kg",
	}
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := classification.DefaultProfiles()
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}

	h := &harness{
		store:   newMemStore(),
		storage: newStorageFake(),
		queue:   &queueFake{},
		ocr:     &ocrFake{text: cmrOCRText},
		extractor: &fieldExtractorFake{result: domain.FieldExtractionResult{
			StructuredData:   cmrExtracted,
			ConfidenceScores: map[string]float64{"shipper_name": 0.9, "consignee_name": 0.8, "ghost": 0.5},
			Metadata:         map[string]any{"model": "test-model"},
		}},
		sink:     &sinkFake{},
		observer: &observerFake{},
		tx:       &txFake{},
	}

	docs := memDocs{h.store}
	extractions := memExtractions{h.store}
	validations := memValidations{h.store}
	reviews := memReviews{h.store}
	exports := memExports{h.store}
	audit := NewAuditRecorder(memAudit{h.store})
	audit.now = func() time.Time { return fixedNow }

	h.upload = NewUploadDocumentUseCase(docs, audit, h.tx, h.storage, h.queue, nil, 1<<20)
	h.validate = NewValidateDocumentUseCase(docs, extractions, validations, audit, h.tx, validation.NewEngine(), h.observer)
	h.extract = NewExtractDocumentUseCase(ExtractDeps{
		Documents:      docs,
		Extractions:    extractions,
		Audit:          audit,
		Tx:             h.tx,
		Storage:        h.storage,
		OCR:            h.ocr,
		Classifier:     classification.NewClassifier(store),
		FieldExtractor: h.extractor,
		Observer:       h.observer,
	})
	h.export = NewExportDocumentUseCase(ExportDeps{
		Documents:          docs,
		Extractions:        extractions,
		Reviews:            reviews,
		Exports:            exports,
		Audit:              audit,
		Tx:                 h.tx,
		Sink:               h.sink,
		Observer:           h.observer,
		DefaultDestination: "tms",
	})
	h.review = NewReviewDocumentUseCase(docs, extractions, validations, reviews, audit, h.tx, h.export, "tms")
	h.documents = NewDocumentsUseCase(DocumentsDeps{
		Documents:   docs,
		Extractions: extractions,
		Validations: validations,
		Reviews:     reviews,
		Exports:     exports,
		Audit:       audit,
		Tx:          h.tx,
		Storage:     h.storage,
		Queue:       h.queue,
	})
	return h
}

// uploaded stores a CMR PDF and returns its id.
func (h *harness) uploaded(t *testing.T) string {
	t.Helper()
	doc, err := h.upload.Upload(context.Background(), uploadRequest("cmr_0001.pdf", testPDF))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return doc.ID
}

func (h *harness) extracted(t *testing.T) string {
	t.Helper()
	id := h.uploaded(t)
	if err := h.extract.Process(context.Background(), domain.ExtractionJob{DocumentID: id}); err != nil {
		t.Fatalf("process: %v", err)
	}
	return id
}

func (h *harness) validated(t *testing.T) string {
	t.Helper()
	id := h.extracted(t)
	if _, err := h.validate.Validate(context.Background(), id, testActor); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return id
}

func (h *harness) reviewed(t *testing.T, corrections map[string]any) string {
	t.Helper()
	id := h.validated(t)
	if _, err := h.review.Submit(context.Background(), id, domain.ReviewInput{Corrections: corrections}, testActor); err != nil {
		t.Fatalf("submit review: %v", err)
	}
	return id
}

func uploadRequest(name string, data []byte) ports.UploadRequest {
	return ports.UploadRequest{Filename: name, Data: data, Actor: testActor}
}
