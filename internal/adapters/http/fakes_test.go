package httpadapter

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const testSecret = "test-secret"

type uploaderFake struct {
	doc *domain.Document
	err error
	got ports.UploadRequest
}

func (f *uploaderFake) Upload(_ context.Context, req ports.UploadRequest) (*domain.Document, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type documentsFake struct {
	doc        *domain.Document
	page       domain.DocumentPage
	filter     domain.DocumentFilter
	data       []byte
	extraction *domain.Extraction
	validation *domain.ValidationResult
	review     *domain.Review
	export     *domain.Export
	audit      []domain.AuditTrail
	err        error
	deletedBy  domain.Actor
}

func (f *documentsFake) List(_ context.Context, filter domain.DocumentFilter) (domain.DocumentPage, error) {
	f.filter = filter
	return f.page, f.err
}

func (f *documentsFake) Get(context.Context, string) (*domain.Document, error) {
	return f.doc, f.err
}

func (f *documentsFake) Download(context.Context, string) ([]byte, string, error) {
	return f.data, "application/pdf", f.err
}

func (f *documentsFake) Delete(_ context.Context, _ string, actor domain.Actor) error {
	f.deletedBy = actor
	return f.err
}

func (f *documentsFake) Reprocess(context.Context, string, domain.Actor) (*domain.Document, error) {
	return f.doc, f.err
}

func (f *documentsFake) Extraction(context.Context, string) (*domain.Extraction, error) {
	return f.extraction, f.err
}

func (f *documentsFake) Validation(context.Context, string) (*domain.ValidationResult, error) {
	return f.validation, f.err
}

func (f *documentsFake) Review(context.Context, string) (*domain.Review, error) {
	return f.review, f.err
}

func (f *documentsFake) Export(context.Context, string) (*domain.Export, error) {
	return f.export, f.err
}

func (f *documentsFake) AuditTrail(context.Context, string) ([]domain.AuditTrail, error) {
	return f.audit, f.err
}

type validatorFake struct {
	result *domain.ValidationResult
	err    error
}

func (f *validatorFake) Validate(context.Context, string, domain.Actor) (*domain.ValidationResult, error) {
	return f.result, f.err
}

type reviewsFake struct {
	review    *domain.Review
	export    *domain.Export
	err       error
	input     domain.ReviewInput
	notes     *string
	submitted int
}

func (f *reviewsFake) Submit(_ context.Context, _ string, input domain.ReviewInput, _ domain.Actor) (*domain.Review, error) {
	f.submitted++
	f.input = input
	return f.review, f.err
}

func (f *reviewsFake) Approve(context.Context, string, domain.Actor) (*domain.Review, *domain.Export, error) {
	return f.review, f.export, f.err
}

func (f *reviewsFake) Reject(_ context.Context, _ string, notes *string, _ domain.Actor) (*domain.Review, error) {
	f.notes = notes
	return f.review, f.err
}

type exporterFake struct {
	export      *domain.Export
	err         error
	destination string
}

func (f *exporterFake) Export(_ context.Context, _ string, destination string, _ domain.Actor) (*domain.Export, error) {
	f.destination = destination
	return f.export, f.err
}

type testServer struct {
	uploader  *uploaderFake
	documents *documentsFake
	validator *validatorFake
	reviews   *reviewsFake
	exporter  *exporterFake
	handler   http.Handler
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:              testSecret,
		MaxUploadBytes:         1 << 20,
		ActorRateLimitRequests: 1000,
		ActorRateLimitWindow:   time.Minute,
	}
}

func newTestServer(cfg config.Config) *testServer {
	s := &testServer{
		uploader:  &uploaderFake{},
		documents: &documentsFake{},
		validator: &validatorFake{},
		reviews:   &reviewsFake{},
		exporter:  &exporterFake{},
	}
	s.handler = NewRouter(cfg, Deps{
		Uploader:  s.uploader,
		Documents: s.documents,
		Validator: s.validator,
		Reviews:   s.reviews,
		Exporter:  s.exporter,
	}).Handler()
	return s
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestServer(cfg).handler
}

func signToken(t *testing.T, subject string, role domain.Role, ttl time.Duration) string {
	t.Helper()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: string(role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authorize(t *testing.T, r *http.Request, subject string, role domain.Role) *http.Request {
	t.Helper()
	r.Header.Set("Authorization", "Bearer "+signToken(t, subject, role, time.Hour))
	return r
}
