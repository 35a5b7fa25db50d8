package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// multipartOverhead leaves room for boundaries and headers on top of the file.
const multipartOverhead = 1 << 20

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document",
				fmt.Errorf("file size exceeds maximum of %d bytes", rt.cfg.MaxUploadBytes)))
			return
		}
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("read upload: %w", err)))
		return
	}

	doc, err := rt.deps.Uploader.Upload(r.Context(), ports.UploadRequest{
		Filename: header.Filename,
		Data:     data,
		Actor:    actor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := rt.deps.Documents.List(r.Context(), domain.DocumentFilter{
		Status: domain.DocumentStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.deps.Documents.Get(r.Context(), documentID(r))
	respond(w, r, http.StatusOK, doc, err)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	if err := rt.deps.Documents.Delete(r.Context(), documentID(r), actor); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	doc, err := rt.deps.Documents.Reprocess(r.Context(), documentID(r), actor)
	respond(w, r, http.StatusAccepted, doc, err)
}

func (rt *Router) downloadDocument(w http.ResponseWriter, r *http.Request) {
	id := documentID(r)
	doc, err := rt.deps.Documents.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, contentType, err := rt.deps.Documents.Download(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalFilename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (rt *Router) listAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := rt.deps.Documents.AuditTrail(r.Context(), documentID(r))
	if entries == nil && err == nil {
		entries = []domain.AuditTrail{}
	}
	respond(w, r, http.StatusOK, entries, err)
}

func (rt *Router) getExtraction(w http.ResponseWriter, r *http.Request) {
	extraction, err := rt.deps.Documents.Extraction(r.Context(), documentID(r))
	respond(w, r, http.StatusOK, extraction, err)
}

func (rt *Router) validateDocument(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	result, err := rt.deps.Validator.Validate(r.Context(), documentID(r), actor)
	respond(w, r, http.StatusOK, result, err)
}

func (rt *Router) getValidation(w http.ResponseWriter, r *http.Request) {
	result, err := rt.deps.Documents.Validation(r.Context(), documentID(r))
	respond(w, r, http.StatusOK, result, err)
}

func (rt *Router) getReview(w http.ResponseWriter, r *http.Request) {
	review, err := rt.deps.Documents.Review(r.Context(), documentID(r))
	respond(w, r, http.StatusOK, review, err)
}

// submitReview serves both POST and PATCH: a review is created on first
// submission and updated in place afterwards.
func (rt *Router) submitReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var input domain.ReviewInput
	if err := decodeJSON(r, &input, true); err != nil {
		writeError(w, r, err)
		return
	}
	review, err := rt.deps.Reviews.Submit(r.Context(), documentID(r), input, actor)
	respond(w, r, http.StatusOK, review, err)
}

type approvalResponse struct {
	Review      *domain.Review `json:"review"`
	Export      *domain.Export `json:"export,omitempty"`
	ExportError string         `json:"export_error,omitempty"`
}

func (rt *Router) approveReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	review, export, err := rt.deps.Reviews.Approve(r.Context(), documentID(r), actor)
	if err != nil && review == nil {
		writeError(w, r, err)
		return
	}
	if err != nil {
		// The approval is committed; only delivery failed.
		writeJSON(w, exportFailureStatus(err), approvalResponse{Review: review, Export: export, ExportError: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, approvalResponse{Review: review, Export: export})
}

func (rt *Router) rejectReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var body struct {
		ReviewNotes *string `json:"review_notes"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	review, err := rt.deps.Reviews.Reject(r.Context(), documentID(r), body.ReviewNotes, actor)
	respond(w, r, http.StatusOK, review, err)
}

type exportFailureResponse struct {
	Error  string         `json:"error"`
	Export *domain.Export `json:"export"`
}

func (rt *Router) exportDocument(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var body struct {
		ExportedTo string `json:"exported_to"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	export, err := rt.deps.Exporter.Export(r.Context(), documentID(r), body.ExportedTo, actor)
	if err != nil && export != nil {
		writeJSON(w, exportFailureStatus(err), exportFailureResponse{Error: err.Error(), Export: export})
		return
	}
	respond(w, r, http.StatusOK, export, err)
}

func (rt *Router) getExport(w http.ResponseWriter, r *http.Request) {
	export, err := rt.deps.Documents.Export(r.Context(), documentID(r))
	respond(w, r, http.StatusOK, export, err)
}

// exportFailureStatus distinguishes a destination that rejected or could not
// take the payload (502) from one that is temporarily unreachable (503).
func exportFailureStatus(err error) int {
	if domain.IsKind(err, domain.ErrTemporary) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

func documentID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func intParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse query", fmt.Errorf("%s must be an integer", name))
	}
	return n, nil
}

// decodeJSON rejects unknown fields. An empty body is accepted unless required.
func decodeJSON(r *http.Request, out any, required bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) && !required {
			return nil
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode body", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}
