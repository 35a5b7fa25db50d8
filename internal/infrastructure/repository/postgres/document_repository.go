package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, original_filename, file_type, file_size, storage_path, uploaded_by, status, document_type, version, uploaded_at, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.OriginalFilename, doc.FileType, doc.FileSize, doc.StoragePath, doc.UploadedBy,
		string(doc.Status), string(doc.DocumentType), doc.Version, doc.UploadedAt, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE documents
SET status = $2, document_type = $3, version = $4, updated_at = $5
WHERE id = $1
`, doc.ID, string(doc.Status), string(doc.DocumentType), doc.Version, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return affectedOrNotFound(res, domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("id=%s", doc.ID)))
}

func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentFilter) (domain.DocumentPage, error) {
	q := conn(ctx, r.db)
	page := domain.DocumentPage{Documents: make([]domain.Document, 0), Offset: filter.Offset, Limit: filter.Limit}

	if err := q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM documents WHERE ($1 = '' OR status = $1)
`, string(filter.Status)).Scan(&page.Total); err != nil {
		return domain.DocumentPage{}, fmt.Errorf("count documents: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE ($1 = '' OR status = $1)
ORDER BY uploaded_at DESC, id
LIMIT $2 OFFSET $3
`, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return domain.DocumentPage{}, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return domain.DocumentPage{}, err
		}
		page.Documents = append(page.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return domain.DocumentPage{}, fmt.Errorf("iterate documents: %w", err)
	}
	return page, nil
}

// Delete removes the document; extractions, validation results, the review,
// exports and audit rows go with it through ON DELETE CASCADE.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return affectedOrNotFound(res, domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id)))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var status, docType string
	err := row.Scan(
		&doc.ID, &doc.OriginalFilename, &doc.FileType, &doc.FileSize, &doc.StoragePath, &doc.UploadedBy,
		&status, &docType, &doc.Version, &doc.UploadedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	doc.DocumentType = domain.DocumentType(docType)
	return doc, nil
}
