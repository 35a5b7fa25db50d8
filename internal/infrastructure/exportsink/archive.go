package exportsink

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	ArchiveDestination = "xlsx-archive"

	summarySheet = "Summary"
	fieldsSheet  = "Fields"
)

// ArchiveSink renders the payload as a workbook and stores it next to the
// source documents. One workbook is written per export attempt.
type ArchiveSink struct {
	storage ports.ObjectStorage
}

func NewArchiveSink(storage ports.ObjectStorage) *ArchiveSink {
	return &ArchiveSink{storage: storage}
}

func ArchiveKey(payload domain.ExportPayload) string {
	return fmt.Sprintf("exports/%s/%s.xlsx", payload.DocumentID, payload.ExportedAt.UTC().Format("20060102T150405.000Z"))
}

func (s *ArchiveSink) Send(ctx context.Context, _ string, payload domain.ExportPayload) error {
	data, err := renderWorkbook(payload)
	if err != nil {
		return domain.WrapError(domain.ErrPermanent, "archive export", err)
	}
	if err := s.storage.Put(ctx, ArchiveKey(payload), data); err != nil {
		return fmt.Errorf("store export workbook: %w", err)
	}
	return nil
}

func renderWorkbook(payload domain.ExportPayload) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][2]any{
		{"document_id", payload.DocumentID},
		{"document_type", string(payload.DocumentType)},
		{"original_filename", payload.OriginalFilename},
		{"exported_at", payload.ExportedAt.UTC().Format("2006-01-02T15:04:05Z07:00")},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(fieldsSheet); err != nil {
		return nil, fmt.Errorf("create fields sheet: %w", err)
	}
	fields := make([]string, 0, len(payload.Data))
	for name := range payload.Data {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	rows := [][2]any{{"field", "value"}}
	for _, name := range fields {
		rows = append(rows, [2]any{name, cellValue(payload.Data[name])})
	}
	if err := writeRows(f, fieldsSheet, rows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][2]any) error {
	for i, row := range rows {
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+1)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// cellValue keeps scalars as they are and flattens nested values (line items,
// address objects) to JSON text.
func cellValue(v any) any {
	switch v.(type) {
	case nil:
		return ""
	case string, bool, float64, float32, int, int64:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
