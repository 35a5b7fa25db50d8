package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Engine reads the embedded text layer of a PDF. Scanned images carry no text
// layer and need the remote engine instead.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) ExtractText(ctx context.Context, data []byte, fileType string) (result domain.OCRResult, err error) {
	if !strings.EqualFold(fileType, "pdf") {
		return domain.OCRResult{}, domain.WrapError(domain.ErrPermanent, "pdftext extract",
			fmt.Errorf("file type %q has no text layer", fileType))
	}
	if len(data) == 0 {
		return domain.OCRResult{}, domain.WrapError(domain.ErrPermanent, "pdftext extract", errors.New("empty document"))
	}

	// The reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			result = domain.OCRResult{}
			err = domain.WrapError(domain.ErrPermanent, "pdftext extract", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.OCRResult{}, domain.WrapError(domain.ErrPermanent, "pdftext extract", fmt.Errorf("open pdf: %w", err))
	}

	var lines []string
	var layout []domain.LayoutBlock
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return domain.OCRResult{}, err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return domain.OCRResult{}, domain.WrapError(domain.ErrPermanent, "pdftext extract",
				fmt.Errorf("read page %d: %w", pageNum, err))
		}
		// Rows are keyed by baseline; higher Y is nearer the top of the page.
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })
		for _, row := range rows {
			block, ok := rowBlock(row, pageNum)
			if !ok {
				continue
			}
			lines = append(lines, block.Text)
			layout = append(layout, block)
		}
	}

	return domain.OCRResult{
		Text:   strings.Join(lines, "\n"),
		Layout: layout,
	}, nil
}

func rowBlock(row *pdf.Row, page int) (domain.LayoutBlock, bool) {
	var sb strings.Builder
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, t := range row.Content {
		sb.WriteString(t.S)
		minX = math.Min(minX, t.X)
		minY = math.Min(minY, t.Y)
		maxX = math.Max(maxX, t.X+t.W)
		maxY = math.Max(maxY, t.Y+t.FontSize)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return domain.LayoutBlock{}, false
	}
	return domain.LayoutBlock{
		Text: text,
		// Embedded text is exact; there is no recognition step to be unsure about.
		Confidence:  1,
		BoundingBox: [4]float64{minX, minY, maxX, maxY},
		Page:        page,
	}, true
}
