package pdfinspect

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Inspector reads PDF structure with pdfcpu. Upload uses the page count as an
// audit hint only, so callers treat failures as warnings.
type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

func (i *Inspector) PageCount(data []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "pdf page count", fmt.Errorf("read pdf: %w", err))
	}
	return count, nil
}
