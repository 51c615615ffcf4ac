package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageSource yields page text by 1-based index.
type pageSource interface {
	NumPage() int
	PageText(i int) (string, error)
}

type pdfDocument struct {
	r *pdf.Reader
}

func (d pdfDocument) NumPage() int { return d.r.NumPage() }

func (d pdfDocument) PageText(i int) (text string, err error) {
	// The content parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", i, r)
		}
	}()
	page := d.r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// ExtractPDF concatenates the text of every page that yields any, in page
// order and without a separator. Pages with nothing but whitespace are
// skipped, so a scanned document returns an empty string and no error.
func ExtractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf: %v", ErrDecodeFailure, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", ErrDecodeFailure, err)
	}
	return joinPages(pdfDocument{r: r}), nil
}

func joinPages(src pageSource) string {
	var sb strings.Builder
	for i := 1; i <= src.NumPage(); i++ {
		text, err := src.PageText(i)
		// Pages without glyphs still come back as line breaks.
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(text)
	}
	return sb.String()
}
