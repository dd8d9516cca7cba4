// Package pdfutil sanity-checks that a declared scannable item is a
// well-formed, parseable PDF before an envelope is considered buildable.
// The pipeline has no OCR or text-extraction requirement of its own, but
// ledongthuc/pdf's page-walking is the cheapest available proof that a PDF
// is not corrupt, so the teacher's extraction routine is kept and
// repurposed as an integrity check rather than dropped.
package pdfutil

import (
	"bytes"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// CheckIntegrity parses data as a PDF and walks every page, returning the
// page count and an error if the document is truncated, malformed, or has
// no pages.
func CheckIntegrity(data []byte) (int, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	if total < 1 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			return 0, fmt.Errorf("page %d is null", page)
		}
	}
	return total, nil
}
