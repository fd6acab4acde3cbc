// Package pdfextract reads the text layer of a PDF with ledongthuc/pdf.
package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("pdf has no pages")

// ExtractText walks the pages in order and concatenates their plain text.
// Pages whose text cannot be decoded are skipped. Malformed input makes the
// parser panic; that is reported as an error.
func ExtractText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("parse pdf panicked: %v", r)
		}
	}()

	reader, err := open(data)
	if err != nil {
		return "", 0, err
	}

	pages = reader.NumPage()
	if pages == 0 {
		return "", 0, ErrEmptyDocument
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}
	return b.String(), pages, nil
}

// PageCount loads only the page tree.
func PageCount(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("parse pdf panicked: %v", r)
		}
	}()

	reader, err := open(data)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

func open(data []byte) (*pdf.Reader, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}
	return reader, nil
}
