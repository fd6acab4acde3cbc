// Package pdfsplit cuts page ranges out of a PDF. Pages are counted with
// ledongthuc/pdf; ranges are written with unipdf, which needs a metered key.
package pdfsplit

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/model"

	"docqa-service/internal/pkg/pdfextract"
)

var ErrNoLicense = errors.New("unidoc license key is required to split pdfs")

type Splitter struct {
	countPages func(data []byte) (int, error)
}

// New registers the metered licence key. Without one unipdf refuses to
// write, so no splitter is returned.
func New(licenseKey string) (*Splitter, error) {
	if licenseKey == "" {
		return nil, ErrNoLicense
	}
	if err := license.SetMeteredKey(licenseKey); err != nil {
		return nil, fmt.Errorf("set unidoc license key failed: %w", err)
	}
	return newSplitter(), nil
}

func newSplitter() *Splitter {
	return &Splitter{countPages: pdfextract.PageCount}
}

func (s *Splitter) PageCount(data []byte) (int, error) {
	pages, err := s.countPages(data)
	if err != nil {
		return 0, fmt.Errorf("count pages failed: %w", err)
	}
	return pages, nil
}

// Range writes pages [start, end] (zero-based, inclusive) into a new PDF.
// Each call opens its own reader so ranges can be cut concurrently.
func (s *Splitter) Range(data []byte, start, end int) (out []byte, err error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid page range %d-%d", start, end)
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("split pages %d-%d panicked: %v", start, end, r)
		}
	}()

	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	writer := model.NewPdfWriter()
	for i := start; i <= end; i++ {
		page, err := reader.GetPage(i + 1)
		if err != nil {
			return nil, fmt.Errorf("get page %d failed: %w", i+1, err)
		}
		if err := writer.AddPage(page); err != nil {
			return nil, fmt.Errorf("add page %d failed: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := writer.Write(&buf); err != nil {
		return nil, fmt.Errorf("write part failed: %w", err)
	}
	return buf.Bytes(), nil
}
