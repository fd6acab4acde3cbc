package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"docqa-service/internal/converter"
	"docqa-service/internal/model"
	"docqa-service/internal/pkg/pdfextract"
)

// ParseFunc reads the text layer of a PDF and reports its page count.
type ParseFunc func(data []byte) (text string, pages int, err error)

type StructuralTier struct {
	parse    ParseFunc
	timeout  time.Duration
	minChars int
}

// NewStructuralTier uses pdfextract.ExtractText when parse is nil.
func NewStructuralTier(parse ParseFunc, timeout time.Duration, minChars int) *StructuralTier {
	if parse == nil {
		parse = pdfextract.ExtractText
	}
	return &StructuralTier{parse: parse, timeout: timeout, minChars: minChars}
}

func (t *StructuralTier) Name() model.Tier { return model.TierStructural }

func (t *StructuralTier) Run(ctx context.Context, data []byte) Result {
	text, err := runWithTimeout(ctx, t.timeout, func() (string, error) {
		text, _, err := t.parse(data)
		return text, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return fatal(ctx.Err())
		}
		return recoverable(fmt.Errorf("structural parse: %w", err))
	}
	if len(strings.TrimSpace(text)) < max(t.minChars, 1) {
		return recoverable(fmt.Errorf("structural parse: %w (%d chars)", ErrNoText, len(strings.TrimSpace(text))))
	}
	return succeeded(text)
}

type ConversionTier struct {
	conv     Converter
	timeout  time.Duration
	minChars int
}

func NewConversionTier(conv Converter, timeout time.Duration, minChars int) *ConversionTier {
	return &ConversionTier{conv: conv, timeout: timeout, minChars: minChars}
}

func (t *ConversionTier) Name() model.Tier { return model.TierConverted }

func (t *ConversionTier) Run(ctx context.Context, data []byte) Result {
	if t.conv == nil || !t.conv.Available() {
		return recoverable(ErrUnavailable)
	}

	runCtx, cancel := withOptionalTimeout(ctx, t.timeout)
	defer cancel()

	text, err := t.conv.ExtractText(runCtx, data)
	if err != nil {
		if ctx.Err() != nil {
			return fatal(ctx.Err())
		}
		if errors.Is(err, converter.ErrPageLimit) {
			log.Printf("extract: remote conversion rejected document over page limit: %v", err)
		}
		return recoverable(fmt.Errorf("remote conversion: %w", err))
	}
	if len(strings.TrimSpace(text)) < max(t.minChars, 1) {
		return recoverable(fmt.Errorf("remote conversion: %w", ErrNoText))
	}
	return succeeded(text)
}

// OCRTier sends the document for OCR and re-parses the searchable PDF that
// comes back with the structural tier.
type OCRTier struct {
	conv    Converter
	reparse *StructuralTier
	timeout time.Duration
}

func NewOCRTier(conv Converter, reparse *StructuralTier, timeout time.Duration) *OCRTier {
	return &OCRTier{conv: conv, reparse: reparse, timeout: timeout}
}

func (t *OCRTier) Name() model.Tier { return model.TierOCR }

func (t *OCRTier) Run(ctx context.Context, data []byte) Result {
	if t.conv == nil || !t.conv.Available() {
		return recoverable(ErrUnavailable)
	}

	runCtx, cancel := withOptionalTimeout(ctx, t.timeout)
	searchable, err := t.conv.OCR(runCtx, data)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return fatal(ctx.Err())
		}
		if errors.Is(err, converter.ErrPageLimit) {
			log.Printf("extract: remote ocr rejected document over page limit: %v", err)
		}
		return recoverable(fmt.Errorf("remote ocr: %w", err))
	}

	res := t.reparse.Run(ctx, searchable)
	if res.Outcome == Recoverable {
		return recoverable(fmt.Errorf("ocr output: %w", res.Err))
	}
	return res
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
