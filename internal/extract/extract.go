// Package extract turns PDF bytes into text through an ordered chain of
// strategies, falling through to the next on recoverable failure.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"docqa-service/internal/model"
)

var (
	ErrNoText      = errors.New("no text found")
	ErrUnavailable = errors.New("tier unavailable")
)

type Outcome int

const (
	Success Outcome = iota
	Recoverable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Recoverable:
		return "recoverable"
	default:
		return "fatal"
	}
}

// Result is what a tier reports: text on Success, the cause otherwise.
// Fatal stops the chain; Recoverable moves on to the next tier.
type Result struct {
	Outcome Outcome
	Text    string
	Err     error
}

func succeeded(text string) Result { return Result{Outcome: Success, Text: text} }
func recoverable(err error) Result { return Result{Outcome: Recoverable, Err: err} }
func fatal(err error) Result       { return Result{Outcome: Fatal, Err: err} }

// Tier is one extraction strategy.
type Tier interface {
	Name() model.Tier
	Run(ctx context.Context, data []byte) Result
}

// Converter is a remote service able to extract text from, or OCR, a PDF.
type Converter interface {
	Available() bool
	ExtractText(ctx context.Context, data []byte) (string, error)
	OCR(ctx context.Context, data []byte) ([]byte, error)
}

// PageSplitter counts pages and cuts zero-based inclusive page ranges.
type PageSplitter interface {
	PageCount(data []byte) (int, error)
	Range(data []byte, start, end int) ([]byte, error)
}

type Options struct {
	StructuralTimeout  time.Duration
	ConversionTimeout  time.Duration
	OCRTimeout         time.Duration
	MinTextChars       int
	HeuristicScanBytes int
	Split              SplitOptions
}

type Extractor struct {
	tiers     []Tier
	partTiers []Tier
	splitter  PageSplitter
	split     SplitOptions
}

// New wires the standard chain: structural, converted, OCR, heuristic. Split
// parts run the same chain minus the heuristic scan. conv and splitter may
// be nil.
func New(opts Options, conv Converter, splitter PageSplitter) *Extractor {
	structural := NewStructuralTier(nil, opts.StructuralTimeout, opts.MinTextChars)
	converted := NewConversionTier(conv, opts.ConversionTimeout, opts.MinTextChars)
	ocr := NewOCRTier(conv, structural, opts.OCRTimeout)
	heuristic := NewHeuristicTier(opts.HeuristicScanBytes)

	return NewWithTiers(
		[]Tier{structural, converted, ocr, heuristic},
		[]Tier{structural, converted, ocr},
		splitter,
		opts.Split,
	)
}

func NewWithTiers(tiers, partTiers []Tier, splitter PageSplitter, split SplitOptions) *Extractor {
	return &Extractor{
		tiers:     tiers,
		partTiers: partTiers,
		splitter:  splitter,
		split:     split.withDefaults(),
	}
}

// Extract never fails: when no tier yields text the result is empty and
// carries a warning.
func (e *Extractor) Extract(ctx context.Context, doc model.SourceDocument) model.ExtractedText {
	if len(doc.Data) == 0 {
		return noText(doc.ID, "no text extracted: document is empty")
	}

	if e.splitter != nil && e.split.ThresholdBytes > 0 && len(doc.Data) > e.split.ThresholdBytes {
		if res, ok := e.extractSplit(ctx, doc); ok {
			return res
		}
		log.Printf("extract: split extraction yielded nothing for %s, trying whole document", doc.ID)
	}
	return e.runChain(ctx, doc.ID, doc.Data, e.tiers)
}

// runChain reports the first real tier failure when nothing yields text.
// Unavailable tiers and empty successes are reported only when no tier failed.
func (e *Extractor) runChain(ctx context.Context, documentID string, data []byte, tiers []Tier) model.ExtractedText {
	var firstErr, fallbackErr error
	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return noText(documentID, fmt.Sprintf("extraction aborted: %v", err))
		}

		started := time.Now()
		res := tier.Run(ctx, data)
		switch {
		case res.Outcome == Success && strings.TrimSpace(res.Text) != "":
			log.Printf("extract: %s tier succeeded for %s in %s (%d chars)", tier.Name(), documentID, time.Since(started).Round(time.Millisecond), len(res.Text))
			return model.ExtractedText{DocumentID: documentID, Text: res.Text, Tier: tier.Name()}
		case res.Outcome == Success:
			if fallbackErr == nil {
				fallbackErr = ErrNoText
			}
		case res.Outcome == Fatal:
			return noText(documentID, fmt.Sprintf("extraction aborted in %s tier: %v", tier.Name(), res.Err))
		case errors.Is(res.Err, ErrUnavailable):
			if fallbackErr == nil {
				fallbackErr = res.Err
			}
		default:
			log.Printf("extract: %s tier failed for %s: %v", tier.Name(), documentID, res.Err)
			if firstErr == nil {
				firstErr = res.Err
			}
		}
	}
	if firstErr == nil {
		firstErr = fallbackErr
	}
	if firstErr == nil {
		firstErr = ErrNoText
	}
	return noText(documentID, fmt.Sprintf("no text extracted: %v", firstErr))
}

func noText(documentID, warning string) model.ExtractedText {
	return model.ExtractedText{DocumentID: documentID, Tier: model.TierNone, Warning: warning}
}

// runWithTimeout runs fn, giving up once ctx is done or timeout elapses. An
// abandoned fn keeps running in the background until it returns.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case o := <-done:
		return o.v, o.err
	}
}
