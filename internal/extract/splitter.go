package extract

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"docqa-service/internal/model"
)

type SplitOptions struct {
	ThresholdBytes       int
	PageCountTimeout     time.Duration
	TextPagesPerPart     int
	ScannedPagesPerPart  int
	ScannedPageCeiling   int
	MaxPartsFirstPass    int
	MaxPartsRetryPass    int
	PartConcurrency      int
	RetryPartConcurrency int
	PartCreateTimeout    time.Duration
	PartTimeout          time.Duration
}

func (o SplitOptions) withDefaults() SplitOptions {
	if o.TextPagesPerPart <= 0 {
		o.TextPagesPerPart = 100
	}
	if o.ScannedPagesPerPart <= 0 {
		o.ScannedPagesPerPart = 40
	}
	if o.PartConcurrency <= 0 {
		o.PartConcurrency = 3
	}
	if o.RetryPartConcurrency <= 0 {
		o.RetryPartConcurrency = o.PartConcurrency
	}
	return o
}

// Part is a zero-based, inclusive page range.
type Part struct {
	Index int
	Start int
	End   int
}

func (p Part) Pages() int { return p.End - p.Start + 1 }

// PagesPerPart treats documents with more than ScannedPageCeiling pages as
// scanned, which the remote services accept in smaller pieces.
func PagesPerPart(pages int, o SplitOptions) int {
	o = o.withDefaults()
	if o.ScannedPageCeiling > 0 && pages > o.ScannedPageCeiling {
		return o.ScannedPagesPerPart
	}
	return o.TextPagesPerPart
}

// PlanParts covers pages [0, pages-1] with contiguous, non-overlapping parts
// of at most perPart pages.
func PlanParts(pages, perPart int) []Part {
	if pages <= 0 {
		return nil
	}
	if perPart <= 0 {
		perPart = pages
	}
	parts := make([]Part, 0, (pages+perPart-1)/perPart)
	for start := 0; start < pages; start += perPart {
		end := min(start+perPart, pages) - 1
		parts = append(parts, Part{Index: len(parts), Start: start, End: end})
	}
	return parts
}

func (e *Extractor) extractSplit(ctx context.Context, doc model.SourceDocument) (model.ExtractedText, bool) {
	pages, err := runWithTimeout(ctx, e.split.PageCountTimeout, func() (int, error) {
		return e.splitter.PageCount(doc.Data)
	})
	if err != nil || pages <= 0 {
		log.Printf("extract: page count failed for %s: %v", doc.ID, err)
		return model.ExtractedText{}, false
	}

	perPart := PagesPerPart(pages, e.split)
	plan := PlanParts(pages, perPart)
	texts := e.runParts(ctx, doc, plan, e.split.MaxPartsFirstPass, e.split.PartConcurrency)
	log.Printf("extract: split %s (%d pages) into %d parts of %d pages, %d of %d attempted parts succeeded",
		doc.ID, pages, len(plan), perPart, countNonEmpty(texts), len(texts))

	if countNonEmpty(texts) == 0 {
		if ctx.Err() != nil {
			return model.ExtractedText{}, false
		}
		perPart = max(perPart/2, 1)
		plan = PlanParts(pages, perPart)
		texts = e.runParts(ctx, doc, plan, e.split.MaxPartsRetryPass, e.split.RetryPartConcurrency)
		log.Printf("extract: retry split %s into %d parts of %d pages, %d of %d attempted parts succeeded",
			doc.ID, len(plan), perPart, countNonEmpty(texts), len(texts))
	}
	if countNonEmpty(texts) == 0 {
		return model.ExtractedText{}, false
	}

	text, note := combineParts(texts, len(plan))
	return model.ExtractedText{
		DocumentID: doc.ID,
		Text:       text,
		Tier:       model.TierSplitCombined,
		Note:       note,
	}, true
}

// runParts processes the first maxParts parts of plan with bounded
// concurrency. A failed part leaves an empty slot and never cancels siblings.
func (e *Extractor) runParts(ctx context.Context, doc model.SourceDocument, plan []Part, maxParts, concurrency int) []string {
	limit := len(plan)
	if maxParts > 0 && maxParts < limit {
		limit = maxParts
	}
	texts := make([]string, limit)

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	for _, part := range plan[:limit] {
		g.Go(func() error {
			texts[part.Index] = e.processPart(ctx, doc, part)
			return nil
		})
	}
	_ = g.Wait()
	return texts
}

func (e *Extractor) processPart(ctx context.Context, doc model.SourceDocument, part Part) string {
	partCtx, cancel := withOptionalTimeout(ctx, e.split.PartTimeout)
	defer cancel()

	// Parts are cut only when a worker picks them up, so at most
	// `concurrency` part copies are held at once.
	data, err := runWithTimeout(partCtx, e.split.PartCreateTimeout, func() ([]byte, error) {
		return e.splitter.Range(doc.Data, part.Start, part.End)
	})
	if err != nil {
		log.Printf("extract: create part %d (pages %d-%d) of %s failed: %v", part.Index+1, part.Start+1, part.End+1, doc.ID, err)
		return ""
	}

	res := e.runChain(partCtx, fmt.Sprintf("%s#part%d", doc.ID, part.Index+1), data, e.partTiers)
	return res.Text
}

func combineParts(texts []string, total int) (text, note string) {
	var b strings.Builder
	for i, t := range texts {
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Part %d ---\n\n%s", i+1, t)
	}
	if len(texts) < total {
		note = fmt.Sprintf("Partial coverage: %d of %d parts processed", len(texts), total)
		b.WriteString("\n\n[" + note + "]")
	}
	return b.String(), note
}

func countNonEmpty(texts []string) int {
	n := 0
	for _, t := range texts {
		if t != "" {
			n++
		}
	}
	return n
}
