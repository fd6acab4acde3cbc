package extract

import (
	"context"
	"regexp"
	"strings"

	"docqa-service/internal/model"
)

const defaultHeuristicScanBytes = 5 << 20

var (
	parenRun   = regexp.MustCompile(`\(([^()\r\n]{10,})\)`)
	bracketRun = regexp.MustCompile(`\[([^\[\]\r\n]{10,})\]`)
	quoteRun   = regexp.MustCompile(`"([^"\r\n]{10,})"`)
	hasLetter  = regexp.MustCompile(`\p{L}`)
)

// HeuristicTier recovers readable runs straight from the raw bytes. It is the
// last resort and always succeeds, possibly with empty text.
type HeuristicTier struct {
	scanBytes int
}

func NewHeuristicTier(scanBytes int) *HeuristicTier {
	if scanBytes <= 0 {
		scanBytes = defaultHeuristicScanBytes
	}
	return &HeuristicTier{scanBytes: scanBytes}
}

func (t *HeuristicTier) Name() model.Tier { return model.TierHeuristic }

func (t *HeuristicTier) Run(_ context.Context, data []byte) Result {
	if len(data) > t.scanBytes {
		data = data[:t.scanBytes]
	}
	return succeeded(ScanDelimited(string(data)))
}

// ScanDelimited collects parenthesised, bracketed and quoted runs of at least
// ten characters containing a letter. Runs are aggregated per delimiter style
// and the longest aggregate is returned.
func ScanDelimited(raw string) string {
	best := ""
	for _, re := range []*regexp.Regexp{parenRun, bracketRun, quoteRun} {
		var runs []string
		for _, m := range re.FindAllStringSubmatch(raw, -1) {
			run := strings.TrimSpace(m[1])
			if hasLetter.MatchString(run) {
				runs = append(runs, run)
			}
		}
		if joined := strings.Join(runs, " "); len(joined) > len(best) {
			best = joined
		}
	}
	return best
}
