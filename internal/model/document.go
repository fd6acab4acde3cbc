package model

// Tier records which extraction strategy produced a document's text.
type Tier string

const (
	TierNone          Tier = "none"
	TierStructural    Tier = "structural"
	TierConverted     Tier = "converted"
	TierOCR           Tier = "ocr"
	TierHeuristic     Tier = "heuristic"
	TierSplitCombined Tier = "split-combined"
)

// SourceDocument holds downloaded document bytes for the duration of one request.
type SourceDocument struct {
	ID   string // source URL
	Data []byte
	Size int64
	// PageCount is 0 until a structural load has counted the pages.
	PageCount int
}

// ExtractedText is the outcome of the extraction tier chain. Text is empty only
// when every tier failed, in which case Warning explains why.
type ExtractedText struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Tier       Tier   `json:"tier"`
	Note       string `json:"note,omitempty"`
	Warning    string `json:"warning,omitempty"`
}

func (e ExtractedText) Empty() bool {
	return e.Text == ""
}
