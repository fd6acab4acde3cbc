package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"docqa-service/internal/ai"
	"docqa-service/internal/cache"
	"docqa-service/internal/chunker"
	"docqa-service/internal/fetch"
	"docqa-service/internal/model"
	"docqa-service/internal/retrieval"
	"docqa-service/internal/store"
)

var (
	ErrValidation = errors.New("invalid request")
	ErrNoText     = errors.New("no extractable text in document")
)

const answerErrorPrefix = "Error processing question: "

type DocumentFetcher interface {
	Fetch(ctx context.Context, documentURL string) (model.SourceDocument, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, doc model.SourceDocument) model.ExtractedText
}

type VectorEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type PurgePublisher interface {
	Publish(ctx context.Context, job model.PurgeJob) error
}

type QAOptions struct {
	TopK              int
	ContextCharBudget int
	MaxChunks         int
}

// QAService runs the ingestion and question-answering pipeline. The store and
// the purge publisher are optional.
type QAService struct {
	fetcher   DocumentFetcher
	extractor TextExtractor
	cache     cache.TextCache
	embedder  VectorEmbedder
	store     store.Store
	answerer  ai.Answerer
	publisher PurgePublisher
	opts      QAOptions

	ingestGroup singleflight.Group
}

type QAResult struct {
	Answers  []string `json:"answers"`
	Warnings []string `json:"warnings,omitempty"`
}

func NewQAService(
	fetcher DocumentFetcher,
	extractor TextExtractor,
	textCache cache.TextCache,
	embedder VectorEmbedder,
	docStore store.Store,
	answerer ai.Answerer,
	publisher PurgePublisher,
	opts QAOptions,
) *QAService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &QAService{
		fetcher:   fetcher,
		extractor: extractor,
		cache:     textCache,
		embedder:  embedder,
		store:     docStore,
		answerer:  answerer,
		publisher: publisher,
		opts:      opts,
	}
}

// documentIndex is the in-memory retrieval state of a freshly ingested document.
type documentIndex struct {
	texts    []string
	vectors  [][]float32
	warnings []string
}

type retrieveFunc func(ctx context.Context, question string) (model.RetrievalResult, error)

// Run answers every question against the document. Answers are returned in
// question order; a failed question yields a placeholder answer instead of
// failing the request.
func (s *QAService) Run(ctx context.Context, documentURL string, questions []string) (*QAResult, error) {
	documentURL = strings.TrimSpace(documentURL)
	if err := validateRequest(documentURL, questions); err != nil {
		return nil, err
	}

	var (
		retrieve retrieveFunc
		warnings []string
	)
	if s.store != nil && s.store.Exists(ctx, documentURL) {
		log.Printf("qa: %s already indexed, skipping ingestion", documentURL)
		warnings = s.store.Notes(ctx, documentURL)
		retrieve = s.storeRetriever(documentURL)
	} else {
		idx, err := s.ingest(ctx, documentURL)
		if err != nil {
			return nil, err
		}
		warnings = idx.warnings
		retrieve = s.memoryRetriever(idx)
	}

	return &QAResult{
		Answers:  s.answerAll(ctx, questions, retrieve),
		Warnings: warnings,
	}, nil
}

// ExtractText returns the document text without indexing it. An empty result
// carries the extraction warning and is not cached.
func (s *QAService) ExtractText(ctx context.Context, documentURL string) (model.ExtractedText, error) {
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		return model.ExtractedText{}, fmt.Errorf("%w: document url is required", ErrValidation)
	}
	if err := fetch.ValidateURL(documentURL); err != nil {
		return model.ExtractedText{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.documentText(ctx, documentURL)
}

// Purge removes the document from the store and the text cache.
func (s *QAService) Purge(ctx context.Context, documentURL string) error {
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		return fmt.Errorf("%w: document url is required", ErrValidation)
	}
	if s.store != nil {
		if err := s.store.Purge(ctx, documentURL); err != nil {
			return err
		}
	}
	if s.cache != nil {
		s.cache.Delete(ctx, documentURL)
	}
	log.Printf("qa: purged %s", documentURL)
	return nil
}

// RequestPurge queues the purge when a publisher is configured and runs it
// inline otherwise. It reports whether the purge was queued.
func (s *QAService) RequestPurge(ctx context.Context, documentURL string) (bool, error) {
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		return false, fmt.Errorf("%w: document url is required", ErrValidation)
	}
	if s.publisher == nil {
		return false, s.Purge(ctx, documentURL)
	}
	job := model.PurgeJob{
		ID:          uuid.NewString(),
		DocumentID:  documentURL,
		RequestedAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		return false, fmt.Errorf("enqueue purge: %w", err)
	}
	return true, nil
}

func validateRequest(documentURL string, questions []string) error {
	if documentURL == "" {
		return fmt.Errorf("%w: document url is required", ErrValidation)
	}
	if err := fetch.ValidateURL(documentURL); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrValidation)
	}
	for i, q := range questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("%w: question %d is empty", ErrValidation, i+1)
		}
	}
	return nil
}

// ingest collapses concurrent first-time ingestions of the same URL.
func (s *QAService) ingest(ctx context.Context, documentURL string) (*documentIndex, error) {
	v, err, shared := s.ingestGroup.Do(documentURL, func() (any, error) {
		return s.ingestOnce(ctx, documentURL)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Printf("qa: joined in-flight ingestion of %s", documentURL)
	}
	return v.(*documentIndex), nil
}

func (s *QAService) ingestOnce(ctx context.Context, documentURL string) (*documentIndex, error) {
	extracted, err := s.documentText(ctx, documentURL)
	if err != nil {
		return nil, err
	}
	if extracted.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoText, extracted.Warning)
	}

	idx := &documentIndex{}
	if extracted.Note != "" {
		idx.warnings = append(idx.warnings, extracted.Note)
	}

	chunks, err := chunker.Chunk(documentURL, extracted.Text, chunker.WindowSize(len(extracted.Text)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoText, err)
	}
	total := len(chunks)
	chunks, truncated := chunker.Cap(chunks, s.opts.MaxChunks)
	if truncated {
		idx.warnings = append(idx.warnings, fmt.Sprintf(
			"Only the first %d of %d chunks were indexed; answers may miss later sections of the document.",
			len(chunks), total))
	}

	idx.texts = make([]string, len(chunks))
	for i, c := range chunks {
		idx.texts[i] = c.Text
	}
	idx.vectors, err = s.embedder.Embed(ctx, idx.texts)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.Upsert(ctx, documentURL, chunks, idx.vectors, idx.warnings); err != nil {
			return nil, err
		}
	}
	log.Printf("qa: ingested %s tier=%s chunks=%d", documentURL, extracted.Tier, len(chunks))
	return idx, nil
}

// documentText serves the text from cache or runs fetch and extraction. Only
// non-empty text is cached; a hit reports the tier that originally produced it.
func (s *QAService) documentText(ctx context.Context, documentURL string) (model.ExtractedText, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, documentURL); ok && !cached.Empty() {
			log.Printf("qa: cache hit for %s tier=%s", documentURL, cached.Tier)
			cached.DocumentID = documentURL
			return cached, nil
		}
	}

	doc, err := s.fetcher.Fetch(ctx, documentURL)
	if err != nil {
		return model.ExtractedText{}, err
	}
	extracted := s.extractor.Extract(ctx, doc)
	if extracted.Empty() {
		log.Printf("qa: no text extracted from %s: %s", documentURL, extracted.Warning)
		return extracted, nil
	}
	if s.cache != nil {
		s.cache.Set(ctx, documentURL, extracted)
	}
	return extracted, nil
}

func (s *QAService) memoryRetriever(idx *documentIndex) retrieveFunc {
	return func(ctx context.Context, question string) (model.RetrievalResult, error) {
		vector, err := s.embedder.EmbedOne(ctx, question)
		if err != nil {
			return model.RetrievalResult{}, err
		}
		return retrieval.TopK(vector, idx.vectors, idx.texts, s.opts.TopK)
	}
}

func (s *QAService) storeRetriever(documentURL string) retrieveFunc {
	return func(ctx context.Context, question string) (model.RetrievalResult, error) {
		vector, err := s.embedder.EmbedOne(ctx, question)
		if err != nil {
			return model.RetrievalResult{}, err
		}
		return s.store.Query(ctx, documentURL, vector, s.opts.TopK)
	}
}

type indexedAnswer struct {
	index  int
	answer string
}

func (s *QAService) answerAll(ctx context.Context, questions []string, retrieve retrieveFunc) []string {
	results := make(chan indexedAnswer, len(questions))
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func(index int, question string) {
			defer wg.Done()
			results <- indexedAnswer{index: index, answer: s.answerOne(ctx, question, retrieve)}
		}(i, q)
	}
	wg.Wait()
	close(results)

	collected := make([]indexedAnswer, 0, len(questions))
	for r := range results {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	answers := make([]string, len(collected))
	for i, r := range collected {
		answers[i] = r.answer
	}
	return answers
}

func (s *QAService) answerOne(ctx context.Context, question string, retrieve retrieveFunc) string {
	matches, err := retrieve(ctx, question)
	if err != nil {
		log.Printf("qa: retrieval failed for %q: %v", question, err)
		return answerErrorPrefix + err.Error()
	}
	answer, err := s.answerer.Answer(ctx, question, fitContext(matches.Texts(), s.opts.ContextCharBudget))
	if err != nil {
		log.Printf("qa: synthesis failed for %q: %v", question, err)
		return answerErrorPrefix + err.Error()
	}
	return answer
}

// fitContext keeps chunks in score order until their joined length reaches
// budget, cutting the last one short. A non-positive budget keeps everything.
func fitContext(texts []string, budget int) []string {
	if budget <= 0 {
		return texts
	}
	out := make([]string, 0, len(texts))
	used := 0
	for _, t := range texts {
		if used > 0 {
			used += 2 // separator
		}
		remaining := budget - used
		if remaining <= 0 {
			break
		}
		if len(t) > remaining {
			out = append(out, truncateRunes(t, remaining))
			break
		}
		out = append(out, t)
		used += len(t)
	}
	return out
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
