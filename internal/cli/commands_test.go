package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-service/internal/app"
	"docqa-service/internal/model"
	"docqa-service/internal/pkg/jwtutil"
)

type fakeService struct {
	purged   []string
	released bool
}

func (f *fakeService) Run(_ context.Context, _ string, questions []string) (*app.QAResult, error) {
	answers := make([]string, len(questions))
	for i, q := range questions {
		answers[i] = strings.ToUpper(q)
	}
	return &app.QAResult{Answers: answers, Warnings: []string{"Partial coverage: 1 of 2 parts processed"}}, nil
}

func (f *fakeService) ExtractText(_ context.Context, documentURL string) (model.ExtractedText, error) {
	if documentURL == "https://example.com/broken.pdf" {
		return model.ExtractedText{}, errors.New("document fetch failed: 404")
	}
	return model.ExtractedText{DocumentID: documentURL, Text: "Lorem ipsum", Tier: model.TierStructural}, nil
}

func (f *fakeService) Purge(_ context.Context, documentURL string) error {
	f.purged = append(f.purged, documentURL)
	return nil
}

func execute(t *testing.T, svc *fakeService, args ...string) (string, error) {
	t.Helper()
	SetServiceFactory(func(context.Context) (QAService, func() error, error) {
		return svc, func() error { svc.released = true; return nil }, nil
	})
	extractJSON, askJSON, askQuestions, tokenSubject = false, false, nil, ""

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := Execute(context.Background())
	return buf.String(), err
}

func TestExtractPrintsTierAndText(t *testing.T) {
	svc := &fakeService{}
	out, err := execute(t, svc, "extract", "https://example.com/a.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "tier: structural")
	assert.Contains(t, out, "Lorem ipsum")
	assert.True(t, svc.released)
}

func TestExtractWrapsError(t *testing.T) {
	_, err := execute(t, &fakeService{}, "extract", "https://example.com/broken.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract failed")
}

func TestAskPrintsAnswersInOrder(t *testing.T) {
	out, err := execute(t, &fakeService{}, "ask", "https://example.com/a.pdf", "-q", "first", "-q", "second")
	require.NoError(t, err)

	assert.Contains(t, out, "warning: Partial coverage")
	first := strings.Index(out, "[1] first")
	second := strings.Index(out, "[2] second")
	require.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
	assert.Contains(t, out, "FIRST")
}

func TestAskRequiresQuestion(t *testing.T) {
	_, err := execute(t, &fakeService{}, "ask", "https://example.com/a.pdf")
	assert.Error(t, err)
}

func TestPurge(t *testing.T) {
	svc := &fakeService{}
	out, err := execute(t, svc, "purge", "https://example.com/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a.pdf"}, svc.purged)
	assert.Contains(t, out, "purged")
}

func TestTokenMintsVerifiableJWT(t *testing.T) {
	SetJWT("s3cret", time.Hour)
	defer SetJWT("", 0)

	out, err := execute(t, &fakeService{}, "token", "--subject", "nightly-batch")
	require.NoError(t, err)

	claims, err := jwtutil.ParseToken("s3cret", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "nightly-batch", claims.Subject)
}

func TestTokenWithoutSecret(t *testing.T) {
	SetJWT("", 0)
	_, err := execute(t, &fakeService{}, "token", "--subject", "x")
	assert.Error(t, err)
}
