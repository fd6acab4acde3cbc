package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrSynthesis = errors.New("answer synthesis failed")

const systemPrompt = "You answer questions about a single document. Use only the provided context. " +
	"Reply in one to three concise sentences. If the context does not contain the answer, say that the document does not specify it."

// Answerer turns a question and its supporting chunks into a short answer.
type Answerer interface {
	Answer(ctx context.Context, question string, contexts []string) (string, error)
}

// BuildPrompt renders the user turn shared by every Answerer.
func BuildPrompt(question string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, c)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// ChatAnswerer answers through an OpenAI-compatible chat completions endpoint.
type ChatAnswerer struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewChatAnswerer(client *OpenAICompatibleClient, cfg ChatConfig) *ChatAnswerer {
	return &ChatAnswerer{client: client, cfg: cfg}
}

func (a *ChatAnswerer) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPrompt(question, contexts)},
	}
	reply, err := a.client.Complete(ctx, a.cfg, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty completion", ErrSynthesis)
	}
	return reply, nil
}
