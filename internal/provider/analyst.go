package provider

import (
	"context"
	"errors"
	"strings"
)

// DefaultPrompt frames recognized text as a photographed lab report.
const DefaultPrompt = `You are a medical lab report analyzer. The user message is text recognized from a photo of a lab report and may contain OCR errors. Explain each result in plain language, point out values outside the reference ranges, and suggest questions to ask a doctor. Do not give a diagnosis. If the text is not a lab report, say so briefly.`

// Chatter is the part of a completions client an Analyst needs.
type Chatter interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Analyst runs one stateless completion per recognized text.
type Analyst struct {
	chat   Chatter
	prompt string
}

// NewAnalyst pairs a completions client with a system prompt. An empty
// prompt selects DefaultPrompt.
func NewAnalyst(chat Chatter, prompt string) *Analyst {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	return &Analyst{chat: chat, prompt: prompt}
}

// Analyze returns the model's reading of text.
func (a *Analyst) Analyze(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("analyze: empty text")
	}
	return a.chat.Chat(ctx, []Message{
		{Role: "system", Content: a.prompt},
		{Role: "user", Content: text},
	})
}
