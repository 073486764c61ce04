package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Summarizer turns raw feedback text into a leader-ready summary and
// reconciles a summary with a sender's correction.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	Reconcile(ctx context.Context, priorSummary, correction string) (string, error)
}

// Transcriber converts a captured audio clip to plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer renders text to speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Client implements all three collaborators on top of the OpenAI API.
type Client struct {
	api          *openai.Client
	chatModel    string
	systemPrompt string
}

// NewClient creates an OpenAI-backed client with a sensible HTTP timeout.
// This prevents potential hangs from upstream API calls.
func NewClient(apiKey, chatModel, systemPrompt string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}
	return &Client{
		api:          openai.NewClientWithConfig(cfg),
		chatModel:    chatModel,
		systemPrompt: systemPrompt,
	}
}

func (c *Client) complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, c.systemPrompt, text)
}

// Reconcile resubmits a summary together with the sender's correction so the
// assistant can produce an updated summary that reflects what the sender
// actually meant.
func (c *Client) Reconcile(ctx context.Context, priorSummary, correction string) (string, error) {
	userText := fmt.Sprintf(
		"The assistant previously summarized the feedback as:\n\n%s\n\n"+
			"The sender disagrees and says:\n\n%s\n\n"+
			"Produce an updated summary that reconciles both, keeping the same structure and tone.",
		priorSummary, correction)
	return c.complete(ctx, c.systemPrompt, userText)
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.wav"
	}
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: filename,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.TTSModel1,
		Input: text,
		Voice: openai.VoiceAlloy,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading synthesized audio: %w", err)
	}
	return audio, nil
}
