// Package transcribe submits container-encoded utterances to a hosted
// speech-to-text service.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client transcribes WAV-encoded utterances via the OpenAI audio API.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a transcription client. model defaults to whisper-1.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = openai.Whisper1
	}
	return &Client{api: openai.NewClient(apiKey), model: model}
}

// Transcribe sends one WAV container and returns the recognized text,
// trimmed. An empty result means the utterance carried no recognizable
// speech.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
