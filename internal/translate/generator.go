package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ModelGenerator runs translation prompts against an eino chat model. A low
// temperature keeps the short deterministic generation mode the pipeline
// expects.
type ModelGenerator struct {
	chatModel model.ChatModel
}

// NewModelGenerator wraps an already configured chat model.
func NewModelGenerator(chatModel model.ChatModel) *ModelGenerator {
	return &ModelGenerator{chatModel: chatModel}
}

// Generate sends one system+user exchange and returns the trimmed reply.
func (g *ModelGenerator) Generate(ctx context.Context, prompt, instruction string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(instruction),
		schema.UserMessage(prompt),
	}

	resp, err := g.chatModel.Generate(ctx, messages, model.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("run translation model: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
