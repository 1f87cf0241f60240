// Package google adapts Google's Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Viraj97-SL/AI-News-Analyzer/model"
)

const defaultModel = "gemini-2.0-flash"

// ChatModel implements model.ChatModel for Gemini.
//
// Safe for concurrent use after creation. Close releases the underlying
// gRPC connection.
type ChatModel struct {
	client    *genai.Client
	modelName string
}

// NewChatModel creates a Gemini-backed ChatModel. An empty modelName uses
// a current Flash model.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{client: client, modelName: modelName}, nil
}

// Chat implements model.ChatModel. System messages become the system
// instruction; the rest of the conversation is sent as alternating chat
// history with the last message as the prompt.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	gm := m.client.GenerativeModel(m.modelName)

	var conversation []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}}
			continue
		}
		conversation = append(conversation, msg)
	}
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("no user messages to send")
	}

	session := gm.StartChat()
	for _, msg := range conversation[:len(conversation)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(conversation[len(conversation)-1].Content))
	if err != nil {
		return model.ChatOut{}, err
	}

	tokensUsed := 0
	if resp.UsageMetadata != nil {
		tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ChatOut{}, errors.New("empty response from Gemini API")
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	if text == "" {
		return model.ChatOut{}, errors.New("no text part in Gemini response")
	}

	return model.ChatOut{Text: text, TokensUsed: tokensUsed}, nil
}

// Close releases the underlying client connection.
func (m *ChatModel) Close() error {
	return m.client.Close()
}
