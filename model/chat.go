// Package model provides LLM integration adapters for the pipeline.
package model

import "context"

// ChatModel is the interface pipeline nodes use to talk to an LLM.
//
// It abstracts the differences between providers (Anthropic, OpenAI,
// Google) behind a single chat call. Implementations should:
//   - Handle provider-specific authentication
//   - Convert the standard Message format to the provider's format
//   - Parse provider responses back into ChatOut
//   - Respect context cancellation and timeouts
//
// Example:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Summarize this article: ..."},
//	})
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is a single message in an LLM conversation.
type Message struct {
	// Role identifies the sender; use the Role* constants.
	Role string

	// Content is the message text.
	Content string
}

// Standard role constants, aligned with the conventions of the major
// providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is the result of one chat completion.
type ChatOut struct {
	// Text is the generated response.
	Text string

	// TokensUsed is the total token count reported by the provider,
	// zero when the provider does not report usage.
	TokensUsed int

	// CostUSD is the dollar cost of the call, zero when the provider
	// does not report billing.
	CostUSD float64
}
