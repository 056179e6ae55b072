package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/stackline/ctxbudget/session"
)

// Summarizer condenses a bounded range of conversation units into a single
// textual digest. It is the only external collaborator of the engine and
// the only operation expected to block for a non-trivial duration.
//
// Implementations must respect ctx cancellation; the engine enforces
// Policy.SummarizerWait around every call.
type Summarizer interface {
	// Summarize returns a digest of the given units, aiming for at most
	// maxTokens of output. Units arrive in id order.
	Summarize(ctx context.Context, units []*session.ContentUnit, maxTokens int) (string, error)
}

// AnthropicSummarizer produces digests with Claude's streaming API.
type AnthropicSummarizer struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicSummarizer creates a summarizer using the given client and
// model. A fast, cheap model is recommended.
func NewAnthropicSummarizer(client *anthropic.Client, model string) *AnthropicSummarizer {
	return &AnthropicSummarizer{client: client, model: model}
}

// Summarize implements Summarizer.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, units []*session.ContentUnit, maxTokens int) (string, error) {
	if len(units) == 0 {
		return "", NewError("Summarize", ErrNoHistoryToCompact)
	}

	userPrompt := BuildDigestUserPrompt(FormatUnitsAsText(units))

	stream := s.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: DigestSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("%w: failed to accumulate stream: %v", ErrSummarizationUnavailable, err)
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrSummarizationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrSummarizationUnavailable, err)
	}

	var digest strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			digest.WriteString(text.Text)
		}
	}
	if digest.Len() == 0 {
		return "", fmt.Errorf("%w: empty response from summarizer", ErrSummarizationUnavailable)
	}

	return digest.String(), nil
}

// FormatUnitsAsText renders units in a plain transcript form suitable for
// the summarization prompt. Long tool results are abbreviated; they carry
// the least recoverable meaning per token.
func FormatUnitsAsText(units []*session.ContentUnit) string {
	var sb strings.Builder
	for _, u := range units {
		body := u.Body
		if u.Origin == session.OriginToolResult && len(body) > 500 {
			body = body[:497] + "..."
		}
		fmt.Fprintf(&sb, "[%s] %s\n", roleLabel(u.Origin), body)
	}
	return sb.String()
}

func roleLabel(origin session.Origin) string {
	switch origin {
	case session.OriginUserInput:
		return "user"
	case session.OriginAgentOutput:
		return "assistant"
	case session.OriginToolResult:
		return "tool result"
	case session.OriginSystemDirective:
		return "system"
	case session.OriginCompactionDigest:
		return "earlier summary"
	default:
		return string(origin)
	}
}
