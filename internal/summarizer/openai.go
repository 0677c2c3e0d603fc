package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const (
	// Worst case is one token per character, as with Cyrillic or emoji.
	tokensPerChar int64 = 1
	// Room for the low effort reasoning that precedes the answer.
	reasoningTokens int64 = 1024
	// Budget assumed when the caller gives none: a media caption.
	defaultBudgetChars     = 1024
	maxOutputTokensCeiling = 16384
	outputTokensGrowth     = 2

	systemPrompt = `Shorten the social media post so it fits into a Telegram caption.

Rules:
- Keep it under the character budget given in the request.
- Keep names, dates, numbers, places and calls to action.
- Keep the author's voice and the original language.
- Drop hashtag walls, repeated emojis and filler.
- Plain text only, no markdown, no quotes around the result.`
)

// OpenAISummarizer shortens post texts with OpenAI's Responses API.
type OpenAISummarizer struct {
	client openai.Client
}

func NewOpenAISummarizer(apiKey string, opts ...option.RequestOption) (*OpenAISummarizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is empty")
	}

	return &OpenAISummarizer{
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
	}, nil
}

// Summarize asks for a text within input.MaxChars. When the model runs out of
// output tokens the request is repeated with a larger allowance, up to a
// ceiling derived from the same budget.
func (s *OpenAISummarizer) Summarize(ctx context.Context, input Input) (string, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return "", errors.New("input is empty")
	}

	prompt := userPrompt(input.MaxChars, input.SourceURL, text)
	tokens, ceiling := outputTokenBudget(input.MaxChars)

	for {
		resp, err := s.client.Responses.New(ctx, responses.ResponseNewParams{
			Model:           openai.ChatModelGPT5Mini2025_08_07,
			ServiceTier:     responses.ResponseNewParamsServiceTierFlex,
			MaxOutputTokens: openai.Int(tokens),
			Reasoning: responses.ReasoningParam{
				Effort: openai.ReasoningEffortLow,
			},
			Instructions: openai.String(systemPrompt),
			Input: responses.ResponseNewParamsInputUnion{
				OfString: openai.String(prompt),
			},
		})
		if err != nil {
			return "", fmt.Errorf("create response: %w", err)
		}

		if resp.Status == responses.ResponseStatusIncomplete {
			reason := resp.IncompleteDetails.Reason
			if reason == "max_output_tokens" && tokens < ceiling {
				tokens = min(tokens*outputTokensGrowth, ceiling)
				continue
			}

			return "", fmt.Errorf("response is incomplete: reason %q with %d output tokens", reason, tokens)
		}

		summary := strings.TrimSpace(resp.OutputText())
		if summary == "" {
			return "", fmt.Errorf("response has no text: status %q", resp.Status)
		}

		return summary, nil
	}
}

// outputTokenBudget returns the first output token allowance for a text of
// maxChars and the ceiling retries may grow it to.
func outputTokenBudget(maxChars int) (first int64, ceiling int64) {
	if maxChars <= 0 {
		maxChars = defaultBudgetChars
	}

	first = int64(maxChars)*tokensPerChar + reasoningTokens
	ceiling = min(first*4, maxOutputTokensCeiling)

	return min(first, ceiling), ceiling
}

func userPrompt(maxChars int, sourceURL string, text string) string {
	var b strings.Builder

	if maxChars > 0 {
		fmt.Fprintf(&b, "Budget: %d characters\n", maxChars)
	}
	if sourceURL = strings.TrimSpace(sourceURL); sourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n", sourceURL)
	}
	b.WriteString("Content:\n")
	b.WriteString(text)

	return b.String()
}
