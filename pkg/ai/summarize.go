package ai

import (
	"context"
	"fmt"
	"strings"

	gUtil "github.com/CaptainCrouton89/Saturn-sub003/internal/util"
)

// CallSummarizeAI produces a one or two sentence episodic description of a
// source text. Empty input is an error: the source node requires a summary,
// so the caller must abort rather than persist a blank one.
func CallSummarizeAI(
	ctx context.Context,
	text string,
	aiClient MemoryAIClient,
	maxRetries int,
) (string, error) {
	if aiClient == nil {
		return "", fmt.Errorf("ai client is nil")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("cannot summarize empty input")
	}

	prompt := fmt.Sprintf(SummarizePrompt, text)

	res, err := gUtil.RetryWithContext(ctx, maxRetries, func(ctx context.Context) (string, error) {
		out, err := aiClient.GenerateCompletion(ctx, prompt)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(out) == "" {
			return "", fmt.Errorf("model returned empty summary")
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}

	return gUtil.CollapseWhitespace(res), nil
}
