package ai

import (
	"context"
	"fmt"
	"strings"

	gUtil "github.com/CaptainCrouton89/Saturn-sub003/internal/util"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

type disambiguateResponse struct {
	MatchIndex int    `json:"match_index" jsonschema_description:"Zero-based index of the matching candidate, or -1 if none match"`
	Reason     string `json:"reason" jsonschema_description:"One sentence explaining the decision"`
}

// CallDisambiguateAI asks the model whether the extracted candidate is the same
// real-world entity as one of the stored nodes. It returns the index into
// stored of the chosen match, or -1 when the model picks none (or returns an
// index outside the candidate list, which is treated as no match).
func CallDisambiguateAI(
	ctx context.Context,
	candidate common.Candidate,
	stored []*common.Node,
	aiClient MemoryAIClient,
	maxRetries int,
) (int, error) {
	if aiClient == nil {
		return -1, fmt.Errorf("ai client is nil")
	}
	if len(stored) == 0 {
		return -1, nil
	}

	var sb strings.Builder
	for i, node := range stored {
		fmt.Fprintf(&sb, "%d. %s (%s): %s\n", i, node.Name, node.Kind, node.Description)
	}

	prompt := fmt.Sprintf(
		DisambiguatePrompt,
		candidate.Name,
		candidate.Kind,
		candidate.Description,
		candidate.Context,
		sb.String(),
	)

	var res disambiguateResponse
	err := gUtil.RetryErrWithContext(ctx, maxRetries, func(ctx context.Context) error {
		return aiClient.GenerateCompletionWithFormat(
			ctx, "disambiguate_entity", "Decide whether a new entity matches a stored one.", prompt, &res,
		)
	})
	if err != nil {
		return -1, err
	}

	if res.MatchIndex < 0 || res.MatchIndex >= len(stored) {
		return -1, nil
	}
	return res.MatchIndex, nil
}
