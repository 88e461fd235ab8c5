package ai

import (
	"context"
	"fmt"
	"strings"

	gUtil "github.com/CaptainCrouton89/Saturn-sub003/internal/util"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

type extractedEntity struct {
	Name        string   `json:"name" jsonschema_description:"Name of the entity exactly as mentioned in the text"`
	Kind        string   `json:"kind" jsonschema_description:"One of the allowed entity kinds"`
	Description string   `json:"description" jsonschema_description:"Comprehensive description of what the source says about this entity"`
	Context     string   `json:"context" jsonschema_description:"Short quote or paraphrase of where the entity appears in the text"`
	Subpoints   []string `json:"subpoints" jsonschema_description:"Short supporting fragments about the entity, near-verbatim"`
	Confidence  float64  `json:"confidence" jsonschema_description:"Confidence between 0 and 1 that this is a real, distinct entity"`
}

type extractResponse struct {
	Entities []extractedEntity `json:"entities" jsonschema_description:"Entities identified in the source text"`
}

// CallExtractAI extracts candidate entities from normalized source chunks.
// Candidates with unknown kinds or blank names are dropped, not errors.
// Embeddings are attached by the caller afterwards.
func CallExtractAI(
	ctx context.Context,
	chunks []string,
	participants []string,
	aiClient MemoryAIClient,
	maxRetries int,
) ([]common.Candidate, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	kinds := make([]string, 0, len(common.EntityKinds))
	for _, k := range common.EntityKinds {
		kinds = append(kinds, string(k))
	}

	prompt := fmt.Sprintf(
		ExtractPrompt,
		strings.Join(participants, ", "),
		strings.Join(kinds, ", "),
		strings.Join(chunks, "\n\n"),
	)

	var res extractResponse
	err := gUtil.RetryErrWithContext(ctx, maxRetries, func(ctx context.Context) error {
		return aiClient.GenerateCompletionWithFormat(
			ctx, "extract_entities", "Extract named entities from a personal free-text source.", prompt, &res,
		)
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]common.Candidate, 0, len(res.Entities))
	for _, e := range res.Entities {
		name := strings.TrimSpace(e.Name)
		kind := common.NodeKind(strings.ToLower(strings.TrimSpace(e.Kind)))
		if name == "" || !kind.Valid() {
			continue
		}
		confidence := e.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}
		candidates = append(candidates, common.Candidate{
			Name:        name,
			Kind:        kind,
			Description: strings.TrimSpace(e.Description),
			Context:     strings.TrimSpace(e.Context),
			Subpoints:   e.Subpoints,
			Confidence:  confidence,
		})
	}

	return candidates, nil
}
