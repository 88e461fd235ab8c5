package ai

import (
	"context"
	"fmt"
	"strings"

	gUtil "github.com/CaptainCrouton89/Saturn-sub003/internal/util"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

// RelationProposal is one model-proposed relationship between the subject
// entity and a neighbour, identified by the neighbour's name.
type RelationProposal struct {
	NeighborName     string  `json:"neighbor_name" jsonschema_description:"Name of the neighbour exactly as listed"`
	RelationshipType string  `json:"relationship_type" jsonschema_description:"Single lower-case word naming the relationship"`
	Attitude         int     `json:"attitude" jsonschema_description:"1-5, how positively the subject regards the object"`
	Proximity        int     `json:"proximity" jsonschema_description:"1-5, how close or involved the subject is with the object"`
	Description      string  `json:"description" jsonschema_description:"One sentence describing the relationship"`
	Confidence       float64 `json:"confidence" jsonschema_description:"Confidence between 0 and 1 that the source supports this relationship"`
}

type relateResponse struct {
	Relationships []RelationProposal `json:"relationships" jsonschema_description:"Proposed relationships, at most one per neighbour"`
}

// CallRelateAI proposes relationships between the subject node and the given
// neighbours. Proposals naming a neighbour outside the list are dropped and
// attitude/proximity are clamped to the 1-5 scale.
func CallRelateAI(
	ctx context.Context,
	subject *common.Node,
	neighbors []*common.Node,
	aiClient MemoryAIClient,
	maxRetries int,
) ([]RelationProposal, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	if subject == nil || len(neighbors) == 0 {
		return nil, nil
	}

	known := make(map[string]bool, len(neighbors))
	var sb strings.Builder
	for _, n := range neighbors {
		known[strings.ToLower(n.Name)] = true
		fmt.Fprintf(&sb, "- %s (%s): %s\n", n.Name, n.Kind, n.Description)
	}

	prompt := fmt.Sprintf(
		RelationshipPrompt,
		subject.Name,
		subject.Kind,
		subject.Description,
		sb.String(),
	)

	var res relateResponse
	err := gUtil.RetryErrWithContext(ctx, maxRetries, func(ctx context.Context) error {
		return aiClient.GenerateCompletionWithFormat(
			ctx, "propose_relationships", "Propose relationships between an entity and its neighbours.", prompt, &res,
		)
	})
	if err != nil {
		return nil, err
	}

	proposals := make([]RelationProposal, 0, len(res.Relationships))
	for _, p := range res.Relationships {
		if !known[strings.ToLower(strings.TrimSpace(p.NeighborName))] {
			continue
		}
		p.RelationshipType = strings.ToLower(strings.TrimSpace(p.RelationshipType))
		if p.RelationshipType == "" {
			continue
		}
		p.Attitude = clampScale(p.Attitude)
		p.Proximity = clampScale(p.Proximity)
		if p.Confidence <= 0 || p.Confidence > 1 {
			p.Confidence = 0.8
		}
		proposals = append(proposals, p)
	}
	return proposals, nil
}

func clampScale(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}
