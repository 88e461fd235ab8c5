package graph

import (
	"context"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"

	"golang.org/x/sync/errgroup"
)

// MatchTier identifies which matcher primitive produced a scored match.
// Lower values win on entity key collisions during deduplication.
type MatchTier int

const (
	TierExact MatchTier = iota
	TierFuzzy
	TierEmbedding
)

// ScoredMatch is one graph node a matcher tier proposes for a candidate,
// with a normalized score in [0,1].
type ScoredMatch struct {
	Node  *common.Node
	Score float64
	Tier  MatchTier
}

// ExactMatch returns the node whose canonical name equals name
// case-insensitively within the user's subgraph, or nil when none does.
func (c *MemoryClient) ExactMatch(
	ctx context.Context,
	userID string,
	kind common.NodeKind,
	name string,
) (*common.Node, error) {
	nodes, err := c.storage.GetNodesByExactName(ctx, userID, kind, name)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

// FuzzyMatch returns up to FuzzyLimit nodes within FuzzyMaxDistance edits of
// name, ordered by distance ascending.
func (c *MemoryClient) FuzzyMatch(
	ctx context.Context,
	userID string,
	kind common.NodeKind,
	name string,
) ([]*common.Node, error) {
	hits, err := c.storage.GetNodesByFuzzyName(ctx, userID, kind, name,
		c.resolution.FuzzyMaxDistance, c.resolution.FuzzyLimit)
	if err != nil {
		return nil, err
	}
	nodes := make([]*common.Node, 0, len(hits))
	for _, h := range hits {
		nodes = append(nodes, h.Node)
	}
	return nodes, nil
}

// FuzzyMatchWithScore is FuzzyMatch with a normalized score
// 1 - distance/len(name) per hit, for blending with the other tiers.
// Hits scoring at or below FuzzyMinScore are rejected.
func (c *MemoryClient) FuzzyMatchWithScore(
	ctx context.Context,
	userID string,
	kind common.NodeKind,
	name string,
) ([]ScoredMatch, error) {
	hits, err := c.storage.GetNodesByFuzzyName(ctx, userID, kind, name,
		c.resolution.FuzzyMaxDistance, c.resolution.FuzzyLimit)
	if err != nil {
		return nil, err
	}

	nameLen := len([]rune(name))
	if nameLen == 0 {
		return nil, nil
	}

	out := make([]ScoredMatch, 0, len(hits))
	for _, h := range hits {
		score := 1.0 - float64(h.Distance)/float64(nameLen)
		if score <= c.resolution.FuzzyMinScore {
			continue
		}
		out = append(out, ScoredMatch{Node: h.Node, Score: score, Tier: TierFuzzy})
	}
	return out, nil
}

// EmbeddingMatch returns nodes whose stored embedding has cosine similarity
// of at least EmbeddingThreshold to the candidate embedding, ordered by
// similarity descending, capped at EmbeddingLimit.
func (c *MemoryClient) EmbeddingMatch(
	ctx context.Context,
	userID string,
	kind common.NodeKind,
	embedding []float32,
) ([]ScoredMatch, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	hits, err := c.storage.GetNodesByEmbedding(ctx, userID, kind, embedding,
		c.resolution.EmbeddingThreshold, c.resolution.EmbeddingLimit)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMatch, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredMatch{Node: h.Node, Score: h.Similarity, Tier: TierEmbedding})
	}
	return out, nil
}

// DeduplicateCandidates merges the three tiers' results into one list capped
// at max entries. On an entity key collision the better tier wins
// (exact > fuzzy > embedding); within a tier the higher score wins.
func DeduplicateCandidates(exact *common.Node, fuzzy, embedding []ScoredMatch, max int) []ScoredMatch {
	if max <= 0 {
		max = 20
	}

	merged := make([]ScoredMatch, 0, 1+len(fuzzy)+len(embedding))
	if exact != nil {
		merged = append(merged, ScoredMatch{Node: exact, Score: 1.0, Tier: TierExact})
	}
	merged = append(merged, fuzzy...)
	merged = append(merged, embedding...)

	byKey := make(map[string]ScoredMatch, len(merged))
	order := make([]string, 0, len(merged))
	for _, m := range merged {
		key := m.Node.EntityKey
		prev, seen := byKey[key]
		if !seen {
			byKey[key] = m
			order = append(order, key)
			continue
		}
		if m.Tier < prev.Tier || (m.Tier == prev.Tier && m.Score > prev.Score) {
			byKey[key] = m
		}
	}

	out := make([]ScoredMatch, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
		if len(out) >= max {
			break
		}
	}
	return out
}

// gatherCandidates runs the three matcher tiers concurrently for one
// extracted candidate and merges their results. The tiers are independent
// read-only queries, so concurrency here is safe.
func (c *MemoryClient) gatherCandidates(
	ctx context.Context,
	userID string,
	candidate common.Candidate,
) (exact *common.Node, fuzzy, embedding []ScoredMatch, err error) {
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(c.parallelLookups)

	eg.Go(func() error {
		var err error
		exact, err = c.ExactMatch(ectx, userID, candidate.Kind, candidate.Name)
		return err
	})
	eg.Go(func() error {
		var err error
		fuzzy, err = c.FuzzyMatchWithScore(ectx, userID, candidate.Kind, candidate.Name)
		return err
	})
	eg.Go(func() error {
		var err error
		embedding, err = c.EmbeddingMatch(ectx, userID, candidate.Kind, candidate.Embedding)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return exact, fuzzy, embedding, nil
}
