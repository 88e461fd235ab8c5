package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/ai"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/logger"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"
)

// Resolution is the resolver's decision for one extracted candidate.
// Resolved means the candidate is the same real-world thing as Node;
// unresolved means the caller should create a new node.
type Resolution struct {
	Resolved  bool
	EntityKey string
	Node      *common.Node
	Reason    string
}

// Resolve decides whether an extracted candidate matches an existing node in
// the user's subgraph. The policy is a strict tier order, first decisive tier
// wins; every uncertain outcome falls through to unresolved, since creating
// a duplicate is less harmful than merging two distinct real-world things.
func (c *MemoryClient) Resolve(
	ctx context.Context,
	userID string,
	candidate common.Candidate,
) (*Resolution, error) {
	exact, fuzzy, embedding, err := c.gatherCandidates(ctx, userID, candidate)
	if err != nil {
		return nil, fmt.Errorf("candidate lookup failed: %w", err)
	}

	merged := DeduplicateCandidates(exact, fuzzy, embedding, c.resolution.CandidateLimit)
	if len(merged) == 0 {
		return &Resolution{Resolved: false, Reason: "no graph candidates"}, nil
	}

	// Same canonical name, kind and user means the same derived entity key.
	if exact != nil {
		return &Resolution{
			Resolved:  true,
			EntityKey: exact.EntityKey,
			Node:      exact,
			Reason:    "exact name match",
		}, nil
	}

	if len(embedding) > 0 {
		top := embedding[0]
		if top.Score > c.resolution.AutoAcceptSimilarity {
			return &Resolution{
				Resolved:  true,
				EntityKey: top.Node.EntityKey,
				Node:      top.Node,
				Reason:    fmt.Sprintf("embedding similarity %.3f above auto-accept", top.Score),
			}, nil
		}
		if top.Score > c.resolution.DisambiguateFloor {
			return c.disambiguate(ctx, candidate, matchNodes(merged), "ambiguous embedding similarity")
		}
	}

	switch len(fuzzy) {
	case 0:
		return &Resolution{Resolved: false, Reason: "no acceptable fuzzy match"}, nil
	case 1:
		return &Resolution{
			Resolved:  true,
			EntityKey: fuzzy[0].Node.EntityKey,
			Node:      fuzzy[0].Node,
			Reason:    "single fuzzy name match",
		}, nil
	default:
		return c.disambiguate(ctx, candidate, matchNodes(fuzzy), "multiple fuzzy matches")
	}
}

func matchNodes(matches []ScoredMatch) []*common.Node {
	nodes := make([]*common.Node, 0, len(matches))
	for _, m := range matches {
		nodes = append(nodes, m.Node)
	}
	return nodes
}

// disambiguate asks the disambiguation capability to pick one of the stored
// nodes. Any failure or refusal resolves to unresolved, never to a guess.
func (c *MemoryClient) disambiguate(
	ctx context.Context,
	candidate common.Candidate,
	nodes []*common.Node,
	cause string,
) (*Resolution, error) {
	idx, err := ai.CallDisambiguateAI(ctx, candidate, nodes, c.aiClient, c.maxRetries)
	if err != nil {
		logger.Warn("[Resolver] Disambiguation failed, treating as no match",
			"candidate", candidate.Name, "error", err)
		return &Resolution{Resolved: false, Reason: cause + "; disambiguation failed"}, nil
	}
	if idx < 0 {
		return &Resolution{Resolved: false, Reason: cause + "; disambiguator chose none"}, nil
	}
	return &Resolution{
		Resolved:  true,
		EntityKey: nodes[idx].EntityKey,
		Node:      nodes[idx],
		Reason:    cause + "; disambiguator confirmed match",
	}, nil
}

func candidateNote(candidate common.Candidate, sourceKey string, now time.Time) common.Note {
	content := candidate.Description
	if len(candidate.Subpoints) > 0 {
		content += "\n- " + strings.Join(candidate.Subpoints, "\n- ")
	}
	return common.Note{
		Content:         content,
		AddedBy:         "ingest",
		SourceEntityKey: sourceKey,
		DateAdded:       now,
	}
}

// ResolveAndPersist resolves one candidate and applies the decision: on a
// match it appends a note to the existing node and records the access, on
// no-match it creates a new node under strict create semantics. A duplicate
// key during create means a concurrent ingestion won the race; the candidate
// is re-resolved once against the winning row, and a second miss is an
// InvariantViolation.
//
// The returned bool is true when a new node was created.
func (c *MemoryClient) ResolveAndPersist(
	ctx context.Context,
	userID string,
	candidate common.Candidate,
	sourceKey string,
	now time.Time,
) (*common.Node, bool, error) {
	res, err := c.Resolve(ctx, userID, candidate)
	if err != nil {
		return nil, false, err
	}

	if res.Resolved {
		node, err := c.mergeIntoNode(ctx, userID, res.Node.EntityKey, candidate, sourceKey, now)
		if err != nil {
			return nil, false, err
		}
		logger.Debug("[Resolver] Merged candidate into existing node",
			"candidate", candidate.Name, "entity_key", node.EntityKey, "reason", res.Reason)
		return node, false, nil
	}

	node := &common.Node{
		EntityKey:        DeriveEntityKey(candidate.Name, candidate.Kind, userID),
		UserID:           userID,
		Kind:             candidate.Kind,
		Name:             candidate.Name,
		CanonicalName:    candidate.Name,
		Description:      candidate.Description,
		Notes:            []common.Note{candidateNote(candidate, sourceKey, now)},
		Confidence:       candidate.Confidence,
		LastUpdateSource: sourceKey,
	}

	_, err = c.storage.CreateNode(ctx, node)
	if err == nil {
		logger.Debug("[Resolver] Created node",
			"candidate", candidate.Name, "entity_key", node.EntityKey, "reason", res.Reason)
		return node, true, nil
	}
	if !errors.Is(err, store.ErrDuplicateEntityKey) {
		return nil, false, err
	}

	// A concurrent ingestion created the same entity key between our
	// resolve and our create. Fall back to find-then-merge, once.
	logger.Info("[Resolver] Create lost entity key race, re-resolving",
		"candidate", candidate.Name, "entity_key", node.EntityKey)
	merged, mergeErr := c.mergeIntoNode(ctx, userID, node.EntityKey, candidate, sourceKey, now)
	if mergeErr != nil {
		return nil, false, &InvariantViolation{
			Msg: fmt.Sprintf("duplicate entity key %s but winning node unusable", node.EntityKey),
			Err: mergeErr,
		}
	}
	return merged, false, nil
}

// mergeIntoNode applies a resolved candidate additively to an existing node:
// append a provenance note, stamp the source, lift confidence when the
// candidate is more certain, and record the access.
func (c *MemoryClient) mergeIntoNode(
	ctx context.Context,
	userID, entityKey string,
	candidate common.Candidate,
	sourceKey string,
	now time.Time,
) (*common.Node, error) {
	if err := c.storage.AppendNodeNotes(ctx, userID, entityKey, []common.Note{
		candidateNote(candidate, sourceKey, now),
	}); err != nil {
		return nil, fmt.Errorf("failed to append notes: %w", err)
	}

	update := store.NodeFieldUpdate{LastUpdateSource: &sourceKey}
	node, err := c.storage.UpdateNodeFields(ctx, userID, entityKey, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update node: %w", err)
	}

	if candidate.Confidence > node.Confidence {
		conf := candidate.Confidence
		node, err = c.storage.UpdateNodeFields(ctx, userID, entityKey, store.NodeFieldUpdate{Confidence: &conf})
		if err != nil {
			return nil, fmt.Errorf("failed to update confidence: %w", err)
		}
	}

	if err := c.storage.TouchNode(ctx, userID, entityKey); err != nil {
		return nil, fmt.Errorf("failed to record access: %w", err)
	}
	return node, nil
}
