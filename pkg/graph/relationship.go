package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/internal/util"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/ai"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/logger"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"
)

// foldKind maps the six node kinds onto the three columns of the category
// table. Events, sources and artifacts behave as plain entities for
// relationship purposes.
func foldKind(kind common.NodeKind) common.NodeKind {
	switch kind {
	case common.KindPerson, common.KindConcept:
		return kind
	default:
		return common.KindEntity
	}
}

// DeriveCategory derives the relationship category from the pair of endpoint
// kinds. The mapping is a closed static table, never chosen by the model;
// (person, concept) always yields engages_with no matter what the
// relationship type says.
func DeriveCategory(from, to common.NodeKind) (common.RelationshipCategory, error) {
	a, b := foldKind(from), foldKind(to)
	// The table is symmetric over the folded kinds; direction is carried by
	// the edge itself, not the category.
	if kindRank(a) > kindRank(b) {
		a, b = b, a
	}

	switch {
	case a == common.KindPerson && b == common.KindPerson:
		return common.CategoryRelatesTo, nil
	case a == common.KindPerson && b == common.KindConcept:
		return common.CategoryEngagesWith, nil
	case a == common.KindPerson && b == common.KindEntity:
		return common.CategoryInteractsWith, nil
	case a == common.KindConcept && b == common.KindConcept:
		return common.CategoryConnectsTo, nil
	case a == common.KindConcept && b == common.KindEntity:
		return common.CategoryAppliesTo, nil
	case a == common.KindEntity && b == common.KindEntity:
		return common.CategoryAssociatedWith, nil
	}
	return "", fmt.Errorf("no category for kind pair (%s, %s)", from, to)
}

func kindRank(kind common.NodeKind) int {
	switch kind {
	case common.KindPerson:
		return 0
	case common.KindConcept:
		return 1
	default:
		return 2
	}
}

// Attitude and proximity word scales per category, indexed by score-1.
// These are immutable configuration data; the words feed the relation
// embedding so edges with the same type but different sentiment embed apart.
var attitudeWords = map[common.RelationshipCategory][5]string{
	common.CategoryRelatesTo:      {"hostile", "wary", "neutral", "warm", "devoted"},
	common.CategoryEngagesWith:    {"dismissive", "skeptical", "neutral", "interested", "passionate"},
	common.CategoryInteractsWith:  {"resentful", "reluctant", "neutral", "appreciative", "enthusiastic"},
	common.CategoryConnectsTo:     {"opposing", "diverging", "neutral", "complementary", "reinforcing"},
	common.CategoryAppliesTo:      {"undermines", "hinders", "neutral", "supports", "defines"},
	common.CategoryAssociatedWith: {"conflicting", "competing", "neutral", "aligned", "complementary"},
}

var proximityWords = map[common.RelationshipCategory][5]string{
	common.CategoryRelatesTo:      {"stranger", "acquaintance", "familiar", "close", "inseparable"},
	common.CategoryEngagesWith:    {"unaware", "curious", "learning", "practicing", "immersed"},
	common.CategoryInteractsWith:  {"distant", "occasional", "regular", "frequent", "constant"},
	common.CategoryConnectsTo:     {"remote", "loose", "adjacent", "overlapping", "inseparable"},
	common.CategoryAppliesTo:      {"peripheral", "incidental", "relevant", "central", "essential"},
	common.CategoryAssociatedWith: {"unrelated", "loose", "linked", "coupled", "integral"},
}

// AttitudeWord returns the category's word for an attitude score, clamping
// scores outside 1-5.
func AttitudeWord(category common.RelationshipCategory, score int) string {
	return scaleWord(attitudeWords, category, score)
}

// ProximityWord returns the category's word for a proximity score, clamping
// scores outside 1-5.
func ProximityWord(category common.RelationshipCategory, score int) string {
	return scaleWord(proximityWords, category, score)
}

func scaleWord(table map[common.RelationshipCategory][5]string, category common.RelationshipCategory, score int) string {
	words, ok := table[category]
	if !ok {
		return ""
	}
	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}
	return words[score-1]
}

func relationEmbeddingInput(category common.RelationshipCategory, relType string, attitude, proximity int) []byte {
	return []byte(strings.Join([]string{
		relType,
		AttitudeWord(category, attitude),
		ProximityWord(category, proximity),
	}, " "))
}

// RelationshipDescriptor describes a relationship to upsert between two
// resolved nodes. Zero values mean "unspecified" and preserve the stored
// value on merge.
type RelationshipDescriptor struct {
	RelationshipType string
	Attitude         int
	Proximity        int
	Description      string
	Confidence       float64
	ValidFrom        time.Time
}

// UpsertRelationship creates or merge-updates the edge between two nodes.
// The category is derived from the endpoint kinds, cross-user edges are a
// hard error, and repeated calls with the same endpoints are idempotent.
//
// When an active edge exists with a different relationship type the old edge
// is closed (valid_to stamped) and a new one recorded, preserving history.
// Otherwise the existing edge is property-merged and its relation embedding
// regenerated if type, attitude or proximity changed.
//
// The returned bool is true when a new edge row was created.
func (c *MemoryClient) UpsertRelationship(
	ctx context.Context,
	from, to *common.Node,
	d RelationshipDescriptor,
) (*common.Relationship, bool, error) {
	if from == nil || to == nil {
		return nil, false, fmt.Errorf("both endpoints are required")
	}
	if from.UserID != to.UserID {
		return nil, false, &InvariantViolation{
			Msg: fmt.Sprintf("cross-user relationship %s -> %s", from.UserID, to.UserID),
		}
	}

	category, err := DeriveCategory(from.Kind, to.Kind)
	if err != nil {
		return nil, false, err
	}

	existing, err := c.storage.GetActiveRelationship(ctx, from.UserID, from.ID, to.ID, category)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	if existing == nil {
		return c.insertRelationship(ctx, from, to, category, d)
	}

	if d.RelationshipType != "" && d.RelationshipType != existing.RelationshipType {
		// The descriptor contradicts the stored fact. Close the old edge and
		// record a new one; valid_from of history is never rewritten.
		now := time.Now()
		if err := c.storage.CloseRelationship(ctx, existing.ID, now); err != nil {
			return nil, false, fmt.Errorf("failed to close contradicted relationship: %w", err)
		}
		logger.Info("[Relationship] Superseding contradicted edge",
			"from", from.EntityKey, "to", to.EntityKey,
			"old_type", existing.RelationshipType, "new_type", d.RelationshipType)
		if d.ValidFrom.IsZero() {
			d.ValidFrom = now
		}
		return c.insertRelationship(ctx, from, to, category, d)
	}

	update := store.RelationshipFieldUpdate{}
	embeddingDirty := false
	attitude, proximity := existing.Attitude, existing.Proximity
	if d.Attitude != 0 && d.Attitude != existing.Attitude {
		update.Attitude = &d.Attitude
		attitude = d.Attitude
		embeddingDirty = true
	}
	if d.Proximity != 0 && d.Proximity != existing.Proximity {
		update.Proximity = &d.Proximity
		proximity = d.Proximity
		embeddingDirty = true
	}
	if d.Description != "" && d.Description != existing.Description {
		update.Description = &d.Description
	}
	if d.Confidence != 0 && d.Confidence != existing.Confidence {
		update.Confidence = &d.Confidence
	}

	var embedding []float32
	if embeddingDirty {
		embedding, err = c.aiClient.GenerateEmbedding(ctx,
			relationEmbeddingInput(category, existing.RelationshipType, attitude, proximity))
		if err != nil {
			return nil, false, fmt.Errorf("failed to embed relationship: %w", err)
		}
	}

	if err := c.storage.UpdateRelationship(ctx, existing.ID, update, embedding); err != nil {
		return nil, false, err
	}
	updated, err := c.storage.GetActiveRelationship(ctx, from.UserID, from.ID, to.ID, category)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

func (c *MemoryClient) insertRelationship(
	ctx context.Context,
	from, to *common.Node,
	category common.RelationshipCategory,
	d RelationshipDescriptor,
) (*common.Relationship, bool, error) {
	if d.Confidence == 0 {
		d.Confidence = 0.8
	}

	embedding, err := c.aiClient.GenerateEmbedding(ctx,
		relationEmbeddingInput(category, d.RelationshipType, d.Attitude, d.Proximity))
	if err != nil {
		return nil, false, fmt.Errorf("failed to embed relationship: %w", err)
	}

	rel := &common.Relationship{
		UserID:           from.UserID,
		FromID:           from.ID,
		ToID:             to.ID,
		Category:         category,
		RelationshipType: d.RelationshipType,
		Attitude:         d.Attitude,
		Proximity:        d.Proximity,
		Description:      d.Description,
		Confidence:       d.Confidence,
		ValidFrom:        d.ValidFrom,
	}
	if _, err := c.storage.InsertRelationship(ctx, rel, embedding); err != nil {
		return nil, false, err
	}
	return rel, true, nil
}

// relateNode proposes and persists relationships between a newly resolved
// node and the other nodes mentioned in the same source. The loop runs under
// a dynamically computed step budget and a circuit breaker: more attempted
// upserts than twice the neighbour count means the proposal handling is
// stuck, and the loop aborts rather than spinning.
func (c *MemoryClient) relateNode(
	ctx context.Context,
	node *common.Node,
	neighbors []*common.Node,
) (int, error) {
	neighborCount := len(neighbors)
	if neighborCount == 0 {
		return 0, nil
	}
	budget := util.Min(30, util.Max(10, 2*neighborCount+5))

	proposals, err := ai.CallRelateAI(ctx, node, neighbors, c.aiClient, c.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("relationship proposal failed: %w", err)
	}

	byName := make(map[string]*common.Node, neighborCount)
	for _, n := range neighbors {
		byName[strings.ToLower(n.Name)] = n
	}

	attempts := 0
	linked := 0
	for _, p := range proposals {
		if attempts >= budget {
			logger.Warn("[Relationship] Step budget exhausted",
				"node", node.EntityKey, "budget", budget, "linked", linked)
			break
		}
		if attempts > 2*neighborCount {
			return linked, fmt.Errorf("relationship loop exceeded %d attempts for %d neighbours, aborting",
				attempts, neighborCount)
		}
		attempts++

		neighbor, ok := byName[strings.ToLower(p.NeighborName)]
		if !ok || neighbor.ID == node.ID {
			continue
		}

		_, _, err := c.UpsertRelationship(ctx, node, neighbor, RelationshipDescriptor{
			RelationshipType: p.RelationshipType,
			Attitude:         p.Attitude,
			Proximity:        p.Proximity,
			Description:      p.Description,
			Confidence:       p.Confidence,
		})
		if err != nil {
			if IsInvariantViolation(err) {
				return linked, err
			}
			logger.Warn("[Relationship] Failed to link neighbour",
				"node", node.EntityKey, "neighbor", neighbor.EntityKey, "error", err)
			continue
		}
		linked++
	}
	return linked, nil
}
