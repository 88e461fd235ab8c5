package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/ai"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"
)

// fakeAI implements ai.MemoryAIClient with per-call hooks. Structured calls
// dispatch on the schema name so one stub can serve extraction,
// disambiguation and relationship proposals in the same test.
type fakeAI struct {
	completionFn func(prompt string) (string, error)
	structuredFn func(name, prompt string) (any, error)
	embedFn      func(input []byte) ([]float32, error)
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	if f.completionFn == nil {
		return "a summary", nil
	}
	return f.completionFn(prompt)
}

func (f *fakeAI) GenerateCompletionWithFormat(
	ctx context.Context,
	name, description, prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if f.structuredFn == nil {
		return fmt.Errorf("no structured response configured for %s", name)
	}
	res, err := f.structuredFn(name, prompt)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if f.embedFn == nil {
		return []float32{1, 0, 0}, nil
	}
	return f.embedFn(input)
}

func (f *fakeAI) ResetMetrics()               {}
func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

// fakeStorage is an in-memory store.MemoryStorage good enough to drive the
// resolver and orchestrator end to end in tests.
type fakeStorage struct {
	mu sync.Mutex

	nextID     int64
	nodes      map[int64]*common.Node
	embeddings map[int64][]float32
	rels       []*common.Relationship
	sources    map[string]*common.Source
	mentions   map[string]time.Time

	failCreateNode error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		nodes:      map[int64]*common.Node{},
		embeddings: map[int64][]float32{},
		sources:    map[string]*common.Source{},
		mentions:   map[string]time.Time{},
	}
}

func (s *fakeStorage) CreateNode(ctx context.Context, node *common.Node) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateNode != nil {
		return -1, s.failCreateNode
	}
	for _, n := range s.nodes {
		if n.UserID == node.UserID && n.EntityKey == node.EntityKey {
			return -1, store.ErrDuplicateEntityKey
		}
	}
	s.nextID++
	node.ID = s.nextID
	if node.CanonicalName == "" {
		node.CanonicalName = node.Name
	}
	if node.State == "" {
		node.State = common.StateCandidate
	}
	clone := *node
	s.nodes[node.ID] = &clone
	s.embeddings[node.ID] = []float32{1, 0, 0}
	return node.ID, nil
}

func (s *fakeStorage) setEmbedding(id int64, emb []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[id] = emb
}

func (s *fakeStorage) GetNodeByID(ctx context.Context, id int64) (*common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (s *fakeStorage) GetNodeByEntityKey(ctx context.Context, userID, entityKey string) (*common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.UserID == userID && n.EntityKey == entityKey {
			clone := *n
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStorage) UpdateNodeFields(ctx context.Context, userID, entityKey string, update store.NodeFieldUpdate) (*common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.UserID != userID || n.EntityKey != entityKey {
			continue
		}
		if update.Name != nil {
			n.Name = *update.Name
		}
		if update.CanonicalName != nil {
			n.CanonicalName = *update.CanonicalName
		}
		if update.Description != nil {
			n.Description = *update.Description
		}
		for k, v := range update.Attributes {
			if n.Attributes == nil {
				n.Attributes = map[string]any{}
			}
			n.Attributes[k] = v
		}
		if update.Confidence != nil {
			n.Confidence = *update.Confidence
		}
		if update.State != nil {
			n.State = *update.State
		}
		if update.LastUpdateSource != nil {
			n.LastUpdateSource = *update.LastUpdateSource
		}
		n.UpdatedAt = time.Now()
		clone := *n
		return &clone, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeStorage) AppendNodeNotes(ctx context.Context, userID, entityKey string, notes []common.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.UserID == userID && n.EntityKey == entityKey {
			n.Notes = append(n.Notes, notes...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeStorage) TouchNode(ctx context.Context, userID, entityKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.UserID == userID && n.EntityKey == entityKey {
			n.AccessCount++
			now := time.Now()
			n.LastAccessedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeStorage) GetNodesByExactName(ctx context.Context, userID string, kind common.NodeKind, name string) ([]*common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*common.Node
	for _, n := range s.nodes {
		if n.UserID == userID && n.Kind == kind && strings.EqualFold(n.CanonicalName, name) {
			clone := *n
			out = append(out, &clone)
		}
	}
	return out, nil
}

func levenshtein(a, b string) int {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(min(cur[j-1]+1, prev[j]+1), prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func (s *fakeStorage) GetNodesByFuzzyName(ctx context.Context, userID string, kind common.NodeKind, name string, maxDistance, limit int) ([]store.FuzzyHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.FuzzyHit
	for _, n := range s.nodes {
		if n.UserID != userID || n.Kind != kind {
			continue
		}
		d := levenshtein(n.CanonicalName, name)
		if d <= maxDistance {
			clone := *n
			out = append(out, store.FuzzyHit{Node: &clone, Distance: d})
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Distance < out[i].Distance {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (s *fakeStorage) GetNodesByEmbedding(ctx context.Context, userID string, kind common.NodeKind, embedding []float32, threshold float64, limit int) ([]store.EmbeddingHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.EmbeddingHit
	for id, n := range s.nodes {
		if n.UserID != userID || n.Kind != kind {
			continue
		}
		sim := cosine(s.embeddings[id], embedding)
		if sim >= threshold {
			clone := *n
			out = append(out, store.EmbeddingHit{Node: &clone, Similarity: sim})
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Similarity > out[i].Similarity {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStorage) GetActiveRelationship(ctx context.Context, userID string, fromID, toID int64, category common.RelationshipCategory) (*common.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rels {
		if r.UserID == userID && r.FromID == fromID && r.ToID == toID && r.Category == category && r.ValidTo == nil {
			clone := *r
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStorage) InsertRelationship(ctx context.Context, rel *common.Relationship, embedding []float32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rel.ID = s.nextID
	if rel.RecordedAt.IsZero() {
		rel.RecordedAt = time.Now()
	}
	if rel.ValidFrom.IsZero() {
		rel.ValidFrom = time.Now()
	}
	clone := *rel
	s.rels = append(s.rels, &clone)
	return rel.ID, nil
}

func (s *fakeStorage) UpdateRelationship(ctx context.Context, id int64, update store.RelationshipFieldUpdate, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rels {
		if r.ID != id {
			continue
		}
		if update.RelationshipType != nil {
			r.RelationshipType = *update.RelationshipType
		}
		if update.Attitude != nil {
			r.Attitude = *update.Attitude
		}
		if update.Proximity != nil {
			r.Proximity = *update.Proximity
		}
		if update.Description != nil {
			r.Description = *update.Description
		}
		if update.Confidence != nil {
			r.Confidence = *update.Confidence
		}
		r.UpdatedAt = time.Now()
		return nil
	}
	return store.ErrNotFound
}

func (s *fakeStorage) CloseRelationship(ctx context.Context, id int64, validTo time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rels {
		if r.ID == id && r.ValidTo == nil {
			r.ValidTo = &validTo
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeStorage) AppendRelationshipNotes(ctx context.Context, id int64, notes []common.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rels {
		if r.ID == id {
			r.Notes = append(r.Notes, notes...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeStorage) CountNodeRelationships(ctx context.Context, userID string, nodeID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.rels {
		if r.UserID == userID && r.ValidTo == nil && (r.FromID == nodeID || r.ToID == nodeID) {
			count++
		}
	}
	return count, nil
}

func (s *fakeStorage) GetSourceByExternalID(ctx context.Context, userID, externalID string) (*common.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[userID+"|"+externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *src
	return &clone, nil
}

func (s *fakeStorage) CreateSource(ctx context.Context, src *common.Source) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := src.UserID + "|" + src.ExternalID
	if _, ok := s.sources[key]; ok {
		return -1, store.ErrDuplicateEntityKey
	}
	s.nextID++
	src.ID = s.nextID
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}
	clone := *src
	s.sources[key] = &clone
	return src.ID, nil
}

func (s *fakeStorage) UpdateSourceStatus(ctx context.Context, id int64, status common.SourceStatus, entityCount int, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src.ID == id {
			src.Status = status
			src.EntityCount = entityCount
			src.ErrorMessage = errorMessage
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeStorage) ListSources(ctx context.Context, userID string, limit, offset int) ([]*common.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*common.Source
	for _, src := range s.sources {
		if src.UserID == userID {
			clone := *src
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *fakeStorage) LinkMention(ctx context.Context, sourceNodeID, targetNodeID int64, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d|%d", sourceNodeID, targetNodeID)
	if _, ok := s.mentions[key]; !ok {
		s.mentions[key] = createdAt
	}
	return nil
}

func (s *fakeStorage) GetMentionedNodes(ctx context.Context, sourceNodeID int64) ([]*common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*common.Node
	for key := range s.mentions {
		var srcID, targetID int64
		fmt.Sscanf(key, "%d|%d", &srcID, &targetID)
		if srcID == sourceNodeID {
			if n, ok := s.nodes[targetID]; ok {
				clone := *n
				out = append(out, &clone)
			}
		}
	}
	return out, nil
}

func newTestClient(t interface{ Fatal(args ...any) }, storage store.MemoryStorage, aiClient ai.MemoryAIClient) *MemoryClient {
	client, err := NewMemoryClient(NewMemoryClientParams{
		Storage:  storage,
		AIClient: aiClient,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}
