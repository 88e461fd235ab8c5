package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

func TestResolveNoCandidatesReturnsNew(t *testing.T) {
	storage := newFakeStorage()
	client := newTestClient(t, storage, &fakeAI{})

	res, err := client.Resolve(context.Background(), "u1", common.Candidate{
		Name: "Sarah Chen", Kind: common.KindPerson, Embedding: []float32{1, 0, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Resolved {
		t.Errorf("empty graph must resolve to new, got resolved to %s", res.EntityKey)
	}
}

func TestResolveHighSimilarityAutoAccepts(t *testing.T) {
	storage := newFakeStorage()
	// A disambiguator that always errors: above the auto-accept threshold it
	// must never be consulted.
	aiClient := &fakeAI{
		structuredFn: func(name, prompt string) (any, error) {
			return nil, fmt.Errorf("disambiguator must not be called")
		},
	}
	client := newTestClient(t, storage, aiClient)
	ctx := context.Background()

	id, err := storage.CreateNode(ctx, &common.Node{
		EntityKey: "sarah-key", UserID: "u1", Kind: common.KindPerson, Name: "Sarah Chen",
	})
	if err != nil {
		t.Fatal(err)
	}
	storage.setEmbedding(id, []float32{1, 0, 0})

	res, err := client.Resolve(ctx, "u1", common.Candidate{
		// Different surface name so the exact tier misses and the decision
		// rides on the embedding.
		Name: "S. Chen from the lab", Kind: common.KindPerson,
		Embedding: []float32{1, 0.01, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resolved || res.EntityKey != "sarah-key" {
		t.Errorf("similarity above auto-accept must resolve, got %+v", res)
	}
}

func TestResolveAmbiguousBandHonorsDisambiguatorRefusal(t *testing.T) {
	storage := newFakeStorage()
	aiClient := &fakeAI{
		structuredFn: func(name, prompt string) (any, error) {
			if name != "disambiguate_entity" {
				return nil, fmt.Errorf("unexpected call %s", name)
			}
			return map[string]any{"match_index": -1, "reason": "cannot tell"}, nil
		},
	}
	client := newTestClient(t, storage, aiClient)
	ctx := context.Background()

	// Two Mikes whose embeddings land in the ambiguous band for the query.
	for i, name := range []string{"Mike Smith", "Mike Jones"} {
		id, err := storage.CreateNode(ctx, &common.Node{
			EntityKey: fmt.Sprintf("mike-%d", i), UserID: "u1",
			Kind: common.KindPerson, Name: name,
		})
		if err != nil {
			t.Fatal(err)
		}
		storage.setEmbedding(id, []float32{0.88, float32(0.475 - float64(i)*0.01), 0})
	}

	res, err := client.Resolve(ctx, "u1", common.Candidate{
		Name: "Mike", Kind: common.KindPerson, Embedding: []float32{1, 0, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Resolved {
		t.Errorf("disambiguator chose none, resolver must not guess: %+v", res)
	}

	// Persisting the unresolved candidate creates a third node.
	node, created, err := client.ResolveAndPersist(ctx, "u1", common.Candidate{
		Name: "Mike", Kind: common.KindPerson, Embedding: []float32{1, 0, 0}, Confidence: 0.6,
	}, "source-key", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected a new node for the unresolved Mike")
	}
	if node.EntityKey != DeriveEntityKey("Mike", common.KindPerson, "u1") {
		t.Errorf("new node got unexpected entity key %s", node.EntityKey)
	}
}

func TestResolveAndPersistMergesOnMatch(t *testing.T) {
	storage := newFakeStorage()
	client := newTestClient(t, storage, &fakeAI{})
	ctx := context.Background()

	if _, err := storage.CreateNode(ctx, &common.Node{
		EntityKey: "sarah-key", UserID: "u1", Kind: common.KindPerson,
		Name: "Sarah Chen", Confidence: 0.5,
		Notes: []common.Note{{Content: "existing note"}},
	}); err != nil {
		t.Fatal(err)
	}

	node, created, err := client.ResolveAndPersist(ctx, "u1", common.Candidate{
		Name: "Sarah Chen", Kind: common.KindPerson,
		Description: "A colleague", Embedding: []float32{1, 0, 0}, Confidence: 0.9,
	}, "source-key", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("exact name match must merge, not create")
	}

	stored, err := storage.GetNodeByEntityKey(ctx, "u1", "sarah-key")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Notes) != 2 {
		t.Errorf("expected appended note, got %d notes", len(stored.Notes))
	}
	if stored.Notes[0].Content != "existing note" {
		t.Errorf("existing note content changed: %q", stored.Notes[0].Content)
	}
	if stored.Confidence != 0.9 {
		t.Errorf("confidence should lift to the candidate's 0.9, got %f", stored.Confidence)
	}
	if stored.LastUpdateSource != "source-key" {
		t.Errorf("last_update_source not stamped: %q", stored.LastUpdateSource)
	}
	if stored.AccessCount != 1 {
		t.Errorf("merge should record an access, got count %d", stored.AccessCount)
	}
	if node.EntityKey != "sarah-key" {
		t.Errorf("returned node has wrong key %s", node.EntityKey)
	}
}

func TestResolveAndPersistReResolvesOnDuplicateKey(t *testing.T) {
	storage := newFakeStorage()
	client := newTestClient(t, storage, &fakeAI{})
	ctx := context.Background()

	// Simulate a concurrent ingestion that already created the candidate's
	// entity key under a name none of the matcher tiers will find.
	winnerKey := DeriveEntityKey("Sarah", common.KindPerson, "u1")
	id, err := storage.CreateNode(ctx, &common.Node{
		EntityKey: winnerKey, UserID: "u1", Kind: common.KindPerson,
		Name: "Sarah Chen (imported)",
	})
	if err != nil {
		t.Fatal(err)
	}
	storage.setEmbedding(id, []float32{0, 1, 0})

	node, created, err := client.ResolveAndPersist(ctx, "u1", common.Candidate{
		Name: "Sarah", Kind: common.KindPerson,
		Description: "met at the gym", Embedding: []float32{1, 0, 0},
	}, "source-key", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("losing the create race must merge into the winner, not create")
	}
	if node.EntityKey != winnerKey {
		t.Errorf("re-resolve landed on %s, want %s", node.EntityKey, winnerKey)
	}

	stored, err := storage.GetNodeByEntityKey(ctx, "u1", winnerKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Notes) != 1 {
		t.Errorf("winner should carry the merged note, got %d", len(stored.Notes))
	}
}
