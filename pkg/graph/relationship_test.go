package graph

import (
	"context"
	"testing"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

func TestDeriveCategory(t *testing.T) {
	tests := []struct {
		name string
		from common.NodeKind
		to   common.NodeKind
		want common.RelationshipCategory
	}{
		{name: "person person", from: common.KindPerson, to: common.KindPerson, want: common.CategoryRelatesTo},
		{name: "person concept", from: common.KindPerson, to: common.KindConcept, want: common.CategoryEngagesWith},
		{name: "concept person reversed", from: common.KindConcept, to: common.KindPerson, want: common.CategoryEngagesWith},
		{name: "person entity", from: common.KindPerson, to: common.KindEntity, want: common.CategoryInteractsWith},
		{name: "concept concept", from: common.KindConcept, to: common.KindConcept, want: common.CategoryConnectsTo},
		{name: "concept entity", from: common.KindConcept, to: common.KindEntity, want: common.CategoryAppliesTo},
		{name: "entity entity", from: common.KindEntity, to: common.KindEntity, want: common.CategoryAssociatedWith},
		{name: "event folds to entity", from: common.KindPerson, to: common.KindEvent, want: common.CategoryInteractsWith},
		{name: "artifact folds to entity", from: common.KindArtifact, to: common.KindArtifact, want: common.CategoryAssociatedWith},
		{name: "source folds to entity", from: common.KindConcept, to: common.KindSource, want: common.CategoryAppliesTo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveCategory(tt.from, tt.to)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DeriveCategory(%s, %s) = %s, want %s", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestScaleWordsClamp(t *testing.T) {
	if got := AttitudeWord(common.CategoryRelatesTo, 0); got != "hostile" {
		t.Errorf("below-range attitude = %q, want clamp to hostile", got)
	}
	if got := AttitudeWord(common.CategoryRelatesTo, 9); got != "devoted" {
		t.Errorf("above-range attitude = %q, want clamp to devoted", got)
	}
	if got := ProximityWord(common.CategoryEngagesWith, 3); got != "learning" {
		t.Errorf("ProximityWord(engages_with, 3) = %q, want learning", got)
	}
}

func setupRelNodes(t *testing.T, storage *fakeStorage) (*common.Node, *common.Node) {
	t.Helper()
	ctx := context.Background()
	from := &common.Node{EntityKey: "sarah", UserID: "u1", Kind: common.KindPerson, Name: "Sarah"}
	to := &common.Node{EntityKey: "climbing", UserID: "u1", Kind: common.KindConcept, Name: "Rock Climbing"}
	if _, err := storage.CreateNode(ctx, from); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.CreateNode(ctx, to); err != nil {
		t.Fatal(err)
	}
	return from, to
}

func TestUpsertRelationshipCreatesThenMerges(t *testing.T) {
	storage := newFakeStorage()
	client := newTestClient(t, storage, &fakeAI{})
	ctx := context.Background()
	from, to := setupRelNodes(t, storage)

	rel, created, err := client.UpsertRelationship(ctx, from, to, RelationshipDescriptor{
		RelationshipType: "enjoys", Attitude: 4, Proximity: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first upsert should create")
	}
	if rel.Category != common.CategoryEngagesWith {
		t.Errorf("category = %s, want engages_with", rel.Category)
	}
	if rel.Confidence != 0.8 {
		t.Errorf("unspecified confidence should default to 0.8, got %f", rel.Confidence)
	}

	// Same type again with a new proximity: merge, not a second edge.
	_, created, err = client.UpsertRelationship(ctx, from, to, RelationshipDescriptor{
		RelationshipType: "enjoys", Proximity: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second upsert with same endpoints must merge")
	}
	if n := len(storage.rels); n != 1 {
		t.Fatalf("expected 1 relationship row, got %d", n)
	}
	if storage.rels[0].Proximity != 5 {
		t.Errorf("proximity not merged, got %d", storage.rels[0].Proximity)
	}
	if storage.rels[0].Attitude != 4 {
		t.Errorf("absent attitude must preserve stored value, got %d", storage.rels[0].Attitude)
	}
}

func TestUpsertRelationshipMergePreservesStoredConfidence(t *testing.T) {
	storage := newFakeStorage()
	client := newTestClient(t, storage, &fakeAI{})
	ctx := context.Background()
	from, to := setupRelNodes(t, storage)

	if _, _, err := client.UpsertRelationship(ctx, from, to, RelationshipDescriptor{
		RelationshipType: "enjoys", Attitude: 4, Proximity: 3, Confidence: 0.95,
	}); err != nil {
		t.Fatal(err)
	}

	// Merge without a confidence: the stored 0.95 must survive, not be
	// replaced by the insert-path default.
	_, created, err := client.UpsertRelationship(ctx, from, to, RelationshipDescriptor{
		RelationshipType: "enjoys", Proximity: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second upsert with same endpoints must merge")
	}
	if got := storage.rels[0].Confidence; got != 0.95 {
		t.Errorf("absent confidence must preserve stored value, got %f", got)
	}

	// A specified confidence still merges through.
	if _, _, err := client.UpsertRelationship(ctx, from, to, RelationshipDescriptor{
		RelationshipType: "enjoys", Confidence: 0.6,
	}); err != nil {
		t.Fatal(err)
	}
	if got := storage.rels[0].Confidence; got != 0.6 {
		t.Errorf("specified confidence not merged, got %f", got)
	}
}

func TestUpsertRelationshipContradictionClosesOldEdge(t *testing.T) {
	storage := newFakeStorage()
	client := newTestClient(t, storage, &fakeAI{})
	ctx := context.Background()
	from, to := setupRelNodes(t, storage)

	if _, _, err := client.UpsertRelationship(ctx, from, to, RelationshipDescriptor{
		RelationshipType: "enjoys", Attitude: 4, Proximity: 3,
	}); err != nil {
		t.Fatal(err)
	}
	_, created, err := client.UpsertRelationship(ctx, from, to, RelationshipDescriptor{
		RelationshipType: "teaches", Attitude: 5, Proximity: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("contradicting type must record a new edge")
	}

	if n := len(storage.rels); n != 2 {
		t.Fatalf("expected 2 relationship rows, got %d", n)
	}
	old, recent := storage.rels[0], storage.rels[1]
	if old.ValidTo == nil {
		t.Error("old edge should be closed")
	}
	if recent.ValidTo != nil {
		t.Error("new edge should be open")
	}
	if old.RelationshipType != "enjoys" || recent.RelationshipType != "teaches" {
		t.Errorf("history rewritten: old=%s new=%s", old.RelationshipType, recent.RelationshipType)
	}
}

func TestUpsertRelationshipRejectsCrossUser(t *testing.T) {
	storage := newFakeStorage()
	client := newTestClient(t, storage, &fakeAI{})
	ctx := context.Background()

	from := &common.Node{EntityKey: "a", UserID: "u1", Kind: common.KindPerson, Name: "A"}
	to := &common.Node{EntityKey: "b", UserID: "u2", Kind: common.KindPerson, Name: "B"}
	if _, err := storage.CreateNode(ctx, from); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.CreateNode(ctx, to); err != nil {
		t.Fatal(err)
	}

	_, _, err := client.UpsertRelationship(ctx, from, to, RelationshipDescriptor{RelationshipType: "knows"})
	if err == nil {
		t.Fatal("cross-user relationship must error")
	}
	if !IsInvariantViolation(err) {
		t.Errorf("expected InvariantViolation, got %v", err)
	}
	if len(storage.rels) != 0 {
		t.Errorf("cross-user edge must never persist, found %d rows", len(storage.rels))
	}
}
