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

// IngestParams describes one source to ingest into a user's memory graph.
// OccurredAt is the caller-supplied creation time; the pipeline reuses it
// instead of the wall clock so repeated runs with the same input reproduce
// their timestamps.
type IngestParams struct {
	UserID       string
	ExternalID   string
	Name         string
	RawText      string
	Participants []string
	OccurredAt   time.Time
}

// IngestResult is the full diagnostic outcome of one ingestion: the source,
// what was extracted, which candidates merged into existing nodes and which
// created new ones, per-phase timings and the best-effort error list. A
// non-empty Errors list with a non-nil result means partial success.
type IngestResult struct {
	Source *common.Source `json:"source,omitempty"`

	ExtractedEntities []common.Candidate `json:"extracted_entities"`
	Merges            []string           `json:"merges"`
	Creations         []string           `json:"creations"`
	Relationships     int                `json:"relationships"`
	Mentions          int                `json:"mentions"`

	Timings map[Phase]time.Duration `json:"timings"`
	Errors  []PhaseError            `json:"errors"`
}

func (r *IngestResult) recordError(phase Phase, err error) {
	r.Errors = append(r.Errors, PhaseError{Phase: phase, Message: err.Error()})
}

func (r *IngestResult) timePhase(phase Phase, fn func() error) error {
	start := time.Now()
	err := fn()
	r.Timings[phase] = time.Since(start)
	return err
}

// IngestSource runs the six-phase ingestion pipeline for one source.
// Normalize, summarize and source-ensure failures abort the pipeline, since
// nothing useful can follow them. Extraction, resolution and mentions
// failures degrade: the pipeline continues with what it has and reports the
// failures in the result's error list.
//
// The result is non-nil even on abort, carrying timings and diagnostics for
// whatever ran.
func (c *MemoryClient) IngestSource(ctx context.Context, params IngestParams) (*IngestResult, error) {
	result := &IngestResult{
		ExtractedEntities: []common.Candidate{},
		Merges:            []string{},
		Creations:         []string{},
		Timings:           map[Phase]time.Duration{},
		Errors:            []PhaseError{},
	}

	if params.UserID == "" || params.ExternalID == "" {
		return result, &AbortingError{Phase: PhaseSourceEnsure,
			Err: fmt.Errorf("user_id and external_id are required")}
	}
	if params.OccurredAt.IsZero() {
		params.OccurredAt = time.Now()
	}
	params.Participants = store.DedupeStrings(params.Participants)

	// Phase 1: normalize.
	var chunks []string
	err := result.timePhase(PhaseNormalize, func() error {
		var err error
		chunks, err = c.normalize(params.RawText)
		return err
	})
	if err != nil {
		return result, &AbortingError{Phase: PhaseNormalize, Err: err}
	}

	// Phase 2: summarize.
	var summary string
	err = result.timePhase(PhaseSummarize, func() error {
		var err error
		summary, err = ai.CallSummarizeAI(ctx, strings.Join(chunks, "\n"), c.aiClient, c.maxRetries)
		return err
	})
	if err != nil {
		return result, &AbortingError{Phase: PhaseSummarize, Err: err}
	}

	// Phase 3: ensure the source row and its graph node, idempotently.
	var (
		source     *common.Source
		sourceNode *common.Node
	)
	err = result.timePhase(PhaseSourceEnsure, func() error {
		var err error
		source, sourceNode, err = c.ensureSource(ctx, params, chunks, summary)
		return err
	})
	if err != nil {
		// The source row may already exist; leave it failed, not stuck
		// in_progress.
		if source != nil {
			if serr := c.storage.UpdateSourceStatus(ctx, source.ID, common.SourceFailed, 0, err.Error()); serr != nil {
				logger.Warn("[Ingest] Failed to mark source failed",
					"source", source.ExternalID, "error", serr)
			}
		}
		return result, &AbortingError{Phase: PhaseSourceEnsure, Err: err}
	}
	result.Source = source

	// Phase 4: extraction, best-effort. A source with zero extracted
	// entities is a valid outcome.
	var candidates []common.Candidate
	_ = result.timePhase(PhaseExtraction, func() error {
		var err error
		candidates, err = ai.CallExtractAI(ctx, chunks, params.Participants, c.aiClient, c.maxRetries)
		if err != nil {
			logger.Warn("[Ingest] Extraction failed, continuing with no candidates",
				"source", source.ExternalID, "error", err)
			result.recordError(PhaseExtraction, err)
			candidates = nil
		}
		if err := c.embedCandidates(ctx, candidates); err != nil {
			logger.Warn("[Ingest] Candidate embedding failed, embedding tier disabled for this source",
				"source", source.ExternalID, "error", err)
			result.recordError(PhaseExtraction, err)
		}
		return nil
	})
	result.ExtractedEntities = append(result.ExtractedEntities, candidates...)

	if err := c.storage.UpdateSourceStatus(ctx, source.ID, common.SourceExtracted, len(candidates), ""); err != nil {
		logger.Warn("[Ingest] Failed to mark source extracted", "source", source.ExternalID, "error", err)
	}

	// Phase 5: resolution, best-effort per candidate. Each candidate's
	// resolve-and-persist is its own unit of work; an earlier candidate's
	// committed create survives a later candidate's failure.
	var resolved []*common.Node
	_ = result.timePhase(PhaseResolution, func() error {
		var createdNodes []*common.Node
		for _, candidate := range candidates {
			node, created, err := c.ResolveAndPersist(ctx, params.UserID, candidate, sourceNode.EntityKey, params.OccurredAt)
			if err != nil {
				result.recordError(PhaseResolution,
					fmt.Errorf("candidate %q: %w", candidate.Name, err))
				continue
			}
			resolved = append(resolved, node)
			if created {
				result.Creations = append(result.Creations, node.EntityKey)
				createdNodes = append(createdNodes, node)
			} else {
				result.Merges = append(result.Merges, node.EntityKey)
			}
		}

		for _, node := range createdNodes {
			neighbors := make([]*common.Node, 0, len(resolved)-1)
			for _, other := range resolved {
				if other.EntityKey != node.EntityKey {
					neighbors = append(neighbors, other)
				}
			}
			linked, err := c.relateNode(ctx, node, neighbors)
			result.Relationships += linked
			if err != nil {
				result.recordError(PhaseResolution,
					fmt.Errorf("relationships for %q: %w", node.Name, err))
			}
		}
		return nil
	})

	// Phase 6: mentions linking, best-effort, deduplicated by entity key.
	_ = result.timePhase(PhaseMentions, func() error {
		seen := make(map[string]bool, len(resolved))
		for _, node := range resolved {
			if seen[node.EntityKey] {
				continue
			}
			seen[node.EntityKey] = true
			if err := c.storage.LinkMention(ctx, sourceNode.ID, node.ID, source.CreatedAt); err != nil {
				result.recordError(PhaseMentions,
					fmt.Errorf("mention %q: %w", node.Name, err))
				continue
			}
			result.Mentions++
		}
		return nil
	})

	status := common.SourceCompleted
	errorMessage := ""
	if len(result.Errors) > 0 {
		errorMessage = result.Errors[0].Message
	}
	if err := c.storage.UpdateSourceStatus(ctx, source.ID, status, len(resolved), errorMessage); err != nil {
		logger.Warn("[Ingest] Failed to mark source completed", "source", source.ExternalID, "error", err)
	}

	logger.Info("[Ingest] Source ingested",
		"source", source.ExternalID,
		"extracted", len(result.ExtractedEntities),
		"merges", len(result.Merges),
		"creations", len(result.Creations),
		"relationships", result.Relationships,
		"errors", len(result.Errors))
	return result, nil
}

// ensureSource finds the source by external id or creates it, together with
// its graph node of kind source. Re-ingesting the same external id finds the
// existing rows; a create losing a race falls back to the lookup.
// embedCandidates attaches embeddings to extracted candidates in batches.
// The embedding input is the candidate name plus its description, the same
// text shape the store uses for node embeddings.
func (c *MemoryClient) embedCandidates(ctx context.Context, candidates []common.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	return store.ChunkRange(len(candidates), 64, func(start, end int) error {
		inputs := make([][]byte, 0, end-start)
		for i := start; i < end; i++ {
			inputs = append(inputs, []byte(candidates[i].Name+"\n"+candidates[i].Description))
		}
		embeddings, err := store.GenerateEmbeddings(ctx, c.aiClient, inputs)
		if err != nil {
			return err
		}
		for i := start; i < end; i++ {
			candidates[i].Embedding = embeddings[i-start]
		}
		return nil
	})
}

func (c *MemoryClient) ensureSource(
	ctx context.Context,
	params IngestParams,
	chunks []string,
	summary string,
) (*common.Source, *common.Node, error) {
	sourceKey := DeriveEntityKey(params.ExternalID, common.KindSource, params.UserID)

	source, err := c.storage.GetSourceByExternalID(ctx, params.UserID, params.ExternalID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	if source == nil {
		source = &common.Source{
			UserID:            params.UserID,
			ExternalID:        params.ExternalID,
			EntityKey:         sourceKey,
			Name:              params.Name,
			RawContent:        params.RawText,
			NormalizedContent: chunks,
			Summary:           summary,
			Participants:      params.Participants,
			Status:            common.SourceInProgress,
			CreatedAt:         params.OccurredAt,
		}
		if _, err := c.storage.CreateSource(ctx, source); err != nil {
			if !errors.Is(err, store.ErrDuplicateEntityKey) {
				return nil, nil, err
			}
			source, err = c.storage.GetSourceByExternalID(ctx, params.UserID, params.ExternalID)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	node, err := c.storage.GetNodeByEntityKey(ctx, params.UserID, sourceKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return source, nil, err
	}
	if node == nil {
		node = &common.Node{
			EntityKey:        sourceKey,
			UserID:           params.UserID,
			Kind:             common.KindSource,
			Name:             params.Name,
			CanonicalName:    params.ExternalID,
			Description:      summary,
			LastUpdateSource: sourceKey,
			Confidence:       1.0,
		}
		if _, err := c.storage.CreateNode(ctx, node); err != nil {
			if !errors.Is(err, store.ErrDuplicateEntityKey) {
				return source, nil, err
			}
			node, err = c.storage.GetNodeByEntityKey(ctx, params.UserID, sourceKey)
			if err != nil {
				return source, nil, err
			}
		}
	}

	return source, node, nil
}
