package graph

import (
	"fmt"

	"github.com/CaptainCrouton89/Saturn-sub003/internal/util"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/ai"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/store"
)

// ResolutionConfig holds the heuristic thresholds of the resolver and the
// matcher tiers. The defaults come from DefaultResolutionConfig and can be
// overridden per deployment through the environment; they are calibration
// targets, not derived constants.
type ResolutionConfig struct {
	// AutoAcceptSimilarity is the embedding similarity above which a match
	// is accepted without disambiguation.
	AutoAcceptSimilarity float64
	// DisambiguateFloor is the lower bound (exclusive) of the ambiguous
	// band (DisambiguateFloor, AutoAcceptSimilarity] that triggers the
	// disambiguation capability.
	DisambiguateFloor float64
	// EmbeddingThreshold is the minimum similarity the embedding tier
	// returns candidates for.
	EmbeddingThreshold float64
	// EmbeddingLimit caps the embedding tier's result list.
	EmbeddingLimit int
	// FuzzyMaxDistance is the maximum edit distance of the fuzzy tier.
	FuzzyMaxDistance int
	// FuzzyLimit caps the fuzzy tier's result list.
	FuzzyLimit int
	// FuzzyMinScore rejects fuzzy hits whose normalized score
	// (1 - distance/len) is at or below this value.
	FuzzyMinScore float64
	// CandidateLimit caps the merged candidate list handed to the resolver.
	CandidateLimit int
}

// DefaultResolutionConfig returns the standard thresholds, each overridable
// by environment variable.
func DefaultResolutionConfig() ResolutionConfig {
	return ResolutionConfig{
		AutoAcceptSimilarity: util.GetEnvNumeric("RESOLVE_AUTO_ACCEPT_SIMILARITY", 0.92),
		DisambiguateFloor:    util.GetEnvNumeric("RESOLVE_DISAMBIGUATE_FLOOR", 0.85),
		EmbeddingThreshold:   util.GetEnvNumeric("RESOLVE_EMBEDDING_THRESHOLD", 0.75),
		EmbeddingLimit:       int(util.GetEnvNumeric("RESOLVE_EMBEDDING_LIMIT", 20)),
		FuzzyMaxDistance:     int(util.GetEnvNumeric("RESOLVE_FUZZY_MAX_DISTANCE", 3)),
		FuzzyLimit:           int(util.GetEnvNumeric("RESOLVE_FUZZY_LIMIT", 5)),
		FuzzyMinScore:        util.GetEnvNumeric("RESOLVE_FUZZY_MIN_SCORE", 0.5),
		CandidateLimit:       int(util.GetEnvNumeric("RESOLVE_CANDIDATE_LIMIT", 20)),
	}
}

// MemoryClient runs the ingestion pipeline for a user's memory graph. It
// manages token encoding for chunking, lookup parallelism and retry counts
// around AI calls.
//
// A MemoryClient should be created using NewMemoryClient.
type MemoryClient struct {
	storage  store.MemoryStorage
	aiClient ai.MemoryAIClient

	tokenEncoder    string
	maxChunkTokens  int
	parallelLookups int
	maxRetries      int

	resolution ResolutionConfig
}

// NewMemoryClientParams defines the configuration parameters for creating a
// new MemoryClient.
//
// TokenEncoder names the tiktoken encoding used for chunking.
// MaxChunkTokens caps a normalized chunk's token count.
// ParallelLookups controls how many matcher queries run concurrently.
type NewMemoryClientParams struct {
	Storage  store.MemoryStorage
	AIClient ai.MemoryAIClient

	TokenEncoder    string
	MaxChunkTokens  int
	ParallelLookups int
	MaxRetries      int

	Resolution *ResolutionConfig
}

// NewMemoryClient creates and returns a new MemoryClient configured with the
// provided parameters.
func NewMemoryClient(params NewMemoryClientParams) (*MemoryClient, error) {
	if params.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if params.AIClient == nil {
		return nil, fmt.Errorf("ai client is required")
	}

	encoder := params.TokenEncoder
	if encoder == "" {
		encoder = "o200k_base"
	}
	maxChunkTokens := params.MaxChunkTokens
	if maxChunkTokens <= 0 {
		maxChunkTokens = 600
	}
	parallelLookups := params.ParallelLookups
	if parallelLookups <= 0 {
		parallelLookups = 4
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	resolution := DefaultResolutionConfig()
	if params.Resolution != nil {
		resolution = *params.Resolution
	}

	return &MemoryClient{
		storage:  params.Storage,
		aiClient: params.AIClient,

		tokenEncoder:    encoder,
		maxChunkTokens:  maxChunkTokens,
		parallelLookups: parallelLookups,
		maxRetries:      maxRetries,

		resolution: resolution,
	}, nil
}
