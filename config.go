package hippomem

import (
	"os"
	"strconv"

	"github.com/hippomem/hippomem/pkg/fusion"
	"github.com/hippomem/hippomem/pkg/memlog"
)

// Config is the engine's single typed configuration source, assembled
// from environment variables with documented defaults. Parsing lives in
// this one file so it is easy to audit against the deployment's env.
type Config struct {
	DBPath string

	EmbeddingModel     string
	EmbeddingDimension int

	ActivationIterations int
	ActivationDecay      float64

	SimilarityThreshold float64
	MaxSemanticLinks    int
	DuplicateThreshold  float64
	SimilarThreshold    float64

	BlendAlpha   float64
	BlendGamma   float64
	BlendDelta   float64
	FusionMethod string
	RRFK         int

	HalfLifeDays float64

	RerankEnabled bool
	RerankTopN    int
	RerankWeight  float64

	StaleEdgeDays int
	OrphanMinLinks int
	MaxSnapshots   int
	SnapshotDir    string

	SleepIntervalHours float64
	SleepNoteThreshold int

	EnableEmotionalMemory bool
	PageRankBoost         float64

	LogLevel string
}

// DefaultConfig returns the engine's defaults, matching §6.2 of the
// deployment reference.
func DefaultConfig() Config {
	return Config{
		DBPath: "./hippomem.db",

		EmbeddingModel:     "hippomem-hash-v1",
		EmbeddingDimension: 384,

		ActivationIterations: 3,
		ActivationDecay:      0.7,

		SimilarityThreshold: 0.5,
		MaxSemanticLinks:    5,
		DuplicateThreshold:  0.95,
		SimilarThreshold:    0.90,

		BlendAlpha:   0.6,
		BlendGamma:   0,
		BlendDelta:   0,
		FusionMethod: "blend",
		RRFK:         60,

		HalfLifeDays: 30,

		RerankEnabled: false,
		RerankTopN:    20,
		RerankWeight:  0.3,

		StaleEdgeDays:  90,
		OrphanMinLinks: 1,
		MaxSnapshots:   7,
		SnapshotDir:    "./snapshots",

		SleepIntervalHours: 6,
		SleepNoteThreshold: 50,

		EnableEmotionalMemory: false,
		PageRankBoost:         0.1,

		LogLevel: "info",
	}
}

// ConfigFromEnv overlays DefaultConfig with any of the environment
// variables listed in §6.2 that are set.
func ConfigFromEnv() Config {
	c := DefaultConfig()

	c.DBPath = getEnvString("DB_PATH", c.DBPath)
	c.EmbeddingModel = getEnvString("EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingDimension = getEnvInt("EMBEDDING_DIMENSION", c.EmbeddingDimension)

	c.ActivationIterations = getEnvInt("ACTIVATION_ITERATIONS", c.ActivationIterations)
	c.ActivationDecay = getEnvFloat("ACTIVATION_DECAY", c.ActivationDecay)

	c.SimilarityThreshold = getEnvFloat("SIMILARITY_THRESHOLD", c.SimilarityThreshold)
	c.MaxSemanticLinks = getEnvInt("MAX_SEMANTIC_LINKS", c.MaxSemanticLinks)
	c.DuplicateThreshold = getEnvFloat("DUPLICATE_THRESHOLD", c.DuplicateThreshold)
	c.SimilarThreshold = getEnvFloat("SIMILAR_THRESHOLD", c.SimilarThreshold)

	c.BlendAlpha = getEnvFloat("BLEND_ALPHA", c.BlendAlpha)
	c.BlendGamma = getEnvFloat("BLEND_GAMMA", c.BlendGamma)
	c.BlendDelta = getEnvFloat("BLEND_DELTA", c.BlendDelta)
	c.FusionMethod = getEnvString("FUSION_METHOD", c.FusionMethod)
	c.RRFK = getEnvInt("RRF_K", c.RRFK)

	c.HalfLifeDays = getEnvFloat("HALF_LIFE_DAYS", c.HalfLifeDays)

	c.RerankEnabled = getEnvBool("RERANK_ENABLED", c.RerankEnabled)
	c.RerankTopN = getEnvInt("RERANK_TOP_N", c.RerankTopN)
	c.RerankWeight = getEnvFloat("RERANK_WEIGHT", c.RerankWeight)

	c.StaleEdgeDays = getEnvInt("STALE_EDGE_DAYS", c.StaleEdgeDays)
	c.OrphanMinLinks = getEnvInt("ORPHAN_MIN_LINKS", c.OrphanMinLinks)
	c.MaxSnapshots = getEnvInt("MAX_SNAPSHOTS", c.MaxSnapshots)
	c.SnapshotDir = getEnvString("SNAPSHOT_DIR", c.SnapshotDir)

	c.SleepIntervalHours = getEnvFloat("SLEEP_INTERVAL_HOURS", c.SleepIntervalHours)
	c.SleepNoteThreshold = getEnvInt("SLEEP_NOTE_THRESHOLD", c.SleepNoteThreshold)

	c.EnableEmotionalMemory = getEnvBool("ENABLE_EMOTIONAL_MEMORY", c.EnableEmotionalMemory)
	c.PageRankBoost = getEnvFloat("PAGERANK_BOOST", c.PageRankBoost)

	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)

	return c
}

func (c Config) fusionWeights() fusion.Weights {
	return fusion.Weights{Alpha: c.BlendAlpha, Gamma: c.BlendGamma, Delta: c.BlendDelta}
}

func (c Config) fusionMethod() fusion.Method {
	if c.FusionMethod == string(fusion.MethodRRF) {
		return fusion.MethodRRF
	}
	return fusion.MethodBlend
}

func (c Config) logLevel() memlog.Level {
	return memlog.ParseLevel(c.LogLevel)
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
