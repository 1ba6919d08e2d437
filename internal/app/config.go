package app

import (
	"strings"
	"time"

	"github.com/yungbote/notebook-backend/internal/ingest"
	"github.com/yungbote/notebook-backend/internal/modules/chat/steps"
	"github.com/yungbote/notebook-backend/internal/platform/envutil"
	"github.com/yungbote/notebook-backend/internal/services"
)

// Config is the full runtime configuration, loaded from the environment
// with every knob defaulted to a working local setup.
type Config struct {
	HTTPAddr    string
	LogMode     string
	CORSOrigins []string

	DatabaseURL  string
	RedisAddr    string
	RedisChannel string

	OTelEnabled     bool
	OTelServiceName string

	SearchPrefix         string
	SearchAnalyzer       string
	SearchSearchAnalyzer string

	Chunk ingest.ChunkOptions

	IngestWorkers   int
	IngestQueueSize int
	IngestTimeout   time.Duration
	MaxUploadBytes  int64

	Chat          services.ChatConfig
	Retrieval     steps.RetrievalConfig
	Rerank        steps.RerankConfig
	Reformulation steps.ReformulationConfig
	Compaction    steps.CompactionConfig
	Memory        steps.MemoryConfig
	Verification  steps.VerificationConfig
}

func LoadConfig() Config {
	var origins []string
	if raw := envutil.Str("CORS_ORIGINS", ""); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return Config{
		HTTPAddr:    envutil.Str("HTTP_ADDR", ":8080"),
		LogMode:     envutil.Str("LOG_MODE", "development"),
		CORSOrigins: origins,

		DatabaseURL:  envutil.Str("DATABASE_URL", ""),
		RedisAddr:    envutil.Str("REDIS_ADDR", ""),
		RedisChannel: envutil.Str("REDIS_CHANNEL", "sse"),

		OTelEnabled:     envutil.Bool("OTEL_ENABLED", false),
		OTelServiceName: envutil.Str("OTEL_SERVICE_NAME", "notebook-backend"),

		SearchPrefix:         envutil.Str("SEARCH_INDEX_PREFIX", "notebooklm"),
		SearchAnalyzer:       envutil.Str("SEARCH_ANALYZER", "ik_max_word"),
		SearchSearchAnalyzer: envutil.Str("SEARCH_SEARCH_ANALYZER", "ik_smart"),

		Chunk: ingest.ChunkOptions{
			ChunkTokens:   envutil.Int("CHUNK_TOKENS", 512),
			OverlapTokens: envutil.Int("CHUNK_OVERLAP_TOKENS", 50),
			MaxChunkChars: envutil.Int("CHUNK_MAX_CHARS", 3500),
		},

		IngestWorkers:   envutil.Int("INGEST_WORKERS", 0),
		IngestQueueSize: envutil.Int("INGEST_QUEUE_SIZE", 64),
		IngestTimeout:   envutil.Dur("INGEST_TIMEOUT", 5*time.Minute),
		MaxUploadBytes:  int64(envutil.Int("MAX_UPLOAD_BYTES", services.DefaultMaxUploadBytes)),

		Chat: services.ChatConfig{
			SlidingWindowSize:  envutil.Int("CHAT_SLIDING_WINDOW", 10),
			MemoryContextLimit: envutil.Int("MEMORY_CONTEXT_LIMIT", 5),
			StreamTimeout:      envutil.Dur("CHAT_STREAM_TIMEOUT", 60*time.Second),
		},
		Retrieval: steps.RetrievalConfig{
			RRFK:                 envutil.Int("RETRIEVAL_RRF_K", 60),
			CandidatesMultiplier: envutil.Int("RETRIEVAL_CANDIDATES_MULTIPLIER", 2),
			AnchoringEnabled:     envutil.Bool("RETRIEVAL_ANCHORING_ENABLED", true),
			AnchorBoost:          envutil.Float("RETRIEVAL_ANCHOR_BOOST", 0.3),
			Timeout:              envutil.Dur("RETRIEVAL_TIMEOUT", 5*time.Second),
		},
		Rerank: steps.RerankConfig{
			CrossEncoderEnabled:  envutil.Bool("CROSS_ENCODER_ENABLED", true),
			CrossEncoderModelID:  envutil.Str("CROSS_ENCODER_MODEL_ID", ".rerank-v1"),
			DiversityEnabled:     envutil.Bool("DIVERSITY_RERANK_ENABLED", true),
			MinChunksPerDocument: envutil.Int("DIVERSITY_MIN_CHUNKS_PER_DOC", 2),
			MaxTextChars:         envutil.Int("CROSS_ENCODER_MAX_CHARS", 1000),
		},
		Reformulation: steps.ReformulationConfig{
			Enabled:       envutil.Bool("REFORMULATION_ENABLED", true),
			HistoryWindow: envutil.Int("REFORMULATION_HISTORY_WINDOW", 5),
		},
		Compaction: steps.CompactionConfig{
			SlidingWindowSize: envutil.Int("CHAT_SLIDING_WINDOW", 10),
			TokenThreshold:    envutil.Int("COMPACTION_TOKEN_THRESHOLD", 3000),
			MessageThreshold:  envutil.Int("COMPACTION_MESSAGE_THRESHOLD", 30),
			BatchSize:         envutil.Int("COMPACTION_BATCH_SIZE", 20),
		},
		Memory: steps.MemoryConfig{
			Enabled:             envutil.Bool("MEMORY_ENABLED", true),
			MaxPerSession:       envutil.Int("MEMORY_MAX_PER_SESSION", 50),
			ExtractionThreshold: envutil.Float("MEMORY_EXTRACTION_THRESHOLD", 0.3),
			ContextLimit:        envutil.Int("MEMORY_CONTEXT_LIMIT", 5),
		},
		Verification: steps.VerificationConfig{
			Enabled:          envutil.Bool("VERIFICATION_ENABLED", true),
			SupportThreshold: envutil.Float("VERIFICATION_SUPPORT_THRESHOLD", 0.7),
		},
	}
}
