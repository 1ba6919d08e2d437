package steps

import "time"

// RetrievalConfig tunes the hybrid retriever.
type RetrievalConfig struct {
	RRFK                 int
	CandidatesMultiplier int
	AnchoringEnabled     bool
	AnchorBoost          float64
	Timeout              time.Duration
}

func (c RetrievalConfig) withDefaults() RetrievalConfig {
	if c.RRFK <= 0 {
		c.RRFK = 60
	}
	if c.CandidatesMultiplier <= 0 {
		c.CandidatesMultiplier = 2
	}
	if c.AnchorBoost == 0 {
		c.AnchorBoost = 0.3
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// RerankConfig tunes the cross-encoder and diversity stages.
type RerankConfig struct {
	CrossEncoderEnabled  bool
	CrossEncoderModelID  string
	DiversityEnabled     bool
	MinChunksPerDocument int
	MaxTextChars         int
}

func (c RerankConfig) withDefaults() RerankConfig {
	if c.MinChunksPerDocument <= 0 {
		c.MinChunksPerDocument = 2
	}
	if c.MaxTextChars <= 0 {
		c.MaxTextChars = 1000
	}
	return c
}

// ReformulationConfig tunes multi-turn query rewriting.
type ReformulationConfig struct {
	Enabled                 bool
	HistoryWindow           int
	MinRecentMessages       int
	MaxQueryLength          int
	CandidatePoolMultiplier int
}

func (c ReformulationConfig) withDefaults() ReformulationConfig {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 5
	}
	if c.MinRecentMessages <= 0 {
		c.MinRecentMessages = 2
	}
	if c.MaxQueryLength <= 0 {
		c.MaxQueryLength = 500
	}
	if c.CandidatePoolMultiplier <= 0 {
		c.CandidatePoolMultiplier = 4
	}
	return c
}

// CompactionConfig tunes transcript summarization.
type CompactionConfig struct {
	SlidingWindowSize int
	TokenThreshold    int
	MessageThreshold  int
	BatchSize         int
}

func (c CompactionConfig) withDefaults() CompactionConfig {
	if c.SlidingWindowSize <= 0 {
		c.SlidingWindowSize = 10
	}
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = 3000
	}
	if c.MessageThreshold <= 0 {
		c.MessageThreshold = 30
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	return c
}

// MemoryConfig tunes extraction and retrieval of session memories.
type MemoryConfig struct {
	Enabled             bool
	MaxPerSession       int
	ExtractionThreshold float64
	ContextLimit        int
	SemanticWeight      float64
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.MaxPerSession <= 0 {
		c.MaxPerSession = 50
	}
	if c.ExtractionThreshold <= 0 {
		c.ExtractionThreshold = 0.3
	}
	if c.ContextLimit < 0 {
		c.ContextLimit = 5
	}
	if c.SemanticWeight <= 0 {
		c.SemanticWeight = 0.7
	}
	return c
}

// VerificationConfig tunes answer verification and confidence scoring.
type VerificationConfig struct {
	Enabled          bool
	SupportThreshold float64

	WeightMaxRRF    float64
	WeightAgreement float64
	WeightCoverage  float64
	WeightDiversity float64
	HighThreshold   float64
	MediumThreshold float64
}

func (c VerificationConfig) withDefaults() VerificationConfig {
	if c.SupportThreshold <= 0 {
		c.SupportThreshold = 0.7
	}
	if c.WeightMaxRRF <= 0 {
		c.WeightMaxRRF = 0.4
	}
	if c.WeightAgreement <= 0 {
		c.WeightAgreement = 0.3
	}
	if c.WeightCoverage <= 0 {
		c.WeightCoverage = 0.2
	}
	if c.WeightDiversity <= 0 {
		c.WeightDiversity = 0.1
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = 0.7
	}
	if c.MediumThreshold <= 0 {
		c.MediumThreshold = 0.4
	}
	return c
}
