package domain

import "time"

// SearchLimits bounds the ranking pipeline.
type SearchLimits struct {
	DefaultLimit int
	MaxLimit     int
	// ScanMaxDocs caps the client-side cosine scan used when the vector
	// lookup procedure is missing.
	ScanMaxDocs int
	// EmbeddingDimensions, when positive, is the expected query vector
	// length. A different length means the corpus and the query were
	// embedded by different models.
	EmbeddingDimensions int
}

type NormalizerLimits struct {
	ClassifyTimeout time.Duration
	SpellTimeout    time.Duration
	RewriteTimeout  time.Duration
	HistoryTurns    int
}

type ChatLimits struct {
	DefaultLimit         int
	ContextThreshold     float64
	DisplayThreshold     float64
	DisplayFallbackCount int
	WebSearchLimit       int
	GenerateTimeout      time.Duration
}
