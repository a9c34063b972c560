package model

import "time"

// MatchConfidence buckets a match score for display.
type MatchConfidence string

const (
	MatchConfidenceLow    MatchConfidence = "low"
	MatchConfidenceMedium MatchConfidence = "medium"
	MatchConfidenceHigh   MatchConfidence = "high"
)

// RawObservation is what a store worker yields before matching: one scraped
// data point about a competing product. Price is a pointer because many
// listings expose no price at all.
type RawObservation struct {
	StoreName  string    `json:"store_name"`
	Title      string    `json:"title"`
	Price      *float64  `json:"price,omitempty"`
	Currency   string    `json:"currency"`
	Brand      string    `json:"brand,omitempty"`
	ProductURL string    `json:"product_url"`
	InStock    bool      `json:"in_stock"`
	ScrapedAt  time.Time `json:"scraped_at"`
}

// CompetitorObservation is a raw observation that passed matching against a
// catalog item. Immutable after creation; owned by the observation store for
// the lifetime of its job.
type CompetitorObservation struct {
	ProductID      string          `json:"product_id"`
	StoreName      string          `json:"store_name"`
	Title          string          `json:"title"`
	Price          *float64        `json:"price,omitempty"`
	Currency       string          `json:"currency"`
	Brand          string          `json:"brand,omitempty"`
	ProductURL     string          `json:"product_url"`
	InStock        bool            `json:"in_stock"`
	ScrapedAt      time.Time       `json:"scraped_at"`
	MatchScore     float64         `json:"match_score"`
	MatchConfidence MatchConfidence `json:"match_confidence"`
	MatchReasoning string          `json:"match_reasoning,omitempty"`
}

// ConfidenceForScore buckets a match score into low/medium/high.
func ConfidenceForScore(score float64) MatchConfidence {
	switch {
	case score >= 0.7:
		return MatchConfidenceHigh
	case score >= 0.3:
		return MatchConfidenceMedium
	default:
		return MatchConfidenceLow
	}
}
