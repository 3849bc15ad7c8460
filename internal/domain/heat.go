package domain

import "time"

// Intensity is a monotone bucketing of open-quest density inside a zone.
type Intensity string

const (
	IntensityLow      Intensity = "LOW"
	IntensityMedium   Intensity = "MEDIUM"
	IntensityHigh     Intensity = "HIGH"
	IntensityVeryHigh Intensity = "VERY_HIGH"
)

// HeatZone summarizes open-quest density and payment for one geographic
// bucket. Derived from a snapshot of quest state; a cache, never a source
// of truth.
type HeatZone struct {
	ID               string    `json:"id"`
	Center           Location  `json:"center"`
	RadiusMeters     float64   `json:"radius_meters"`
	QuestCount       int       `json:"quest_count"`
	AvgPaymentCents  int64     `json:"avg_payment_cents"`
	Intensity        Intensity `json:"intensity"`
}

// HeatSnapshot is a full recomputation of all non-empty zones at a point
// in time.
type HeatSnapshot struct {
	Zones      []HeatZone `json:"zones"`
	ComputedAt time.Time  `json:"computed_at"`
}
