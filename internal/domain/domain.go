// Package domain provides the shared entity types used across yukemuri packages.
// This package exists to break import cycles between store, exchange, and the
// analysis pipeline. Types here are foundational data structures with no
// storage or CLI dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rating bounds for a visit (personal 1-10 scale, halves allowed).
const (
	RatingMin = 1.0
	RatingMax = 10.0
)

// Crowd and mood levels use a 1-5 and 1-10 integer scale respectively.
const (
	CrowdMin = 1
	CrowdMax = 5
	MoodMin  = 1
	MoodMax  = 10
)

// SpringType enumerates the water chemistry classes tracked for an onsen.
// Free-form values are accepted by the store; these are the ones the
// feature engineer knows how to one-hot encode.
var SpringTypes = []string{
	"simple", "sulfur", "chloride", "carbonated", "iron", "sulfate", "acidic", "radon",
}

// Onsen is a hot spring facility being tracked.
type Onsen struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Region       string          `json:"region"`
	Town         string          `json:"town,omitempty"`
	Latitude     *float64        `json:"latitude,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
	SpringType   string          `json:"spring_type,omitempty"`
	SourceTempC  *float64        `json:"source_temp_c,omitempty"`
	PH           *float64        `json:"ph,omitempty"`
	EntryFee     decimal.Decimal `json:"entry_fee"`
	HasRotenburo bool            `json:"has_rotenburo"`
	HasSauna     bool            `json:"has_sauna"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (o *Onsen) HasCoordinates() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// Validate checks field ranges. The store refuses to persist invalid onsens.
func (o *Onsen) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("onsen name is required")
	}
	if o.Latitude != nil && (*o.Latitude < -90 || *o.Latitude > 90) {
		return fmt.Errorf("latitude %v out of range [-90, 90]", *o.Latitude)
	}
	if o.Longitude != nil && (*o.Longitude < -180 || *o.Longitude > 180) {
		return fmt.Errorf("longitude %v out of range [-180, 180]", *o.Longitude)
	}
	if (o.Latitude == nil) != (o.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be set together")
	}
	if o.SourceTempC != nil && (*o.SourceTempC < 0 || *o.SourceTempC > 100) {
		return fmt.Errorf("source temperature %v out of range [0, 100]", *o.SourceTempC)
	}
	if o.PH != nil && (*o.PH < 0 || *o.PH > 14) {
		return fmt.Errorf("ph %v out of range [0, 14]", *o.PH)
	}
	if o.EntryFee.IsNegative() {
		return fmt.Errorf("entry fee must not be negative")
	}
	return nil
}

// Visit is a single bathing session at an onsen.
// Visits are keyed by UUID so exports can be merged across machines without
// colliding on autoincrement IDs.
type Visit struct {
	ID          string          `json:"id"`
	OnsenID     int64           `json:"onsen_id"`
	VisitedAt   time.Time       `json:"visited_at"`
	DurationMin int             `json:"duration_min"`
	BathTempC   *float64        `json:"bath_temp_c,omitempty"`
	CrowdLevel  int             `json:"crowd_level"`
	Weather     string          `json:"weather,omitempty"`
	Companions  int             `json:"companions"`
	TravelMin   int             `json:"travel_min"`
	Cost        decimal.Decimal `json:"cost"`
	Rating      float64         `json:"rating"`
	MoodBefore  int             `json:"mood_before"`
	MoodAfter   int             `json:"mood_after"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks field ranges. Zero values for optional scales are allowed
// (0 means "not recorded") so old imports stay loadable.
func (v *Visit) Validate() error {
	if v.OnsenID <= 0 {
		return fmt.Errorf("visit requires an onsen id")
	}
	if v.VisitedAt.IsZero() {
		return fmt.Errorf("visit requires a timestamp")
	}
	if v.DurationMin < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if v.TravelMin < 0 {
		return fmt.Errorf("travel time must not be negative")
	}
	if v.Companions < 0 {
		return fmt.Errorf("companions must not be negative")
	}
	if v.Cost.IsNegative() {
		return fmt.Errorf("cost must not be negative")
	}
	if v.Rating != 0 && (v.Rating < RatingMin || v.Rating > RatingMax) {
		return fmt.Errorf("rating %v out of range [%v, %v]", v.Rating, RatingMin, RatingMax)
	}
	if v.CrowdLevel != 0 && (v.CrowdLevel < CrowdMin || v.CrowdLevel > CrowdMax) {
		return fmt.Errorf("crowd level %d out of range [%d, %d]", v.CrowdLevel, CrowdMin, CrowdMax)
	}
	for name, mood := range map[string]int{"mood_before": v.MoodBefore, "mood_after": v.MoodAfter} {
		if mood != 0 && (mood < MoodMin || mood > MoodMax) {
			return fmt.Errorf("%s %d out of range [%d, %d]", name, mood, MoodMin, MoodMax)
		}
	}
	if v.BathTempC != nil && (*v.BathTempC < 0 || *v.BathTempC > 60) {
		return fmt.Errorf("bath temperature %v out of range [0, 60]", *v.BathTempC)
	}
	return nil
}

// IsWeekend reports whether the visit happened on Saturday or Sunday.
func (v *Visit) IsWeekend() bool {
	wd := v.VisitedAt.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// =============================================================================
// CHALLENGE RULESET
// =============================================================================

// RevisionStatus is the lifecycle state of a rule revision.
type RevisionStatus string

const (
	RevisionDraft    RevisionStatus = "draft"
	RevisionAccepted RevisionStatus = "accepted"
)

// ChangeOp is the kind of amendment a revision applies to a rule.
type ChangeOp string

const (
	ChangeAdd    ChangeOp = "add"
	ChangeAmend  ChangeOp = "amend"
	ChangeRetire ChangeOp = "retire"
)

// Rule is a single clause of the personal onsen challenge ruleset.
type Rule struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"` // R1, R2, ...
	Title      string `json:"title"`
	Body       string `json:"body"`
	Active     bool   `json:"active"`
	CreatedRev int    `json:"created_rev"`
	RetiredRev int    `json:"retired_rev,omitempty"`
}

// RevisionChange is one amendment inside a revision.
type RevisionChange struct {
	Op       ChangeOp `json:"op"`
	RuleCode string   `json:"rule_code"`
	Title    string   `json:"title,omitempty"`
	OldBody  string   `json:"old_body,omitempty"`
	NewBody  string   `json:"new_body,omitempty"`
}

// Revision is a weekly versioned amendment to the ruleset, stored both as
// database rows and as a canonical markdown document.
type Revision struct {
	Version    int              `json:"version"`
	ISOYear    int              `json:"iso_year"`
	ISOWeek    int              `json:"iso_week"`
	Status     RevisionStatus   `json:"status"`
	Rationale  string           `json:"rationale"`
	Document   string           `json:"document"`
	Changes    []RevisionChange `json:"changes"`
	CreatedAt  time.Time        `json:"created_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
}

// =============================================================================
// ANALYSIS ARTIFACTS
// =============================================================================

// InsightSeverity grades how strongly the data backs an insight.
type InsightSeverity string

const (
	SeverityInfo    InsightSeverity = "info"
	SeverityNotable InsightSeverity = "notable"
	SeverityStrong  InsightSeverity = "strong"
)

// Insight is one mined finding from an analysis run.
type Insight struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Category  string          `json:"category"`
	Severity  InsightSeverity `json:"severity"`
	Title     string          `json:"title"`
	Detail    string          `json:"detail"`
	Support   float64         `json:"support"` // share of specs backing it, 0-1
	CreatedAt time.Time       `json:"created_at"`
}

// AnalysisRun records one invocation of the model search engine.
type AnalysisRun struct {
	ID        string    `json:"id"` // uuid
	CreatedAt time.Time `json:"created_at"`
	Dependent string    `json:"dependent"`
	Criterion string    `json:"criterion"`
	Robust    string    `json:"robust"`
	SpecCount int       `json:"spec_count"`
	FitCount  int       `json:"fit_count"`
	SkipCount int       `json:"skip_count"`
	BestSpec  string    `json:"best_spec"`
	Rows      int       `json:"rows"`
	Notes     string    `json:"notes,omitempty"`
}
