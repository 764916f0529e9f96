/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// FadeCurve enumerates the closed set of gain envelope shapes the fader can
// pre-bake into a chain's decoded samples.
type FadeCurve string

const (
	FadeCurveLinear      FadeCurve = "linear"
	FadeCurveExponential FadeCurve = "exponential"
	FadeCurveLogarithmic FadeCurve = "logarithmic"
	FadeCurveSCurve      FadeCurve = "s_curve"
	FadeCurveEqualPower  FadeCurve = "equal_power"
)

// ValidFadeCurves lists the curves accepted by passage and override rows.
var ValidFadeCurves = []FadeCurve{
	FadeCurveLinear, FadeCurveExponential, FadeCurveLogarithmic, FadeCurveSCurve, FadeCurveEqualPower,
}

// IsValidFadeCurve reports whether val names one of ValidFadeCurves.
func IsValidFadeCurve(val FadeCurve) bool {
	for _, c := range ValidFadeCurves {
		if c == val {
			return true
		}
	}
	return false
}

// Passage is a timed region within an audio file, the unit of playback
// scheduling. All timing fields are ticks (internal/tick.Tick), measured
// from file start.
type Passage struct {
	ID                string `gorm:"type:uuid;primaryKey;column:passage_id"`
	FilePath          string `gorm:"type:text;column:file_path"`
	StartTicks        int64  `gorm:"column:start_time_ticks"`
	EndTicks          int64  `gorm:"column:end_time_ticks"`
	FadeInStartTicks  int64  `gorm:"column:fade_in_start_ticks"`
	FadeInEndTicks    int64  `gorm:"column:fade_in_end_ticks"`
	FadeOutStartTicks int64  `gorm:"column:fade_out_start_ticks"`
	FadeOutEndTicks   int64  `gorm:"column:fade_out_end_ticks"`
	LeadInStartTicks  int64  `gorm:"column:lead_in_start_ticks"`
	LeadOutStartTicks int64  `gorm:"column:lead_out_start_ticks"`
	FadeInCurve       FadeCurve `gorm:"type:varchar(16);column:fade_in_curve_type"`
	FadeOutCurve      FadeCurve `gorm:"type:varchar(16);column:fade_out_curve_type"`
	Metadata          map[string]any `gorm:"serializer:json"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName overrides the GORM default pluralization to match the schema
// owned externally by the Program Director service.
func (Passage) TableName() string {
	return "passages"
}

// Overrides holds the optional per-entry timing/curve overrides a queue
// entry may carry. A nil field means "use the passage default".
type Overrides struct {
	FadeInDurationTicks  *int64     `json:"fade_in_duration_ticks,omitempty"`
	FadeOutDurationTicks *int64     `json:"fade_out_duration_ticks,omitempty"`
	FadeInCurve          *FadeCurve `json:"fade_in_curve,omitempty"`
	FadeOutCurve         *FadeCurve `json:"fade_out_curve,omitempty"`
	LeadInTicks          *int64     `json:"lead_in_ticks,omitempty"`
	LeadOutTicks         *int64     `json:"lead_out_ticks,omitempty"`
}

// QueueEntry is one instance of a passage placed in the play order. It is
// persisted; chain assignment and mixer state are not.
type QueueEntry struct {
	ID         string     `gorm:"type:uuid;primaryKey;column:queue_entry_id" json:"queue_entry_id"`
	PassageID  string     `gorm:"type:uuid;index;column:passage_id" json:"passage_id"`
	PlayOrder  int64      `gorm:"uniqueIndex;column:play_order" json:"play_order"`
	Overrides  *Overrides `gorm:"serializer:json" json:"overrides,omitempty"`
	EnqueuedAt int64      `gorm:"column:enqueued_at" json:"enqueued_at"` // unix nanos, wall-clock time at enqueue (not guaranteed monotonic)
}

// TableName overrides the GORM default pluralization.
func (QueueEntry) TableName() string {
	return "queue"
}

// AppliedTiming is the effective timing resolved from a passage's defaults
// and a queue entry's overrides on enqueue. It is never persisted; it is
// recomputed from Passage+Overrides whenever needed and returned verbatim
// in the enqueue response and PassageStarted events.
type AppliedTiming struct {
	Start         int64     `json:"start"`
	End           int64     `json:"end"`
	FadeInStart   int64     `json:"fade_in_start"`
	FadeInEnd     int64     `json:"fade_in_end"`
	FadeOutStart  int64     `json:"fade_out_start"`
	FadeOutEnd    int64     `json:"fade_out_end"`
	LeadIn        int64     `json:"lead_in"`
	LeadOut       int64     `json:"lead_out"`
	FadeInCurve   FadeCurve `json:"fade_in_curve_type"`
	FadeOutCurve  FadeCurve `json:"fade_out_curve_type"`
}

// ResolveAppliedTiming merges a passage's defaults with a queue entry's
// overrides.
func ResolveAppliedTiming(p *Passage, o *Overrides) AppliedTiming {
	at := AppliedTiming{
		Start:        p.StartTicks,
		End:          p.EndTicks,
		FadeInEnd:    p.FadeInEndTicks,
		FadeOutStart: p.FadeOutStartTicks,
		FadeOutEnd:   p.EndTicks,
		LeadIn:       p.LeadInStartTicks,
		LeadOut:      p.LeadOutStartTicks,
		FadeInCurve:  p.FadeInCurve,
		FadeOutCurve: p.FadeOutCurve,
	}
	at.FadeInStart = p.StartTicks

	if o == nil {
		return at
	}
	if o.FadeInCurve != nil {
		at.FadeInCurve = *o.FadeInCurve
	}
	if o.FadeOutCurve != nil {
		at.FadeOutCurve = *o.FadeOutCurve
	}
	if o.LeadInTicks != nil {
		at.LeadIn = *o.LeadInTicks
	}
	if o.LeadOutTicks != nil {
		at.LeadOut = *o.LeadOutTicks
	}
	if o.FadeInDurationTicks != nil {
		at.FadeInEnd = at.Start + *o.FadeInDurationTicks
	}
	if o.FadeOutDurationTicks != nil {
		at.FadeOutStart = at.End - *o.FadeOutDurationTicks
	}
	return at
}
