// Package stages computes auction stage sequences and deadlines. Every
// function is pure.
package stages

import (
	"time"

	"auctionworker/pkg/model"

	"github.com/shopspring/decimal"
)

// Timing is the clock configuration shared by every stage computation.
type Timing struct {
	Pause        time.Duration
	Round        time.Duration
	DeadlineHour int
}

// Terms are the financial terms a round amount is derived from.
type Terms struct {
	Value       float64
	MinimalStep float64
}

// NextAmount returns base + minimal step, computed in decimal.
func (t Terms) NextAmount(base float64) float64 {
	amount, _ := decimal.NewFromFloat(base).Add(decimal.NewFromFloat(t.MinimalStep)).Float64()
	return amount
}

// FirstRoundAmount is value + minimal step.
func (t Terms) FirstRoundAmount() float64 {
	return t.NextAmount(t.Value)
}

// TermsOf reads the terms of doc.
func TermsOf(doc *model.AuctionDocument) Terms {
	return Terms{Value: doc.Value.Amount, MinimalStep: doc.MinimalStep.Amount}
}

// SetSpecificHour returns t's calendar date at hour h mod 24, with minutes,
// seconds and nanoseconds zeroed, in t's location.
func SetSpecificHour(t time.Time, h int) time.Time {
	h %= 24
	if h < 0 {
		h += 24
	}
	return time.Date(t.Year(), t.Month(), t.Day(), h, 0, 0, 0, t.Location())
}

// Deadline is the cutoff of t's calendar day.
func (tm Timing) Deadline(t time.Time) time.Time {
	return SetSpecificHour(t, tm.DeadlineHour)
}

// RoundEndingTime is min(start+duration, deadline).
func RoundEndingTime(start time.Time, duration time.Duration, deadline time.Time) time.Time {
	end := start.Add(duration)
	if deadline.Before(end) {
		return deadline
	}
	return end
}

// PrepareAuctionStages returns a pause starting at ref and, when the round
// after it starts before the day's deadline, a round with the given amount.
// ok is false when no round fits.
func (tm Timing) PrepareAuctionStages(ref time.Time, amount float64) (pause, round model.Stage, ok bool) {
	pause = model.Stage{
		Start: model.FormatTime(ref),
		Type:  model.StagePause,
	}

	roundStart := ref.Add(tm.Pause)
	if !roundStart.Before(tm.Deadline(roundStart)) {
		return pause, model.Stage{}, false
	}

	round = model.Stage{
		Start:  model.FormatTime(roundStart),
		Type:   model.StageRound,
		Amount: amount,
	}
	return pause, round, true
}

// PrepareEndStage is the terminal announcement stage.
func PrepareEndStage(t time.Time) model.Stage {
	return model.Stage{
		Start: model.FormatTime(t),
		Type:  model.StageEnd,
	}
}
