package validator

import (
	"errors"
	"strings"
	"testing"
	"time"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/config"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"
)

func TestValidate_Form(t *testing.T) {
	v := NewBidValidator(config.DisciplineAscending, logger.Discard())

	tests := []struct {
		name      string
		form      BidForm
		wantError string
	}{
		{"valid", BidForm{BidderID: "b1", Amount: 575000}, ""},
		{"cents", BidForm{BidderID: "b1", Amount: 575000.25}, ""},
		{"padded id", BidForm{BidderID: "  b1  ", Amount: 1}, ""},
		{"missing bidder", BidForm{Amount: 575000}, "BidderID is required"},
		{"zero amount", BidForm{BidderID: "b1"}, "Bid amount must be positive"},
		{"negative amount", BidForm{BidderID: "b1", Amount: -5}, "Bid amount must be positive"},
		{"sub-cent amount", BidForm{BidderID: "b1", Amount: 1.005}, "at most two decimal places"},
		{"long bidder", BidForm{BidderID: strings.Repeat("x", 65), Amount: 1}, "at most 64 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := tt.form
			err := v.Validate(&form)
			if tt.wantError == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantError)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("expected error containing %q, got %v", tt.wantError, err)
			}
		})
	}
}

func openRound() *model.AuctionDocument {
	return &model.AuctionDocument{
		ID:           "a1",
		CurrentStage: 3,
		Stages: []model.Stage{
			{Type: model.StagePause},
			{Type: model.StageRound, Amount: 535000, BidderID: "b1", Time: "2026-03-02T11:01:00+02:00"},
			{Type: model.StagePause},
			{Type: model.StageRound, Amount: 575000},
		},
		MinimalStep: model.Value{Amount: 35000},
		BidsMapping: map[string]int{"b1": 1, "b2": 2},
	}
}

func TestCheck(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		discipline string
		bid        model.Bid
		wantError  string
	}{
		{"admissible", config.DisciplineAscending, model.Bid{BidderID: "b2", Amount: 575000, Time: now}, ""},
		{"above round amount", config.DisciplineAscending, model.Bid{BidderID: "b2", Amount: 645000, Time: now}, ""},
		{"too low", config.DisciplineAscending, model.Bid{BidderID: "b2", Amount: 560000, Time: now}, "Too low value"},
		{"not a step multiple", config.DisciplineAscending, model.Bid{BidderID: "b2", Amount: 576000, Time: now}, "multiple of the minimalStep amount (35000)"},
		{"unknown bidder", config.DisciplineAscending, model.Bid{BidderID: "b9", Amount: 575000, Time: now}, "Unknown bidder"},
		{"outbids itself", config.DisciplineAscending, model.Bid{BidderID: "b1", Amount: 575000, Time: now}, "already holds the previous round"},
		{"ledger allows repeat bidder", config.DisciplineLedger, model.Bid{BidderID: "b1", Amount: 575000, Time: now}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewBidValidator(tt.discipline, logger.Discard())
			err := v.Check(openRound(), tt.bid)
			if tt.wantError == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("expected error containing %q, got %v", tt.wantError, err)
			}
		})
	}
}

func TestCheck_ClosedStage(t *testing.T) {
	v := NewBidValidator(config.DisciplineLedger, logger.Discard())

	pause := openRound()
	pause.CurrentStage = 2
	closed := openRound()
	closed.CurrentStage = 1
	cancelled := openRound()
	cancelled.CurrentStage = model.StageCancelled

	for _, doc := range []*model.AuctionDocument{pause, closed, cancelled} {
		err := v.Check(doc, model.Bid{BidderID: "b2", Amount: 575000})
		if !errors.Is(err, auctionerrors.ErrBiddingClosed) {
			t.Errorf("stage %d: expected ErrBiddingClosed, got %v", doc.CurrentStage, err)
		}
	}
}
