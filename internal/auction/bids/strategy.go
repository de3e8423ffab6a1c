package bids

import (
	"sort"

	"auctionworker/internal/auction/stages"
	"auctionworker/pkg/config"
	"auctionworker/pkg/model"
)

// Strategy is a bidding discipline: how a bid is recorded and what the next
// round asks for.
type Strategy interface {
	Name() string
	// Admit records bid as the outcome of stages[stage] and in results.
	Admit(doc *model.AuctionDocument, stage int, bid model.Bid, label model.Label) model.Result
	// NextRoundAmount is the amount of the round opened after bid.
	NextRoundAmount(doc *model.AuctionDocument, bid model.Bid) float64
}

// NewStrategy returns the discipline configured by name. Unknown names fall
// back to ascending.
func NewStrategy(name string) Strategy {
	if name == config.DisciplineLedger {
		return Ledger{}
	}
	return Ascending{}
}

func closeStage(doc *model.AuctionDocument, stage int, result model.Result) {
	label := result.Label
	s := &doc.Stages[stage]
	s.BidderID = result.BidderID
	s.Amount = result.Amount
	s.Time = result.Time
	s.Label = &label
}

func resultOf(bid model.Bid, label model.Label) model.Result {
	return model.Result{
		BidderID: bid.BidderID,
		Time:     model.FormatTime(bid.Time),
		Amount:   bid.Amount,
		Label:    label,
	}
}

// Ascending closes one round per bid and keeps every bid in results, in
// admission order. The next round asks for the bid plus a minimal step.
type Ascending struct{}

func (Ascending) Name() string { return config.DisciplineAscending }

func (Ascending) Admit(doc *model.AuctionDocument, stage int, bid model.Bid, label model.Label) model.Result {
	result := resultOf(bid, label)
	closeStage(doc, stage, result)
	doc.Results = append(doc.Results, result)
	return result
}

func (Ascending) NextRoundAmount(doc *model.AuctionDocument, bid model.Bid) float64 {
	return stages.TermsOf(doc).NextAmount(bid.Amount)
}

// Ledger keeps the latest bid of every bidder, ranked by amount. The next
// round asks for the leading amount plus a minimal step.
type Ledger struct{}

func (Ledger) Name() string { return config.DisciplineLedger }

func (Ledger) Admit(doc *model.AuctionDocument, stage int, bid model.Bid, label model.Label) model.Result {
	result := resultOf(bid, label)
	closeStage(doc, stage, result)

	replaced := false
	for i := range doc.Results {
		if doc.Results[i].BidderID == bid.BidderID {
			doc.Results[i] = result
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Results = append(doc.Results, result)
	}
	sort.SliceStable(doc.Results, func(i, j int) bool {
		return doc.Results[i].Amount > doc.Results[j].Amount
	})
	return result
}

func (Ledger) NextRoundAmount(doc *model.AuctionDocument, bid model.Bid) float64 {
	base := bid.Amount
	if len(doc.Results) > 0 {
		base = doc.Results[0].Amount
	}
	return stages.TermsOf(doc).NextAmount(base)
}
