// Package protocol builds the audit record of an auction.
package protocol

import (
	"fmt"
	"time"

	"auctionworker/pkg/model"

	"gopkg.in/yaml.v2"
)

// New starts an empty protocol for doc and the tender it was prepared from.
func New(doc *model.AuctionDocument, tender *model.Tender) *model.Protocol {
	p := &model.Protocol{
		ID:           doc.ID,
		AuctionDocID: doc.ID,
		AuctionID:    doc.AuctionID,
		Items:        doc.Items,
		Timeline: model.Timeline{
			AuctionStart: model.AuctionStart{InitialBids: []model.BidRecord{}},
			Entries:      map[string]model.TimelineEntry{},
		},
	}
	if tender != nil {
		if tender.AuctionID != "" {
			p.AuctionID = tender.AuctionID
		}
		if tender.Items != nil {
			p.Items = tender.Items
		}
	}
	return p
}

// Start records the auction start time and the initial bids.
func Start(p *model.Protocol, at time.Time, initial []model.Result) {
	p.Timeline.AuctionStart.Time = model.FormatTime(at)
	p.Timeline.AuctionStart.InitialBids = make([]model.BidRecord, 0, len(initial))
	for _, r := range initial {
		p.Timeline.AuctionStart.InitialBids = append(p.Timeline.AuctionStart.InitialBids, bidRecord(r.BidderID, r.Amount, r.Time))
	}
}

// RoundNumber is the 1-based round a stage index belongs to.
func RoundNumber(stage int) int {
	return stage/2 + 1
}

// ApproveBid records the bid that closed the current stage as round_N.
func ApproveBid(p *model.Protocol, doc *model.AuctionDocument) {
	stage, ok := doc.CurrentStageEntry()
	if !ok {
		return
	}
	entries(p)[fmt.Sprintf("round_%d", RoundNumber(doc.CurrentStage))] = model.TimelineEntry{
		Bidder: stage.BidderID,
		Amount: stage.Amount,
		Time:   stage.Time,
	}
}

// ApproveStages records every pause and round of doc as stage_N.
func ApproveStages(p *model.Protocol, doc *model.AuctionDocument) {
	for i, stage := range doc.Stages {
		key := fmt.Sprintf("stage_%d", i)
		switch stage.Type {
		case model.StagePause:
			pause := &model.PauseRecord{Start: stage.Start}
			if i+1 < len(doc.Stages) {
				pause.End = doc.Stages[i+1].Start
			}
			entries(p)[key] = model.TimelineEntry{Pause: pause}
		case model.StageRound:
			bids := &model.BidRecord{}
			if stage.Time != "" {
				*bids = bidRecord(stage.BidderID, stage.Amount, stage.Time)
			}
			entries(p)[key] = model.TimelineEntry{Bids: bids}
		}
	}
}

// ApproveResults records the final standings. approved, keyed by bid id,
// adds the bidder identification once the tender released it.
func ApproveResults(p *model.Protocol, doc *model.AuctionDocument, at time.Time, approved map[string]model.TenderBid) {
	results := &model.ProtocolResults{
		Time: model.FormatTime(at),
		Bids: make([]model.BidRecord, 0, len(doc.Results)),
	}
	for _, r := range doc.Results {
		rec := bidRecord(r.BidderID, r.Amount, r.Time)
		if bid, ok := approved[r.BidderID]; ok {
			rec.Identification = bid.Tenderers
			if rec.Identification == nil {
				rec.Identification = []map[string]any{}
			}
			rec.Owner = bid.Owner
		}
		results.Bids = append(results.Bids, rec)
	}
	p.Timeline.Results = results
}

// Render dumps p as YAML.
func Render(p *model.Protocol) ([]byte, error) {
	out, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to render protocol: %w", err)
	}
	return out, nil
}

// Rebuild reconstructs the protocol of a finished document.
func Rebuild(doc *model.AuctionDocument, tender *model.Tender, approved map[string]model.TenderBid) *model.Protocol {
	p := New(doc, tender)
	if len(doc.Stages) > 0 {
		p.Timeline.AuctionStart.Time = doc.Stages[0].Start
	}
	for _, r := range doc.InitialBids {
		p.Timeline.AuctionStart.InitialBids = append(p.Timeline.AuctionStart.InitialBids, bidRecord(r.BidderID, r.Amount, r.Time))
	}
	for i, stage := range doc.Stages {
		if stage.IsRound() && stage.Time != "" {
			entries(p)[fmt.Sprintf("round_%d", RoundNumber(i))] = model.TimelineEntry{
				Bidder: stage.BidderID,
				Amount: stage.Amount,
				Time:   stage.Time,
			}
		}
	}
	ApproveStages(p, doc)

	end := time.Now()
	if doc.EndDate != "" {
		if t, err := model.ParseTime(doc.EndDate); err == nil {
			end = t
		}
	}
	ApproveResults(p, doc, end, approved)
	return p
}

func entries(p *model.Protocol) map[string]model.TimelineEntry {
	if p.Timeline.Entries == nil {
		p.Timeline.Entries = map[string]model.TimelineEntry{}
	}
	return p.Timeline.Entries
}

func bidRecord(bidder string, amount float64, at string) model.BidRecord {
	return model.BidRecord{Bidder: bidder, Amount: amount, Time: at}
}
