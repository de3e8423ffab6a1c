// Package events announces auction progress on Kafka and feeds bids read
// from Kafka into admission.
package events

import (
	"context"
	"time"

	"auctionworker/pkg/kafka"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"
)

const (
	TypeStageStarted = "auction.stage.started"
	TypeBidAccepted  = "auction.bid.accepted"
	TypeAuctionEnded = "auction.ended"
	TypeBidSubmitted = "auction.bid.submitted"

	source = "auction-worker"
)

// Publisher announces auction progress. Delivery is best effort: a failed
// publish is logged and never fails the transition that triggered it.
type Publisher interface {
	StageStarted(ctx context.Context, doc *model.AuctionDocument)
	BidAccepted(ctx context.Context, doc *model.AuctionDocument, result model.Result)
	AuctionEnded(ctx context.Context, doc *model.AuctionDocument)
}

type StageStartedEvent struct {
	AuctionID    string      `json:"auction_id"`
	CurrentStage int         `json:"current_stage"`
	Stage        model.Stage `json:"stage"`
}

type BidAcceptedEvent struct {
	AuctionID    string       `json:"auction_id"`
	CurrentStage int          `json:"current_stage"`
	Result       model.Result `json:"result"`
}

type AuctionEndedEvent struct {
	AuctionID string         `json:"auction_id"`
	EndDate   string         `json:"end_date"`
	Results   []model.Result `json:"results"`
}

type kafkaPublisher struct {
	pub kafka.Publisher
	log *logger.Logger
	now func() time.Time
}

func NewKafkaPublisher(pub kafka.Publisher, log *logger.Logger) Publisher {
	return &kafkaPublisher{pub: pub, log: log, now: time.Now}
}

func (p *kafkaPublisher) StageStarted(ctx context.Context, doc *model.AuctionDocument) {
	stage, _ := doc.CurrentStageEntry()
	p.publish(ctx, TypeStageStarted, doc.ID, StageStartedEvent{
		AuctionID:    doc.ID,
		CurrentStage: doc.CurrentStage,
		Stage:        stage,
	})
}

func (p *kafkaPublisher) BidAccepted(ctx context.Context, doc *model.AuctionDocument, result model.Result) {
	p.publish(ctx, TypeBidAccepted, doc.ID, BidAcceptedEvent{
		AuctionID:    doc.ID,
		CurrentStage: doc.CurrentStage,
		Result:       result,
	})
}

func (p *kafkaPublisher) AuctionEnded(ctx context.Context, doc *model.AuctionDocument) {
	p.publish(ctx, TypeAuctionEnded, doc.ID, AuctionEndedEvent{
		AuctionID: doc.ID,
		EndDate:   doc.EndDate,
		Results:   doc.Results,
	})
}

func (p *kafkaPublisher) publish(ctx context.Context, eventType, auctionID string, payload any) {
	msg, err := kafka.NewMessage().
		WithKey(auctionID).
		WithJSON(payload).
		WithEventType(eventType).
		WithSource(source).
		WithHeader(kafka.HeaderAuctionID, auctionID).
		WithTimestamp(p.now()).
		Build()
	if err != nil {
		p.log.Error("Failed to build auction event", "event_type", eventType, logger.AuctionID, auctionID, "error", err)
		return
	}
	if err := p.pub.Publish(ctx, msg); err != nil {
		p.log.Warn("Failed to publish auction event", "event_type", eventType, logger.AuctionID, auctionID, "error", err)
	}
}

// Noop drops every event.
type Noop struct{}

func (Noop) StageStarted(context.Context, *model.AuctionDocument)               {}
func (Noop) BidAccepted(context.Context, *model.AuctionDocument, model.Result) {}
func (Noop) AuctionEnded(context.Context, *model.AuctionDocument)               {}
