package events

import (
	"context"
	"net/http"

	"auctionworker/internal/auction/validator"
	apperrors "auctionworker/pkg/errors"
	"auctionworker/pkg/kafka"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"
)

// BidSubmittedEvent is a bid handed in through the bid topic.
type BidSubmittedEvent struct {
	AuctionID string  `json:"auction_id"`
	BidderID  string  `json:"bidder_id"`
	Amount    float64 `json:"bid"`
}

// BidSubmitter is the admission path shared with the HTTP boundary.
type BidSubmitter interface {
	PostBid(ctx context.Context, form *validator.BidForm) (model.Result, error)
}

// NewBidIntakeHandler feeds bids for auctionID into sub. Bids for other
// auctions are acknowledged and skipped. Refused bids are acknowledged;
// undecodable messages are dead-lettered and store outages retried.
func NewBidIntakeHandler(sub BidSubmitter, auctionID string, log *logger.Logger) kafka.MessageHandler {
	log = log.ForAuction(auctionID)

	return func(ctx context.Context, msg kafka.Message) error {
		if t := msg.EventType(); t != "" && t != TypeBidSubmitted {
			return nil
		}

		var event BidSubmittedEvent
		if err := msg.DecodeValue(&event); err != nil {
			return kafka.NewPermanentError("failed to decode bid", err)
		}
		if event.AuctionID == "" {
			event.AuctionID = msg.Key
		}
		if event.AuctionID != auctionID {
			return nil
		}

		result, err := sub.PostBid(ctx, &validator.BidForm{BidderID: event.BidderID, Amount: event.Amount})
		if err == nil {
			log.Info("Bid admitted from topic",
				"bidder_id", result.BidderID,
				"amount", result.Amount,
				"event_id", msg.EventID(),
			)
			return nil
		}

		if apperrors.AsAppError(err).StatusCode() < http.StatusInternalServerError {
			log.Info("Bid from topic refused",
				"bidder_id", event.BidderID,
				"amount", event.Amount,
				"event_id", msg.EventID(),
				"error", err,
			)
			return nil
		}
		return kafka.NewTransientError("failed to admit bid", err)
	}
}
