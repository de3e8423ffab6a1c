package service

import (
	"context"
	"errors"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/internal/auction/validator"
	apperrors "auctionworker/pkg/errors"
	"auctionworker/pkg/model"
)

// PostBid validates the form and admits the bid into the current round.
// Errors are AppErrors ready for the HTTP boundary.
func (a *Auction) PostBid(ctx context.Context, form *validator.BidForm) (model.Result, error) {
	if err := a.validator.Validate(form); err != nil {
		a.log.Warn("Bid form validation failed",
			"bidder_id", form.BidderID,
			"error", err,
		)
		return model.Result{}, apperrors.Validation("Bid validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	result, err := a.bids.SubmitBid(ctx, form.BidderID, form.Amount)
	if err != nil {
		return model.Result{}, a.bidError(err)
	}
	return result, nil
}

func (a *Auction) bidError(err error) error {
	var refused validator.ValidationErrors
	switch {
	case errors.As(err, &refused):
		return apperrors.Validation("Bid refused", map[string]any{
			"error": refused.Error(),
		})
	case errors.Is(err, auctionerrors.ErrBiddingClosed):
		return apperrors.Conflict("Bidding is closed for the current stage")
	case errors.Is(err, auctionerrors.ErrNotFound):
		return apperrors.NotFoundWithID("Auction", a.id)
	case errors.Is(err, auctionerrors.ErrRetriesExhausted):
		return apperrors.Unavailable("auction document store", err)
	default:
		a.log.Error("Failed to admit bid", "error", err)
		return apperrors.Internal("Failed to admit bid", err)
	}
}
