package handler

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"auctionworker/internal/auction/validator"
	apperrors "auctionworker/pkg/errors"
	httputil "auctionworker/pkg/http"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"
)

// AuctionService is what the HTTP boundary needs from the worker's auction.
type AuctionService interface {
	ID() string
	Document() (*model.AuctionDocument, bool)
	PostBid(ctx context.Context, form *validator.BidForm) (model.Result, error)
}

type AuctionHandler struct {
	service AuctionService
	log     *logger.Logger
}

func NewAuctionHandler(service AuctionService, log *logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		service: service,
		log:     log.ForAuction(service.ID()),
	}
}

func (h *AuctionHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/auctions/:auction_id", h.GetDocument)
	router.POST("/api/auctions/:auction_id/bids", h.PostBid)
}

func (h *AuctionHandler) GetDocument(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.served(w, ps, "GetDocument") {
		return
	}

	doc, ok := h.service.Document()
	if !ok {
		h.writeError(w, apperrors.NotFoundWithID("Auction", h.service.ID()), "GetDocument")
		return
	}

	if err := httputil.WriteSuccess(w, doc); err != nil {
		h.log.Error("failed to write success response", "handler", "GetDocument", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AuctionHandler) PostBid(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.served(w, ps, "PostBid") {
		return
	}

	var form validator.BidForm
	if err := httputil.DecodeJSON(r, &form); err != nil {
		h.writeError(w, err, "PostBid")
		return
	}

	result, err := h.service.PostBid(r.Context(), &form)
	if err != nil {
		h.writeError(w, err, "PostBid")
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "PostBid", "operation", "WriteSuccess", "error", err)
	}
}

// served reports whether the auction in the path is the one this worker
// runs, answering 404 otherwise.
func (h *AuctionHandler) served(w http.ResponseWriter, ps httprouter.Params, name string) bool {
	id := ps.ByName("auction_id")
	if id == h.service.ID() {
		return true
	}
	h.writeError(w, apperrors.NotFoundWithID("Auction", id), name)
	return false
}

func (h *AuctionHandler) writeError(w http.ResponseWriter, err error, name string) {
	if writeErr := apperrors.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}
