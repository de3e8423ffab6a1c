// Package bids admits bids into the running auction.
package bids

import (
	"context"
	"fmt"
	"time"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/internal/auction/events"
	"auctionworker/internal/auction/protocol"
	"auctionworker/internal/auction/repository"
	"auctionworker/internal/auction/stages"
	"auctionworker/internal/auction/state"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/metrics"
	"auctionworker/pkg/model"

	"github.com/google/uuid"
)

// Policy decides whether a bid is admissible against the current document.
type Policy interface {
	Check(doc *model.AuctionDocument, bid model.Bid) error
}

type PolicyFunc func(doc *model.AuctionDocument, bid model.Bid) error

func (f PolicyFunc) Check(doc *model.AuctionDocument, bid model.Bid) error {
	return f(doc, bid)
}

// Scheduler is the part of the job service a bid reschedules.
type Scheduler interface {
	CancelAll()
	ScheduleRound(round model.Stage, hasRound bool, ref time.Time) error
	Recover(doc *model.AuctionDocument) error
}

// Handler is the bid admission critical section. AddBid and EndBidStage
// expect the shared lock to be held; SubmitBid takes it.
type Handler struct {
	reg      *state.Registry
	repo     repository.AuctionRepository
	sched    Scheduler
	strategy Strategy
	timing   stages.Timing
	policy   Policy
	events   events.Publisher
	loc      *time.Location
	now      func() time.Time
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func NewHandler(
	reg *state.Registry,
	repo repository.AuctionRepository,
	sched Scheduler,
	strategy Strategy,
	timing stages.Timing,
	loc *time.Location,
	log *logger.Logger,
	m *metrics.Metrics,
) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		reg:      reg,
		repo:     repo,
		sched:    sched,
		strategy: strategy,
		timing:   timing,
		events:   events.Noop{},
		loc:      loc,
		now:      time.Now,
		log:      log,
		metrics:  m,
	}
}

// WithPolicy checks every submitted bid against p before admitting it.
func (h *Handler) WithPolicy(p Policy) *Handler {
	h.policy = p
	return h
}

// WithClock replaces the clock bids are stamped with.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) WithEvents(p events.Publisher) *Handler {
	h.events = p
	return h
}

// SubmitBid admits a bid into the current round, stamped with the time the
// shared lock was acquired. A caller that gave up while waiting for the lock
// gets its context error and nothing is committed. Once admission starts it
// runs to the end regardless of ctx, so a bid is never committed without the
// stages that follow it.
func (h *Handler) SubmitBid(ctx context.Context, bidderID string, amount float64) (model.Result, error) {
	lock := h.reg.Lock()
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return model.Result{}, err
	}
	ctx = context.WithoutCancel(ctx)

	bid := model.Bid{BidderID: bidderID, Amount: amount, Time: h.now().In(h.loc)}

	doc := h.reg.Document()
	if doc == nil {
		return model.Result{}, auctionerrors.ErrNotFound
	}
	if stage, ok := doc.CurrentStageEntry(); !ok || !stage.IsOpen() {
		h.metrics.BidRejected(h.strategy.Name())
		return model.Result{}, auctionerrors.ErrBiddingClosed
	}
	if h.policy != nil {
		if err := h.policy.Check(doc, bid); err != nil {
			h.metrics.BidRejected(h.strategy.Name())
			return model.Result{}, err
		}
	}

	result, err := h.AddBid(ctx, doc.CurrentStage, bid)
	if err != nil {
		return model.Result{}, err
	}
	if err := h.EndBidStage(ctx, bid); err != nil {
		h.log.Error("Bid admitted but the next stage was not committed", "bidder_id", bid.BidderID, "error", err)
	}
	return result, nil
}

// AddBid records bid as the outcome of stages[stage] and commits it. Only an
// open round accepts a bid; a closed round keeps its outcome.
func (h *Handler) AddBid(ctx context.Context, stage int, bid model.Bid) (model.Result, error) {
	h.log.Info("Adding bid", "bidder_id", bid.BidderID, "amount", bid.Amount, "stage", stage)

	doc := h.reg.Document()
	if doc == nil {
		return model.Result{}, auctionerrors.ErrNotFound
	}
	if stage < 0 || stage >= len(doc.Stages) {
		return model.Result{}, fmt.Errorf("stage %d out of range of %d stages", stage, len(doc.Stages))
	}
	if !doc.Stages[stage].IsOpen() {
		return model.Result{}, fmt.Errorf("%w: stage %d is not an open round", auctionerrors.ErrBiddingClosed, stage)
	}

	label := model.BidderLabel(doc.BidderNumber(bid.BidderID))
	result := h.strategy.Admit(doc, stage, bid, label)

	if _, err := h.repo.Save(ctx, doc); err != nil {
		h.metrics.BidRejected(h.strategy.Name())
		return model.Result{}, fmt.Errorf("failed to save bid: %w", err)
	}
	h.reg.SetDocument(doc)
	h.metrics.BidAccepted(h.strategy.Name())
	h.events.BidAccepted(ctx, doc, result)
	return result, nil
}

// EndBidStage opens the pause after bid and, when the day allows, another
// round, then replaces the schedule. The stages are committed before the
// new schedule is installed.
func (h *Handler) EndBidStage(ctx context.Context, bid model.Bid) error {
	requestID := uuid.NewString()
	log := h.log.With(logger.RequestID, requestID)
	log.Info("End bids stage", logger.MessageID, "end_bid_stage")

	h.sched.CancelAll()

	doc := h.reg.Document()
	if doc == nil {
		return auctionerrors.ErrNotFound
	}
	if p := h.reg.Protocol(); p != nil {
		protocol.ApproveBid(p, doc)
		h.reg.SetProtocol(p)
	}

	pause, round, hasRound := h.timing.PrepareAuctionStages(bid.Time, h.strategy.NextRoundAmount(doc, bid))
	doc.Stages = append(doc.Stages, pause)
	if hasRound {
		doc.Stages = append(doc.Stages, round)
	}
	doc.CurrentStage++

	if _, err := h.repo.Save(ctx, doc); err != nil {
		log.Error("Failed to save the next stage", logger.MessageID, "db_save_doc_error", "error", err)
		if rerr := h.sched.Recover(h.reg.Document()); rerr != nil {
			log.Error("Failed to restore the schedule", "error", rerr)
		}
		return fmt.Errorf("failed to save stages: %w", err)
	}
	h.reg.SetDocument(doc)
	h.metrics.StageTransition("bid")
	h.events.StageStarted(ctx, doc)

	log.Info(fmt.Sprintf("Start stage %d", doc.CurrentStage), logger.MessageID, "start_next_stage")
	return h.sched.ScheduleRound(round, hasRound, bid.Time)
}
