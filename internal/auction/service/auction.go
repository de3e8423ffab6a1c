// Package service exposes the operations a worker process runs against a
// single auction.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"auctionworker/internal/auction/bids"
	"auctionworker/internal/auction/datasource"
	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/internal/auction/events"
	"auctionworker/internal/auction/mapping"
	"auctionworker/internal/auction/protocol"
	"auctionworker/internal/auction/repository"
	"auctionworker/internal/auction/scheduler"
	"auctionworker/internal/auction/stages"
	"auctionworker/internal/auction/state"
	"auctionworker/internal/auction/validator"
	"auctionworker/pkg/config"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/metrics"
	"auctionworker/pkg/model"
)

const defaultProcurementMethodType = "texas"

// Options wires an Auction.
type Options struct {
	AuctionID string
	Config    *config.Config
	Registry  *state.Registry
	Repo      repository.AuctionRepository
	Source    datasource.DataSource
	Mapper    mapping.Mapper
	Events    events.Publisher
	Log       *logger.Logger
	Metrics   *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Auction is one auction as seen by its worker process.
type Auction struct {
	id        string
	cfg       *config.Config
	reg       *state.Registry
	repo      repository.AuctionRepository
	source    datasource.DataSource
	mapper    mapping.Mapper
	events    events.Publisher
	jobs      *scheduler.JobService
	bids      *bids.Handler
	validator *validator.BidValidator
	timing    stages.Timing
	loc       *time.Location
	now       func() time.Time
	log       *logger.Logger
}

func NewAuction(ctx context.Context, opts Options) *Auction {
	if opts.Mapper == nil {
		opts.Mapper = mapping.Noop{}
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfg := opts.Config
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	timing := stages.Timing{
		Pause:        cfg.PauseDuration,
		Round:        cfg.RoundDuration,
		DeadlineHour: cfg.DeadlineHour,
	}
	log := opts.Log.ForAuction(opts.AuctionID)

	jobs := scheduler.NewJobService(ctx, scheduler.Options{
		AuctionID:       opts.AuctionID,
		Registry:        opts.Registry,
		Repo:            opts.Repo,
		Source:          opts.Source,
		Mapper:          opts.Mapper,
		Events:          opts.Events,
		Timing:          timing,
		Location:        loc,
		MisfireGrace:    cfg.MisfireGrace,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Log:             opts.Log,
		Metrics:         opts.Metrics,
	})

	bidValidator := validator.NewBidValidator(cfg.Discipline, log)
	handler := bids.NewHandler(
		opts.Registry,
		opts.Repo,
		jobs,
		bids.NewStrategy(cfg.Discipline),
		timing,
		loc,
		log,
		opts.Metrics,
	).WithPolicy(bids.PolicyFunc(bidValidator.Check)).WithEvents(opts.Events).WithClock(opts.Now)

	return &Auction{
		id:        opts.AuctionID,
		cfg:       cfg,
		reg:       opts.Registry,
		repo:      opts.Repo,
		source:    opts.Source,
		mapper:    opts.Mapper,
		events:    opts.Events,
		jobs:      jobs,
		bids:      handler,
		validator: bidValidator,
		timing:    timing,
		loc:       loc,
		now:       opts.Now,
		log:       log,
	}
}

func (a *Auction) ID() string {
	return a.id
}

func (a *Auction) Jobs() *scheduler.JobService {
	return a.jobs
}

// ScheduleAuction loads the prepared document, synchronises the bidders and
// installs the start, next-stage and auction-end jobs. A document that is
// already running gets its schedule re-derived from its stages.
func (a *Auction) ScheduleAuction(ctx context.Context) error {
	lock := a.reg.Lock()
	lock.Lock()
	defer lock.Unlock()

	doc, err := a.repo.Get(ctx, a.id)
	if err != nil {
		return fmt.Errorf("failed to load auction document: %w", err)
	}
	if doc.IsFinished() {
		return fmt.Errorf("auction %s is already finished (current_stage %d)", a.id, doc.CurrentStage)
	}

	var tender *model.Tender
	if a.cfg.Debug && doc.TestAuctionData != nil {
		tender = doc.TestAuctionData.Clone()
	} else {
		tender, err = a.synchronize(ctx, false)
		if err != nil {
			return err
		}
	}

	setMapping(doc, tender)
	if _, err := a.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save auction document: %w", err)
	}
	a.reg.SetDocument(doc)
	a.reg.SetTender(tender)
	if !a.reg.Has(state.KeyAuctionProtocol) {
		a.reg.SetProtocol(protocol.New(doc, tender))
	}

	if doc.CurrentStage >= 0 {
		if err := a.jobs.Recover(doc); err != nil {
			return fmt.Errorf("failed to recover schedule: %w", err)
		}
		a.log.Info("Recovered running auction", "current_stage", doc.CurrentStage)
	} else if err := a.scheduleFromStart(doc); err != nil {
		return err
	}

	if err := a.mapper.Create(ctx, a.id, a.cfg.WorkerURL); err != nil {
		a.log.Warn("Failed to register worker mapping", "error", err)
	}
	return nil
}

func (a *Auction) scheduleFromStart(doc *model.AuctionDocument) error {
	if len(doc.Stages) < 2 || !doc.Stages[1].IsRound() {
		return auctionerrors.ErrNoMainRound
	}
	start, err := doc.Stages[0].StartTime()
	if err != nil {
		return err
	}
	roundStart, err := doc.Stages[1].StartTime()
	if err != nil {
		return err
	}
	roundStart = roundStart.In(a.loc)
	end := stages.RoundEndingTime(roundStart, a.timing.Round, a.timing.Deadline(roundStart))

	if err := a.jobs.AddStartJob(start, a.StartAuction); err != nil {
		return err
	}
	if err := a.jobs.AddPauseJob(roundStart); err != nil {
		return err
	}
	if err := a.jobs.AddEndingMainRoundJob(end); err != nil {
		return err
	}

	a.log.Info("Scheduled auction",
		"start", start,
		"round_start", roundStart,
		"round_end", end,
	)
	return nil
}

// WaitToEnd blocks until the auction completes or ctx ends.
func (a *Auction) WaitToEnd(ctx context.Context) error {
	if err := a.reg.EndEvent().Wait(ctx); err != nil {
		return err
	}
	a.log.Info("Stop auction worker")
	return nil
}

// Shutdown stops the scheduler. It must not be called with the shared lock
// held.
func (a *Auction) Shutdown() {
	a.jobs.Shutdown()
}

// StartAuction is the start job. It runs with the shared lock held.
func (a *Auction) StartAuction(ctx context.Context, firedAt time.Time) {
	log := a.log.With(logger.MessageID, "start_auction")
	log.Info("Start auction")

	tender, err := a.synchronize(ctx, false)
	if err != nil {
		log.Error("Failed to synchronise auction data, stopping", "error", err)
		a.jobs.CancelAll()
		a.reg.EndEvent().Set()
		return
	}
	a.reg.SetTender(tender)

	doc := a.reg.Document()
	if doc == nil {
		log.Error("Auction document is not loaded")
		return
	}
	setMapping(doc, tender)
	doc.InitialBids = a.initialBids(doc, tender)
	doc.CurrentStage = 0

	if _, err := a.repo.Save(ctx, doc); err != nil {
		log.Error("Failed to save started auction, stopping", "error", err)
		a.jobs.CancelAll()
		a.reg.EndEvent().Set()
		return
	}
	a.reg.SetDocument(doc)

	p := a.reg.Protocol()
	if p == nil {
		p = protocol.New(doc, tender)
	}
	protocol.Start(p, firedAt.In(a.loc), doc.InitialBids)
	a.reg.SetProtocol(p)

	a.events.StageStarted(ctx, doc)
	log.Info("Auction started", "initial_bids", len(doc.InitialBids))
}

// initialBids ranks the active bids by amount and labels them with their
// display number.
func (a *Auction) initialBids(doc *model.AuctionDocument, tender *model.Tender) []model.Result {
	active := make([]model.TenderBid, 0, len(tender.Bids))
	for _, bid := range tender.Bids {
		if bid.IsActive() {
			active = append(active, bid)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return amountOf(active[i]) < amountOf(active[j])
	})

	results := make([]model.Result, 0, len(active))
	for _, bid := range active {
		at := bid.Date
		if at == "" {
			at = tender.AuctionPeriod.StartDate
		}
		results = append(results, model.Result{
			BidderID: bid.ID,
			Time:     at,
			Amount:   amountOf(bid),
			Label:    model.BidderLabel(doc.BidderNumber(bid.ID)),
		})
	}
	return results
}

func amountOf(bid model.TenderBid) float64 {
	if bid.Value == nil {
		return 0
	}
	return bid.Value.Amount
}

// setMapping numbers the active bidders in tender order. Numbers already
// assigned are kept.
func setMapping(doc *model.AuctionDocument, tender *model.Tender) {
	if tender == nil {
		return
	}
	for _, bid := range tender.Bids {
		if bid.IsActive() {
			doc.BidderNumber(bid.ID)
		}
	}
}

// synchronize reads the private auction view, on top of the public tender
// when prepare is set. When the private view is gone the stored document is
// cancelled; when there is no document either the worker is told to stop.
func (a *Auction) synchronize(ctx context.Context, prepare bool) (*model.Tender, error) {
	tender := &model.Tender{}
	if prepare {
		public, err := a.source.GetData(ctx, true, false)
		if err != nil {
			return nil, fmt.Errorf("failed to get public tender data: %w", err)
		}
		tender = public
	}

	private, err := a.source.GetData(ctx, false, false)
	if err != nil {
		doc, getErr := a.repo.Get(ctx, a.id)
		if getErr == nil {
			doc.CurrentStage = model.StageCancelled
			if _, saveErr := a.repo.Save(ctx, doc); saveErr != nil {
				a.log.Error("Failed to save cancelled auction", "error", saveErr)
			} else {
				a.reg.SetDocument(doc)
			}
			a.log.Warn("Cancel auction", "error", err)
		} else {
			a.log.Error("Auction not exists", "error", err)
			a.reg.EndEvent().Set()
		}
		return nil, fmt.Errorf("failed to get auction data: %w", err)
	}
	tender.Merge(private)
	return tender, nil
}

// Document returns a copy of the document the worker holds.
func (a *Auction) Document() (*model.AuctionDocument, bool) {
	doc := a.reg.Document()
	return doc, doc != nil
}

func (a *Auction) Ping(ctx context.Context) error {
	return a.repo.Ping(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, auctionerrors.ErrNotFound)
}
