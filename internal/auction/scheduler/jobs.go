package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auctionworker/internal/auction/datasource"
	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/internal/auction/events"
	"auctionworker/internal/auction/mapping"
	"auctionworker/internal/auction/protocol"
	"auctionworker/internal/auction/repository"
	"auctionworker/internal/auction/stages"
	"auctionworker/internal/auction/state"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/metrics"
	"auctionworker/pkg/model"

	"github.com/google/uuid"
)

// Options wires a JobService.
type Options struct {
	AuctionID       string
	Registry        *state.Registry
	Repo            repository.AuctionRepository
	Source          datasource.DataSource
	Mapper          mapping.Mapper
	Events          events.Publisher
	Timing          stages.Timing
	Location        *time.Location
	MisfireGrace    time.Duration
	ShutdownTimeout time.Duration
	Log             *logger.Logger
	Metrics         *metrics.Metrics
}

// JobService owns the auction schedule: the start, next-stage and
// auction-end jobs and the transitions they run.
type JobService struct {
	queue *Queue

	auctionID       string
	reg             *state.Registry
	repo            repository.AuctionRepository
	source          datasource.DataSource
	mapper          mapping.Mapper
	events          events.Publisher
	timing          stages.Timing
	loc             *time.Location
	shutdownTimeout time.Duration
	log             *logger.Logger
	metrics         *metrics.Metrics
}

func NewJobService(ctx context.Context, opts Options) *JobService {
	if opts.Mapper == nil {
		opts.Mapper = mapping.Noop{}
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	log := opts.Log.ForAuction(opts.AuctionID)

	return &JobService{
		queue:           NewQueue(ctx, opts.Registry.Lock(), opts.MisfireGrace, log, opts.Metrics),
		auctionID:       opts.AuctionID,
		reg:             opts.Registry,
		repo:            opts.Repo,
		source:          opts.Source,
		mapper:          opts.Mapper,
		events:          opts.Events,
		timing:          opts.Timing,
		loc:             opts.Location,
		shutdownTimeout: opts.ShutdownTimeout,
		log:             log,
		metrics:         opts.Metrics,
	}
}

func (s *JobService) AddStartJob(at time.Time, run JobFunc) error {
	return s.queue.Add(Job{Name: JobStart, At: at, Run: run})
}

// AddPauseJob switches to the next stage at t.
func (s *JobService) AddPauseJob(t time.Time) error {
	return s.queue.Add(Job{Name: JobNextStage, At: t, Run: s.SwitchToNextStage})
}

// AddEndingMainRoundJob ends the auction at t.
func (s *JobService) AddEndingMainRoundJob(t time.Time) error {
	return s.queue.Add(Job{Name: JobAuctionEnd, At: t, Run: s.EndAuction})
}

// CancelAll drops every pending job.
func (s *JobService) CancelAll() {
	s.queue.RemoveAll()
}

func (s *JobService) Pending() []PendingJob {
	return s.queue.Pending()
}

// Shutdown stops the timers and waits for a running job. It must not be
// called from a job or with the shared lock held.
func (s *JobService) Shutdown() {
	s.queue.Shutdown()
}

// ScheduleRound installs the schedule following a pause that started at ref:
// next-stage at the round start and auction-end when the round or the day
// runs out. Without a round the auction ends at the day's deadline. The
// previous schedule is replaced in one step.
func (s *JobService) ScheduleRound(round model.Stage, hasRound bool, ref time.Time) error {
	deadline := s.timing.Deadline(ref.In(s.loc))
	if !hasRound {
		return s.queue.Replace(Job{Name: JobAuctionEnd, At: deadline, Run: s.EndAuction})
	}

	start, err := round.StartTime()
	if err != nil {
		return err
	}
	end := stages.RoundEndingTime(start, s.timing.Round, deadline)
	return s.queue.Replace(
		Job{Name: JobNextStage, At: start, Run: s.SwitchToNextStage},
		Job{Name: JobAuctionEnd, At: end, Run: s.EndAuction},
	)
}

// Recover derives the pending schedule of a running auction from its stages
// and current stage alone.
func (s *JobService) Recover(doc *model.AuctionDocument) error {
	if doc.IsFinished() {
		return fmt.Errorf("auction %s is already finished", doc.ID)
	}
	if len(doc.Stages) == 0 {
		return auctionerrors.ErrNoMainRound
	}

	last := len(doc.Stages) - 1
	lastStage := doc.Stages[last]
	lastStart, err := lastStage.StartTime()
	if err != nil {
		return err
	}
	deadline := s.timing.Deadline(lastStart.In(s.loc))

	switch {
	case lastStage.IsRound() && doc.CurrentStage < last:
		// The pause before the last round is still running.
		return s.queue.Replace(
			Job{Name: JobNextStage, At: lastStart, Run: s.SwitchToNextStage},
			Job{Name: JobAuctionEnd, At: stages.RoundEndingTime(lastStart, s.timing.Round, deadline), Run: s.EndAuction},
		)
	case lastStage.IsOpen():
		return s.queue.Replace(
			Job{Name: JobAuctionEnd, At: stages.RoundEndingTime(lastStart, s.timing.Round, deadline), Run: s.EndAuction},
		)
	case lastStage.IsRound():
		// A bid closed the last round but the following pause was never
		// committed: end the auction at the round's natural end.
		return s.queue.Replace(
			Job{Name: JobAuctionEnd, At: stages.RoundEndingTime(lastStart, s.timing.Round, deadline), Run: s.EndAuction},
		)
	default:
		return s.queue.Replace(Job{Name: JobAuctionEnd, At: deadline, Run: s.EndAuction})
	}
}

// SwitchToNextStage advances current_stage. It runs with the shared lock
// held.
func (s *JobService) SwitchToNextStage(ctx context.Context, firedAt time.Time) {
	requestID := uuid.NewString()

	doc := s.reg.Document()
	if doc == nil {
		s.log.Error("No auction document to advance", logger.RequestID, requestID)
		return
	}
	if doc.CurrentStage+1 >= len(doc.Stages) {
		s.log.Warn("No stage to switch to", logger.RequestID, requestID, "current_stage", doc.CurrentStage)
		return
	}

	doc.CurrentStage++
	if _, err := s.repo.Save(ctx, doc); err != nil {
		s.log.Error("Failed to save next stage",
			logger.RequestID, requestID,
			logger.MessageID, "db_save_doc_error",
			"error", err,
		)
		return
	}
	s.reg.SetDocument(doc)
	s.metrics.StageTransition("next_stage")
	s.events.StageStarted(ctx, doc)

	s.log.Info(fmt.Sprintf("Start stage %d", doc.CurrentStage),
		logger.RequestID, requestID,
		logger.MessageID, "start_next_stage",
		"fired_at", firedAt,
	)
}

// EndAuction closes the auction and posts the results. The end event is set
// on every path out of it. It runs with the shared lock held.
func (s *JobService) EndAuction(ctx context.Context, firedAt time.Time) {
	defer s.reg.EndEvent().Set()

	requestID := uuid.NewString()
	log := s.log.With(logger.RequestID, requestID)
	log.Info("End auction", logger.MessageID, "end_auction")

	s.queue.RemoveAll()
	s.stopServer(log)
	if err := s.mapper.Delete(ctx, s.auctionID); err != nil {
		log.Warn("Failed to clear mapping", "error", err)
	}

	doc := s.reg.Document()
	if doc == nil {
		log.Error("No auction document to end")
		return
	}

	end := firedAt.In(s.loc)
	doc.Stages = append(doc.Stages, stages.PrepareEndStage(end))
	doc.CurrentStage = len(doc.Stages) - 1
	doc.EndDate = model.FormatTime(end)
	if _, err := s.repo.Save(ctx, doc); err != nil {
		log.Error("Failed to save the end of the auction", logger.MessageID, "db_save_doc_error", "error", err)
	}
	s.reg.SetDocument(doc)
	s.metrics.StageTransition("end")

	p := s.reg.Protocol()
	if p == nil {
		p = protocol.New(doc, s.reg.Tender())
	}
	protocol.ApproveStages(p, doc)
	protocol.ApproveResults(p, doc, end, nil)
	s.reg.SetProtocol(p)
	if rendered, err := protocol.Render(p); err == nil {
		log.Info("Audit data", "audit", string(rendered))
	}

	replacement, ok, err := s.source.UpdateSourceObject(ctx, s.reg.Tender(), doc, p)
	if err != nil {
		log.Warn("Failed to post auction results", logger.MessageID, "auction_result_not_approved", "error", err)
	}
	if ok {
		if replacement != nil {
			replacement.Rev = doc.Rev
			doc = replacement
		}
		if _, err := s.repo.Save(ctx, doc); err != nil {
			log.Error("Failed to save the announced auction", logger.MessageID, "db_save_doc_error", "error", err)
		}
		s.reg.SetDocument(doc)
	}

	s.events.AuctionEnded(ctx, doc)
}

// stopServer shuts the HTTP server down in the background: a request
// waiting for the shared lock must not block this job.
func (s *JobService) stopServer(log *logger.Logger) {
	srv := s.reg.Server()
	if srv == nil {
		return
	}
	log.Debug("Stop server")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Server did not stop cleanly", "error", err)
		}
	}()
}
