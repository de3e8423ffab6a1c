package bids

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/internal/auction/scheduler"
	"auctionworker/internal/auction/stages"
	"auctionworker/internal/auction/state"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

var kyiv = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		return time.FixedZone("EET", 2*60*60)
	}
	return loc
}()

var timing = stages.Timing{Pause: 10 * time.Second, Round: 180 * time.Second, DeadlineHour: 17}

// auctionDay is far enough ahead that no schedule built in a test fires.
func auctionDay(hour, min, sec int) time.Time {
	return time.Date(2030, 3, 4, hour, min, sec, 0, kyiv)
}

type fakeRepo struct {
	mu     sync.Mutex
	saves  int
	fail   func(call int) error
	onSave func(call int)
}

func (r *fakeRepo) Get(ctx context.Context, id string) (*model.AuctionDocument, error) {
	return nil, auctionerrors.ErrNotFound
}

func (r *fakeRepo) Save(ctx context.Context, doc *model.AuctionDocument) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	call := r.saves + 1
	if r.fail != nil {
		if err := r.fail(call); err != nil {
			return "", err
		}
	}
	r.saves = call
	doc.Rev = fmt.Sprintf("%d-rev", call)
	if r.onSave != nil {
		r.onSave(call)
	}
	return doc.Rev, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }

type fakeSource struct{}

func (fakeSource) GetData(ctx context.Context, public, withCredentials bool) (*model.Tender, error) {
	return &model.Tender{}, nil
}

func (fakeSource) UpdateSourceObject(ctx context.Context, tender *model.Tender, doc *model.AuctionDocument, p *model.Protocol) (*model.AuctionDocument, bool, error) {
	return nil, true, nil
}

func (fakeSource) UploadAuditDocument(ctx context.Context, p *model.Protocol, docID string) (string, error) {
	return "", nil
}

type fixture struct {
	handler *Handler
	jobs    *scheduler.JobService
	reg     *state.Registry
	repo    *fakeRepo
}

func newFixture(t *testing.T, strategy Strategy, doc *model.AuctionDocument) *fixture {
	t.Helper()
	f := &fixture{reg: state.New(), repo: &fakeRepo{}}
	f.reg.SetDocument(doc)
	f.jobs = scheduler.NewJobService(context.Background(), scheduler.Options{
		AuctionID:    doc.ID,
		Registry:     f.reg,
		Repo:         f.repo,
		Source:       fakeSource{},
		Timing:       timing,
		Location:     kyiv,
		MisfireGrace: 100 * time.Second,
		Log:          logger.Discard(),
	})
	t.Cleanup(f.jobs.Shutdown)
	f.handler = NewHandler(f.reg, f.repo, f.jobs, strategy, timing, kyiv, logger.Discard(), nil)
	return f
}

// openDocument is an auction whose first round, opened at 12:00:10, is
// running.
func openDocument(value, step float64) *model.AuctionDocument {
	terms := stages.Terms{Value: value, MinimalStep: step}
	pause, round, _ := timing.PrepareAuctionStages(auctionDay(12, 0, 0), terms.FirstRoundAmount())
	return &model.AuctionDocument{
		ID:           "a1",
		CurrentStage: 1,
		Stages:       []model.Stage{pause, round},
		Results:      []model.Result{},
		Value:        model.Value{Amount: value},
		MinimalStep:  model.Value{Amount: step},
	}
}

func (f *fixture) bid(t *testing.T, bid model.Bid) {
	t.Helper()
	lock := f.reg.Lock()
	lock.Lock()
	defer lock.Unlock()

	doc := f.reg.Document()
	_, err := f.handler.AddBid(context.Background(), len(doc.Stages)-1, bid)
	assert.NoError(t, err)
	assert.NoError(t, f.handler.EndBidStage(context.Background(), bid))
}

func TestAscending_BidOpensNextRound(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))
	check.Equal(t, 535000.0, f.reg.Document().Stages[1].Amount)

	bidAt := auctionDay(12, 1, 30)
	f.bid(t, model.Bid{BidderID: "b1", Amount: 540000, Time: bidAt})

	doc := f.reg.Document()
	check.Equal(t, 2, doc.CurrentStage)
	assert.Equal(t, 4, len(doc.Stages))

	closed := doc.Stages[1]
	check.Equal(t, "b1", closed.BidderID)
	check.Equal(t, 540000.0, closed.Amount)
	check.Equal(t, model.FormatTime(bidAt), closed.Time)
	check.Equal(t, model.BidderLabel(1), *closed.Label)

	check.Equal(t, model.StagePause, doc.Stages[2].Type)
	check.Equal(t, model.FormatTime(bidAt), doc.Stages[2].Start)
	check.Equal(t, model.StageRound, doc.Stages[3].Type)
	check.Equal(t, 575000.0, doc.Stages[3].Amount)
	check.True(t, doc.Stages[3].IsOpen())

	check.Equal(t, 1, len(doc.Results))
	check.Equal(t, map[string]int{"b1": 1}, doc.BidsMapping)
	check.Equal(t, 2, f.repo.saves)

	pending := f.jobs.Pending()
	assert.Equal(t, 2, len(pending))
	check.Equal(t, scheduler.JobNextStage, pending[0].Name)
	check.True(t, pending[0].At.Equal(bidAt.Add(10*time.Second)))
	check.Equal(t, scheduler.JobAuctionEnd, pending[1].Name)
	check.True(t, pending[1].At.Equal(bidAt.Add(190*time.Second)))
}

func TestAscending_SequentialBidsOnlyGrow(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))

	bidders := []string{"b1", "b2", "b1", "b3"}
	prevStage, prevLen := f.reg.Document().CurrentStage, len(f.reg.Document().Stages)
	for i, bidder := range bidders {
		doc := f.reg.Document()
		amount := doc.Stages[len(doc.Stages)-1].Amount
		f.bid(t, model.Bid{BidderID: bidder, Amount: amount, Time: auctionDay(12, 5*(i+1), 0)})

		doc = f.reg.Document()
		check.Equal(t, prevStage+1, doc.CurrentStage)
		check.Equal(t, prevLen+2, len(doc.Stages))
		prevStage, prevLen = doc.CurrentStage, len(doc.Stages)
	}

	doc := f.reg.Document()
	check.Equal(t, len(bidders), len(doc.Results))
	check.Equal(t, map[string]int{"b1": 1, "b2": 2, "b3": 3}, doc.BidsMapping)
	check.Equal(t, 535000.0+4*35000, doc.Stages[len(doc.Stages)-1].Amount)
}

func TestEndBidStage_NoRoundBeforeDeadline(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))
	deadline := auctionDay(17, 0, 0)

	f.bid(t, model.Bid{BidderID: "b1", Amount: 535000, Time: deadline.Add(-5 * time.Second)})

	doc := f.reg.Document()
	check.Equal(t, 3, len(doc.Stages))
	check.Equal(t, model.StagePause, doc.Stages[2].Type)
	check.Equal(t, 2, doc.CurrentStage)

	pending := f.jobs.Pending()
	assert.Equal(t, 1, len(pending))
	check.Equal(t, scheduler.JobAuctionEnd, pending[0].Name)
	check.True(t, pending[0].At.Equal(deadline))
}

func TestLedger_UpsertsAndRanks(t *testing.T) {
	f := newFixture(t, Ledger{}, openDocument(5, 1))

	f.bid(t, model.Bid{BidderID: "A", Amount: 10, Time: auctionDay(12, 1, 0)})
	f.bid(t, model.Bid{BidderID: "B", Amount: 12, Time: auctionDay(12, 2, 0)})

	results := f.reg.Document().Results
	assert.Equal(t, 2, len(results))
	check.Equal(t, "B", results[0].BidderID)
	check.Equal(t, 12.0, results[0].Amount)
	check.Equal(t, "A", results[1].BidderID)

	f.bid(t, model.Bid{BidderID: "A", Amount: 15, Time: auctionDay(12, 3, 0)})

	doc := f.reg.Document()
	assert.Equal(t, 2, len(doc.Results))
	check.Equal(t, "A", doc.Results[0].BidderID)
	check.Equal(t, 15.0, doc.Results[0].Amount)
	check.Equal(t, "B", doc.Results[1].BidderID)
	check.Equal(t, 12.0, doc.Results[1].Amount)
	check.Equal(t, 16.0, doc.Stages[len(doc.Stages)-1].Amount)
}

func TestConcurrentBidsCommitInLockOrder(t *testing.T) {
	const n = 8
	f := newFixture(t, Ledger{}, openDocument(100, 1))
	initial := f.reg.Document().CurrentStage
	lock := f.reg.Lock()

	var (
		order []string
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lock.Lock()
			defer lock.Unlock()

			bidder := fmt.Sprintf("b%d", i)
			order = append(order, bidder)
			doc := f.reg.Document()
			bid := model.Bid{BidderID: bidder, Amount: float64(200 + len(order)), Time: auctionDay(12, len(order), 0)}
			if _, err := f.handler.AddBid(context.Background(), len(doc.Stages)-1, bid); err != nil {
				t.Error(err)
				return
			}
			if err := f.handler.EndBidStage(context.Background(), bid); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	doc := f.reg.Document()
	check.Equal(t, initial+n, doc.CurrentStage)
	assert.Equal(t, 2+2*n, len(doc.Stages))
	for k, bidder := range order {
		round := doc.Stages[2*k+1]
		check.Equal(t, bidder, round.BidderID)
		check.Equal(t, k+1, doc.BidsMapping[bidder])
	}
	check.Equal(t, n, len(doc.Results))
	check.Equal(t, order[n-1], doc.Results[0].BidderID)
}

func TestSubmitBid(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))
	f.handler.now = func() time.Time { return auctionDay(12, 1, 0) }

	result, err := f.handler.SubmitBid(context.Background(), "b1", 535000)
	assert.NoError(t, err)
	check.Equal(t, "b1", result.BidderID)
	check.Equal(t, model.FormatTime(auctionDay(12, 1, 0)), result.Time)
	check.Equal(t, 2, f.reg.Document().CurrentStage)

	// The pause after a bid is not a round.
	_, err = f.handler.SubmitBid(context.Background(), "b2", 570000)
	check.True(t, errors.Is(err, auctionerrors.ErrBiddingClosed))
	check.Equal(t, 2, f.repo.saves)
}

func TestSubmitBid_PolicyRejects(t *testing.T) {
	refused := errors.New("refused")
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))
	f.handler.WithPolicy(PolicyFunc(func(doc *model.AuctionDocument, bid model.Bid) error {
		if bid.Amount < doc.Stages[doc.CurrentStage].Amount {
			return refused
		}
		return nil
	}))

	_, err := f.handler.SubmitBid(context.Background(), "b1", 500000)
	check.True(t, errors.Is(err, refused))
	check.Equal(t, 0, f.repo.saves)
	check.Equal(t, 1, f.reg.Document().CurrentStage)
}

func TestAddBid_SaveFailureLeavesDocument(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))
	f.repo.fail = func(int) error { return auctionerrors.ErrRetriesExhausted }

	lock := f.reg.Lock()
	lock.Lock()
	_, err := f.handler.AddBid(context.Background(), 1, model.Bid{BidderID: "b1", Amount: 535000, Time: auctionDay(12, 1, 0)})
	lock.Unlock()

	check.True(t, errors.Is(err, auctionerrors.ErrRetriesExhausted))
	doc := f.reg.Document()
	check.True(t, doc.Stages[1].IsOpen())
	check.Equal(t, 0, len(doc.Results))
}

func TestEndBidStage_SaveFailureRestoresSchedule(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))
	f.repo.fail = func(call int) error {
		if call == 2 {
			return auctionerrors.ErrRetriesExhausted
		}
		return nil
	}

	lock := f.reg.Lock()
	lock.Lock()
	bid := model.Bid{BidderID: "b1", Amount: 535000, Time: auctionDay(12, 1, 0)}
	_, err := f.handler.AddBid(context.Background(), 1, bid)
	assert.NoError(t, err)
	err = f.handler.EndBidStage(context.Background(), bid)
	lock.Unlock()

	check.Error(t, err)
	check.Equal(t, 2, len(f.reg.Document().Stages))

	pending := f.jobs.Pending()
	assert.Equal(t, 1, len(pending))
	check.Equal(t, scheduler.JobAuctionEnd, pending[0].Name)
}

func TestSubmitBid_CancelledAfterBidStillOpensNextStage(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))
	f.handler.now = func() time.Time { return auctionDay(12, 1, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.repo.onSave = func(call int) {
		if call == 1 {
			cancel()
		}
	}

	result, err := f.handler.SubmitBid(ctx, "b1", 535000)
	assert.NoError(t, err)
	check.Equal(t, "b1", result.BidderID)
	check.Equal(t, 2, f.repo.saves)

	doc := f.reg.Document()
	check.Equal(t, 2, doc.CurrentStage)
	check.Equal(t, 4, len(doc.Stages))
	check.True(t, doc.Stages[3].IsOpen())

	pending := f.jobs.Pending()
	assert.Equal(t, 2, len(pending))
	check.Equal(t, scheduler.JobNextStage, pending[0].Name)
}

func TestSubmitBid_CancelledBeforeLockCommitsNothing(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.handler.SubmitBid(ctx, "b1", 535000)
	check.True(t, errors.Is(err, context.Canceled))
	check.Equal(t, 0, f.repo.saves)
	check.True(t, f.reg.Document().Stages[1].IsOpen())
}

func TestAddBid_RefusesStagesThatAreNotOpen(t *testing.T) {
	f := newFixture(t, Ascending{}, openDocument(500000, 35000))
	f.bid(t, model.Bid{BidderID: "b1", Amount: 535000, Time: auctionDay(12, 1, 0)})

	tests := []struct {
		name  string
		stage int
	}{
		{"closed round", 1},
		{"pause", 0},
		{"pause after bid", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.reg.Document().Stages[tt.stage]
			saves := f.repo.saves

			lock := f.reg.Lock()
			lock.Lock()
			_, err := f.handler.AddBid(context.Background(), tt.stage, model.Bid{BidderID: "b2", Amount: 1, Time: auctionDay(12, 2, 0)})
			lock.Unlock()

			check.True(t, errors.Is(err, auctionerrors.ErrBiddingClosed))
			check.Equal(t, saves, f.repo.saves)
			after := f.reg.Document().Stages[tt.stage]
			check.Equal(t, before.BidderID, after.BidderID)
			check.Equal(t, before.Amount, after.Amount)
			check.Equal(t, before.Type, after.Type)
		})
	}
	check.Equal(t, 1, len(f.reg.Document().Results))
}
