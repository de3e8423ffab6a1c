package repository

import (
	"context"
	"errors"
	"testing"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

// fakeStore keeps a single document in memory. Behaviour is overridden per
// test through the func fields.
type fakeStore struct {
	doc *model.AuctionDocument

	findFunc     func(ctx context.Context, id string) (*model.AuctionDocument, error)
	revisionFunc func(ctx context.Context, id string) (string, bool, error)
	replaceFunc  func(ctx context.Context, doc *model.AuctionDocument, expectedRev string) error

	findCalls    int
	replaceCalls int
}

func (s *fakeStore) Find(ctx context.Context, id string) (*model.AuctionDocument, error) {
	s.findCalls++
	if s.findFunc != nil {
		return s.findFunc(ctx, id)
	}
	if s.doc == nil {
		return nil, auctionerrors.ErrNotFound
	}
	return s.doc.Clone(), nil
}

func (s *fakeStore) Revision(ctx context.Context, id string) (string, bool, error) {
	if s.revisionFunc != nil {
		return s.revisionFunc(ctx, id)
	}
	if s.doc == nil {
		return "", false, nil
	}
	return s.doc.Rev, true, nil
}

func (s *fakeStore) Replace(ctx context.Context, doc *model.AuctionDocument, expectedRev string) error {
	s.replaceCalls++
	if s.replaceFunc != nil {
		if err := s.replaceFunc(ctx, doc, expectedRev); err != nil {
			return err
		}
	}
	current := ""
	if s.doc != nil {
		current = s.doc.Rev
	}
	if current != expectedRev {
		return auctionerrors.ErrRevisionConflict
	}
	s.doc = doc.Clone()
	return nil
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func newRepo(store DocumentStore, retries int) AuctionRepository {
	return NewAuctionRepository(store, retries, 0, logger.Discard(), nil)
}

func TestSave_RetriesOnceAfterTransientFailure(t *testing.T) {
	failed := false
	store := &fakeStore{
		replaceFunc: func(ctx context.Context, doc *model.AuctionDocument, expectedRev string) error {
			if !failed {
				failed = true
				return errors.New("connection reset by peer")
			}
			return nil
		},
	}
	repo := newRepo(store, 10)

	doc := &model.AuctionDocument{ID: "a1", CurrentStage: -1}
	rev, err := repo.Save(context.Background(), doc)
	assert.NoError(t, err)

	check.Equal(t, 2, store.replaceCalls)
	check.Equal(t, rev, doc.Rev)
	check.Equal(t, 1, RevisionNumber(rev))
	check.Equal(t, rev, store.doc.Rev)
}

func TestSave_ExhaustedRetriesReturnError(t *testing.T) {
	store := &fakeStore{
		replaceFunc: func(ctx context.Context, doc *model.AuctionDocument, expectedRev string) error {
			return errors.New("server selection timeout")
		},
	}
	repo := newRepo(store, 10)

	doc := &model.AuctionDocument{ID: "a1", Rev: "3-abc"}
	rev, err := repo.Save(context.Background(), doc)

	check.True(t, errors.Is(err, auctionerrors.ErrRetriesExhausted))
	check.Equal(t, "", rev)
	check.Equal(t, 10, store.replaceCalls)
	check.Equal(t, "3-abc", doc.Rev)
}

func TestSave_RebasesStaleRevision(t *testing.T) {
	store := &fakeStore{doc: &model.AuctionDocument{ID: "a1", Rev: "7-stored", CurrentStage: 2}}
	repo := newRepo(store, 10)

	doc := &model.AuctionDocument{ID: "a1", Rev: "5-stale", CurrentStage: 3}
	rev, err := repo.Save(context.Background(), doc)
	assert.NoError(t, err)

	check.Equal(t, 1, store.replaceCalls)
	check.Equal(t, 8, RevisionNumber(rev))
	check.Equal(t, 3, store.doc.CurrentStage)
}

func TestSave_RevisionStrictlyAdvances(t *testing.T) {
	store := &fakeStore{}
	repo := newRepo(store, 3)
	doc := &model.AuctionDocument{ID: "a1"}

	prev := 0
	for i := 0; i < 5; i++ {
		doc.CurrentStage = i
		rev, err := repo.Save(context.Background(), doc)
		assert.NoError(t, err)
		check.True(t, RevisionNumber(rev) > prev)
		prev = RevisionNumber(rev)
	}
	check.Equal(t, 5, prev)
}

func TestSave_ConflictWithConcurrentWriterIsRetried(t *testing.T) {
	store := &fakeStore{doc: &model.AuctionDocument{ID: "a1", Rev: "1-a"}}
	raced := false
	store.replaceFunc = func(ctx context.Context, doc *model.AuctionDocument, expectedRev string) error {
		if !raced {
			raced = true
			store.doc.Rev = "2-other"
		}
		return nil
	}
	repo := newRepo(store, 10)

	doc := &model.AuctionDocument{ID: "a1", Rev: "1-a"}
	rev, err := repo.Save(context.Background(), doc)
	assert.NoError(t, err)
	check.Equal(t, 2, store.replaceCalls)
	check.Equal(t, 3, RevisionNumber(rev))
}

func TestGet(t *testing.T) {
	t.Run("not found is not retried", func(t *testing.T) {
		store := &fakeStore{}
		_, err := newRepo(store, 10).Get(context.Background(), "missing")
		check.True(t, errors.Is(err, auctionerrors.ErrNotFound))
		check.Equal(t, 1, store.findCalls)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		store := &fakeStore{doc: &model.AuctionDocument{ID: "a1", Rev: "1-a"}}
		calls := 0
		store.findFunc = func(ctx context.Context, id string) (*model.AuctionDocument, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("i/o timeout")
			}
			return store.doc.Clone(), nil
		}
		doc, err := newRepo(store, 10).Get(context.Background(), "a1")
		assert.NoError(t, err)
		check.Equal(t, "a1", doc.ID)
		check.Equal(t, 3, store.findCalls)
	})

	t.Run("budget exhausted", func(t *testing.T) {
		store := &fakeStore{findFunc: func(ctx context.Context, id string) (*model.AuctionDocument, error) {
			return nil, errors.New("i/o timeout")
		}}
		doc, err := newRepo(store, 4).Get(context.Background(), "a1")
		check.True(t, doc == nil)
		check.True(t, errors.Is(err, auctionerrors.ErrRetriesExhausted))
		check.Equal(t, 4, store.findCalls)
	})
}

func TestNextRevision(t *testing.T) {
	check.Equal(t, 1, RevisionNumber(NextRevision("")))
	check.Equal(t, 13, RevisionNumber(NextRevision("12-deadbeef")))
	check.Equal(t, 1, RevisionNumber(NextRevision("garbage")))
	check.NotEqual(t, NextRevision("1-a"), NextRevision("1-a"))
}
