package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/metrics"
	"auctionworker/pkg/model"

	"github.com/google/uuid"
)

type AuctionRepository interface {
	// Get loads the document, retrying store failures. A missing document
	// is reported as ErrNotFound right away.
	Get(ctx context.Context, id string) (*model.AuctionDocument, error)
	// Save writes doc and returns its new revision, which is also stored on
	// doc. A stale revision is rebased onto the store's before each attempt.
	Save(ctx context.Context, doc *model.AuctionDocument) (string, error)
	Ping(ctx context.Context) error
}

type auctionRepository struct {
	store   DocumentStore
	retries int
	delay   time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewAuctionRepository(store DocumentStore, retries int, delay time.Duration, log *logger.Logger, m *metrics.Metrics) AuctionRepository {
	if retries < 1 {
		retries = 1
	}
	return &auctionRepository{
		store:   store,
		retries: retries,
		delay:   delay,
		log:     log,
		metrics: m,
	}
}

func (r *auctionRepository) Get(ctx context.Context, id string) (*model.AuctionDocument, error) {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			r.metrics.DBRetry("get")
			if err := r.wait(ctx); err != nil {
				return nil, err
			}
		}

		doc, err := r.store.Find(ctx, id)
		if err == nil {
			return doc, nil
		}
		if errors.Is(err, auctionerrors.ErrNotFound) {
			return nil, err
		}

		lastErr = err
		r.log.Warn("Failed to get auction document",
			logger.AuctionID, id,
			logger.MessageID, "db_get_doc_error",
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, fmt.Errorf("%w: get %s: %v", auctionerrors.ErrRetriesExhausted, id, lastErr)
}

func (r *auctionRepository) Save(ctx context.Context, doc *model.AuctionDocument) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			r.metrics.DBRetry("save")
			if err := r.wait(ctx); err != nil {
				return "", err
			}
		}

		rev, err := r.trySave(ctx, doc)
		if err == nil {
			r.log.Debug("Saved auction document", logger.AuctionID, doc.ID, "rev", rev)
			return rev, nil
		}

		lastErr = err
		r.log.Warn("Failed to save auction document",
			logger.AuctionID, doc.ID,
			logger.MessageID, "db_save_doc_error",
			"attempt", attempt+1,
			"error", err,
		)
	}

	return "", fmt.Errorf("%w: save %s: %v", auctionerrors.ErrRetriesExhausted, doc.ID, lastErr)
}

// trySave rebases doc onto the stored revision and writes it once.
func (r *auctionRepository) trySave(ctx context.Context, doc *model.AuctionDocument) (string, error) {
	current, found, err := r.store.Revision(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	if !found {
		current = ""
	}
	if current != doc.Rev {
		r.log.Debug("Rebasing auction document revision",
			logger.AuctionID, doc.ID,
			"held", doc.Rev,
			"stored", current,
		)
	}

	next := doc.Clone()
	next.Rev = NextRevision(current)
	if err := r.store.Replace(ctx, next, current); err != nil {
		return "", err
	}

	doc.Rev = next.Rev
	return next.Rev, nil
}

func (r *auctionRepository) wait(ctx context.Context) error {
	if r.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *auctionRepository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// NextRevision turns "N-<hash>" into "N+1-<new hash>". Anything that does not
// parse starts over at 1.
func NextRevision(rev string) string {
	n := 0
	if prefix, _, ok := strings.Cut(rev, "-"); ok {
		n, _ = strconv.Atoi(prefix)
	}
	return fmt.Sprintf("%d-%s", n+1, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// RevisionNumber is the numeric prefix of rev, or 0.
func RevisionNumber(rev string) int {
	prefix, _, _ := strings.Cut(rev, "-")
	n, _ := strconv.Atoi(prefix)
	return n
}
