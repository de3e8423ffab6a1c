package state

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/model"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestRegistry_SetRejectsContractViolations(t *testing.T) {
	r := New()

	err := r.Set("bids", []string{"a"})
	check.True(t, errors.Is(err, auctionerrors.ErrUnknownKey))

	err = r.Set(KeyAuctionDocument, model.AuctionDocument{})
	check.True(t, errors.Is(err, auctionerrors.ErrWrongType))

	err = r.Set(KeyServerActionLock, nil)
	check.True(t, errors.Is(err, auctionerrors.ErrWrongType))
}

func TestRegistry_MustSetPanics(t *testing.T) {
	r := New()
	defer func() {
		rec := recover()
		assert.NotNil(t, rec)
		err, ok := rec.(error)
		assert.True(t, ok)
		check.True(t, errors.Is(err, auctionerrors.ErrWrongType))
	}()
	r.MustSet(KeyEndAuctionEvent, "set")
}

func TestRegistry_DocumentIsCopiedOnReadAndWrite(t *testing.T) {
	r := New()
	doc := &model.AuctionDocument{
		ID:           "a1",
		CurrentStage: 0,
		Stages:       []model.Stage{{Type: model.StagePause}},
		BidsMapping:  map[string]int{"b1": 1},
	}
	r.SetDocument(doc)

	doc.Stages = append(doc.Stages, model.Stage{Type: model.StageRound})
	doc.BidsMapping["b2"] = 2

	got := r.Document()
	assert.NotNil(t, got)
	check.Equal(t, 1, len(got.Stages))
	check.Equal(t, 1, len(got.BidsMapping))

	got.Stages[0].Type = model.StageEnd
	got.CurrentStage = 5
	again := r.Document()
	check.Equal(t, model.StagePause, again.Stages[0].Type)
	check.Equal(t, 0, again.CurrentStage)
}

func TestRegistry_HandlesAreShared(t *testing.T) {
	r := New()
	check.True(t, r.Lock() == r.Lock())
	check.True(t, r.EndEvent() == r.EndEvent())

	srv := &http.Server{}
	r.SetServer(srv)
	check.True(t, r.Server() == Server(srv))
}

func TestRegistry_EmptyValues(t *testing.T) {
	r := New()
	check.True(t, r.Document() == nil)
	check.True(t, r.Protocol() == nil)
	check.True(t, r.Tender() == nil)
	check.True(t, r.Server() == nil)
	check.False(t, r.Has(KeyAuctionDocument))
}

func TestNewRegistry_RejectsUncopyableComposites(t *testing.T) {
	defer func() {
		check.NotNil(t, recover())
	}()
	NewRegistry(Schema{"mapping": reflect.TypeOf(map[string]int{})})
}

func TestEvent(t *testing.T) {
	e := NewEvent()
	check.False(t, e.IsSet())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	check.True(t, errors.Is(e.Wait(ctx), context.DeadlineExceeded))

	var wg sync.WaitGroup
	fired := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fired <- e.Set()
		}()
	}
	wg.Wait()
	close(fired)

	count := 0
	for f := range fired {
		if f {
			count++
		}
	}
	check.Equal(t, 1, count)
	check.True(t, e.IsSet())
	check.NoError(t, e.Wait(context.Background()))
}
