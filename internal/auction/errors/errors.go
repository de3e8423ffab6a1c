package errors

import "errors"

var (
	ErrNotFound = errors.New("auction document not found")

	ErrRetriesExhausted = errors.New("document store retries exhausted")

	ErrRevisionConflict = errors.New("document revision conflict")

	ErrUnknownKey = errors.New("unknown context key")

	ErrWrongType = errors.New("wrong context value type")

	ErrBiddingClosed = errors.New("bidding is closed for the current stage")

	ErrNoMainRound = errors.New("no main round fits before the deadline")

	ErrTenderUnavailable = errors.New("tender data is unavailable")

	ErrUnknownDataSource = errors.New("unknown data source type")
)
