package validator

import (
	"errors"
	"fmt"
	"strings"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/config"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// BidForm is a bid as submitted by a bidder.
type BidForm struct {
	BidderID string  `json:"bidder_id" validate:"required,max=64,printascii"`
	Amount   float64 `json:"bid" validate:"gt=0,money"`
}

// BidValidator checks bid forms and, under the shared lock, whether a bid is
// admissible against the current document.
type BidValidator struct {
	validate   *validator.Validate
	discipline string
	logger     *logger.Logger
}

func NewBidValidator(discipline string, log *logger.Logger) *BidValidator {
	v := validator.New()

	if err := v.RegisterValidation("money", validateMoney); err != nil {
		log.Fatal("Failed to register 'money' validator", "error", err)
	}

	log.Info("Bid validator initialized successfully", "discipline", discipline)

	return &BidValidator{
		validate:   v,
		discipline: discipline,
		logger:     log,
	}
}

// validateMoney accepts amounts with at most two decimal places.
func validateMoney(fl validator.FieldLevel) bool {
	amount := decimal.NewFromFloat(fl.Field().Float())
	return amount.Equal(amount.Truncate(2))
}

func (v *BidValidator) Validate(form *BidForm) error {
	form.BidderID = strings.TrimSpace(form.BidderID)
	if err := v.validate.Struct(form); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BidValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "printascii":
			message = fmt.Sprintf("%s must contain printable ASCII characters only", err.Field())
		case "gt":
			message = "Bid amount must be positive"
		case "money":
			message = "Bid amount must have at most two decimal places"
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}

// Check applies the admission policy of the configured discipline. Both
// disciplines require an open round, a known bidder and an amount that is
// the round amount raised by whole minimal steps. The ascending
// discipline also refuses a bidder who holds the previous round.
func (v *BidValidator) Check(doc *model.AuctionDocument, bid model.Bid) error {
	stage, ok := doc.CurrentStageEntry()
	if !ok || !stage.IsOpen() {
		return auctionerrors.ErrBiddingClosed
	}

	var errs ValidationErrors
	if _, known := doc.BidsMapping[bid.BidderID]; !known {
		errs = append(errs, ValidationError{Field: "bidder_id", Message: "Unknown bidder"})
	}

	amount := decimal.NewFromFloat(bid.Amount)
	roundAmount := decimal.NewFromFloat(stage.Amount)
	step := decimal.NewFromFloat(doc.MinimalStep.Amount)
	switch {
	case amount.LessThan(roundAmount):
		errs = append(errs, ValidationError{Field: "bid", Message: "Too low value"})
	case step.IsPositive() && !amount.Sub(roundAmount).Mod(step).IsZero():
		errs = append(errs, ValidationError{
			Field: "bid",
			Message: fmt.Sprintf("Value should be the round amount (%s) plus a multiple of the minimalStep amount (%s)",
				roundAmount.String(), step.String()),
		})
	}

	if v.discipline == config.DisciplineAscending {
		if holder, ok := previousRoundHolder(doc); ok && holder == bid.BidderID {
			errs = append(errs, ValidationError{Field: "bidder_id", Message: "Bidder already holds the previous round"})
		}
	}

	if len(errs) > 0 {
		v.logger.Info("Bid refused",
			logger.AuctionID, doc.ID,
			"bidder_id", bid.BidderID,
			"amount", bid.Amount,
			"error", errs.Error(),
		)
		return errs
	}
	return nil
}

// previousRoundHolder is the bidder of the last closed round before the
// current stage.
func previousRoundHolder(doc *model.AuctionDocument) (string, bool) {
	for i := doc.CurrentStage - 1; i >= 0; i-- {
		stage := doc.Stages[i]
		if stage.IsRound() && stage.BidderID != "" {
			return stage.BidderID, true
		}
	}
	return "", false
}
