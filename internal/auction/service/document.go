package service

import (
	"context"
	"fmt"

	"auctionworker/internal/auction/protocol"
	"auctionworker/internal/auction/stages"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"
)

const auctionType = "kadastral"

// PrepareAuctionDocument builds the auction document from the tender and
// stores it, keeping the revision of a document prepared before. When no
// round fits before the deadline the auction is rescheduled.
func (a *Auction) PrepareAuctionDocument(ctx context.Context) error {
	log := a.log.With(logger.MessageID, "prepare_auction_document")

	var rev string
	existing, err := a.repo.Get(ctx, a.id)
	switch {
	case err == nil:
		rev = existing.Rev
	case !isNotFound(err):
		return fmt.Errorf("failed to load auction document: %w", err)
	}

	tender, err := a.synchronize(ctx, true)
	if err != nil {
		return err
	}

	doc := a.documentFrom(tender)
	doc.Rev = rev
	if a.cfg.Debug {
		doc.Mode = "test"
		doc.TestAuctionData = tender.Clone()
	}
	setMapping(doc, tender)

	start, err := model.ParseTime(tender.AuctionPeriod.StartDate)
	if err != nil {
		return fmt.Errorf("failed to read auction start date: %w", err)
	}
	pause, round, hasRound := a.timing.PrepareAuctionStages(start.In(a.loc), stages.TermsOf(doc).FirstRoundAmount())
	if hasRound {
		doc.Stages = []model.Stage{pause, round}
	} else {
		doc.Stages = []model.Stage{pause}
	}

	if _, err := a.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save auction document: %w", err)
	}
	log.Info("Auction document prepared",
		"start", pause.Start,
		"bidders", len(doc.BidsMapping),
		"revision", doc.Rev,
	)

	if !hasRound {
		log.Warn("No round fits before the deadline")
		return a.RescheduleAuction(ctx)
	}
	return nil
}

func (a *Auction) documentFrom(tender *model.Tender) *model.AuctionDocument {
	methodType := tender.ProcurementMethodType
	if methodType == "" {
		methodType = defaultProcurementMethodType
	}
	return &model.AuctionDocument{
		ID:                    a.id,
		AuctionID:             tender.AuctionID,
		ProcurementMethodType: methodType,
		APIVersion:            a.cfg.APIVersion,
		AuctionType:           auctionType,
		CurrentStage:          model.StageUnprepared,
		Stages:                []model.Stage{},
		Results:               []model.Result{},
		InitialBids:           []model.Result{},
		ProcuringEntity:       tender.ProcuringEntity,
		Items:                 tender.Items,
		Value:                 tender.Value,
		MinimalStep:           tender.MinimalStep,
		InitialValue:          tender.Value.Amount,
		Title:                 tender.Title,
		TitleEn:               tender.TitleEn,
		TitleRu:               tender.TitleRu,
		Description:           tender.Description,
		DescriptionEn:         tender.DescriptionEn,
		DescriptionRu:         tender.DescriptionRu,
	}
}

// PostAnnounce replaces the anonymous labels with the names of the active
// bidders.
func (a *Auction) PostAnnounce(ctx context.Context) error {
	doc, err := a.repo.Get(ctx, a.id)
	if err != nil {
		return fmt.Errorf("failed to load auction document: %w", err)
	}
	tender, err := a.source.GetData(ctx, true, true)
	if err != nil {
		return fmt.Errorf("failed to get tender data: %w", err)
	}

	doc.OpenBidderNames(tender.ActiveBids())
	if _, err := a.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save auction document: %w", err)
	}
	a.log.Info("Bidder names announced", logger.MessageID, "post_announce")
	return nil
}

// CancelAuction marks the auction cancelled. A missing document is logged
// and ignored.
func (a *Auction) CancelAuction(ctx context.Context) error {
	return a.terminate(ctx, model.StageCancelled, true, "Auction cancelled")
}

// RescheduleAuction marks the auction for rescheduling. A missing document
// is logged and ignored.
func (a *Auction) RescheduleAuction(ctx context.Context) error {
	return a.terminate(ctx, model.StageRescheduled, false, "Auction rescheduled")
}

func (a *Auction) terminate(ctx context.Context, stage int, setEndDate bool, msg string) error {
	doc, err := a.repo.Get(ctx, a.id)
	if err != nil {
		if isNotFound(err) {
			a.log.Warn(fmt.Sprintf("Auction %s not found", a.id))
			return nil
		}
		return fmt.Errorf("failed to load auction document: %w", err)
	}

	doc.CurrentStage = stage
	if setEndDate {
		doc.EndDate = model.FormatTime(a.now().In(a.loc))
	}
	if _, err := a.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save auction document: %w", err)
	}
	a.log.Info(msg, "current_stage", stage)
	return nil
}

// PostAudit rebuilds the protocol of a finished auction and uploads it.
func (a *Auction) PostAudit(ctx context.Context) error {
	doc, err := a.repo.Get(ctx, a.id)
	if err != nil {
		return fmt.Errorf("failed to load auction document: %w", err)
	}
	tender, err := a.source.GetData(ctx, true, true)
	if err != nil {
		return fmt.Errorf("failed to get tender data: %w", err)
	}

	p := protocol.Rebuild(doc, tender, tender.ActiveBids())
	docID, err := a.source.UploadAuditDocument(ctx, p, "")
	if err != nil {
		return fmt.Errorf("failed to upload audit: %w", err)
	}
	a.log.Info("Audit uploaded", logger.MessageID, "post_audit", "document_id", docID)
	return nil
}
