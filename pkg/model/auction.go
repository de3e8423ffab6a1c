package model

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Sentinel values of AuctionDocument.CurrentStage.
const (
	StageUnprepared  = -1
	StageCancelled   = -100
	StageRescheduled = -101
)

type StageType string

const (
	StagePause StageType = "pause"
	StageRound StageType = "main_round"
	StageEnd   StageType = "announcement"
)

type Value struct {
	Amount                float64 `json:"amount" bson:"amount"`
	Currency              string  `json:"currency,omitempty" bson:"currency,omitempty"`
	ValueAddedTaxIncluded bool    `json:"valueAddedTaxIncluded,omitempty" bson:"valueAddedTaxIncluded,omitempty"`
}

type Label struct {
	En string `json:"en" bson:"en" yaml:"en"`
	Uk string `json:"uk" bson:"uk" yaml:"uk"`
	Ru string `json:"ru" bson:"ru" yaml:"ru"`
}

// BidderLabel is the anonymous display label for bidder number n.
func BidderLabel(n int) Label {
	return Label{
		En: fmt.Sprintf("Bidder #%d", n),
		Uk: fmt.Sprintf("Учасник №%d", n),
		Ru: fmt.Sprintf("Участник №%d", n),
	}
}

// NameLabel uses the same name for every language.
func NameLabel(name string) Label {
	return Label{En: name, Uk: name, Ru: name}
}

// Stage is one entry of the auction timeline. Pause and End stages only use
// Start and Type; a Round carries Amount and an empty Time until a bid lands,
// then BidderID, Time and Label.
type Stage struct {
	Start    string    `json:"start" bson:"start"`
	Type     StageType `json:"type" bson:"type"`
	Amount   float64   `json:"amount,omitempty" bson:"amount,omitempty"`
	BidderID string    `json:"bidder_id,omitempty" bson:"bidder_id,omitempty"`
	Time     string    `json:"time" bson:"time"`
	Label    *Label    `json:"label,omitempty" bson:"label,omitempty"`
}

func (s Stage) IsRound() bool {
	return s.Type == StageRound
}

// IsOpen reports whether the stage is a round no bid has landed in yet.
func (s Stage) IsOpen() bool {
	return s.IsRound() && s.Time == ""
}

func (s Stage) StartTime() (time.Time, error) {
	return ParseTime(s.Start)
}

// Result is a bid as recorded in results, initial_bids and closed rounds.
type Result struct {
	BidderID string  `json:"bidder_id" bson:"bidder_id"`
	Time     string  `json:"time" bson:"time"`
	Amount   float64 `json:"amount" bson:"amount"`
	Label    Label   `json:"label" bson:"label"`
}

// Bid is an admitted bid as handed over by the admission boundary.
type Bid struct {
	BidderID string    `json:"bidder_id"`
	Amount   float64   `json:"amount"`
	Time     time.Time `json:"time"`
}

type AuctionDocument struct {
	ID                    string           `json:"_id" bson:"_id"`
	Rev                   string           `json:"_rev,omitempty" bson:"_rev,omitempty"`
	AuctionID             string           `json:"auctionID" bson:"auctionID"`
	ProcurementMethodType string           `json:"procurementMethodType" bson:"procurementMethodType"`
	APIVersion            string           `json:"TENDERS_API_VERSION,omitempty" bson:"TENDERS_API_VERSION,omitempty"`
	AuctionType           string           `json:"auction_type,omitempty" bson:"auction_type,omitempty"`
	Mode                  string           `json:"mode,omitempty" bson:"mode,omitempty"`
	TestAuctionData       *Tender          `json:"test_auction_data,omitempty" bson:"test_auction_data,omitempty"`
	CurrentStage          int              `json:"current_stage" bson:"current_stage"`
	Stages                []Stage          `json:"stages" bson:"stages"`
	Results               []Result         `json:"results" bson:"results"`
	InitialBids           []Result         `json:"initial_bids" bson:"initial_bids"`
	BidsMapping           map[string]int   `json:"bids_mapping,omitempty" bson:"bids_mapping,omitempty"`
	ProcuringEntity       map[string]any   `json:"procuringEntity,omitempty" bson:"procuringEntity,omitempty"`
	Items                 []map[string]any `json:"items,omitempty" bson:"items,omitempty"`
	Value                 Value            `json:"value" bson:"value"`
	MinimalStep           Value            `json:"minimalStep" bson:"minimalStep"`
	InitialValue          float64          `json:"initial_value" bson:"initial_value"`
	Title                 string           `json:"title" bson:"title"`
	TitleEn               string           `json:"title_en,omitempty" bson:"title_en,omitempty"`
	TitleRu               string           `json:"title_ru,omitempty" bson:"title_ru,omitempty"`
	Description           string           `json:"description" bson:"description"`
	DescriptionEn         string           `json:"description_en,omitempty" bson:"description_en,omitempty"`
	DescriptionRu         string           `json:"description_ru,omitempty" bson:"description_ru,omitempty"`
	EndDate               string           `json:"endDate,omitempty" bson:"endDate,omitempty"`
}

// CurrentStageEntry returns the stage current_stage points at, if any.
func (d *AuctionDocument) CurrentStageEntry() (Stage, bool) {
	if d.CurrentStage < 0 || d.CurrentStage >= len(d.Stages) {
		return Stage{}, false
	}
	return d.Stages[d.CurrentStage], true
}

// IsFinished reports a terminal document: cancelled, rescheduled or announced.
func (d *AuctionDocument) IsFinished() bool {
	if d.CurrentStage == StageCancelled || d.CurrentStage == StageRescheduled {
		return true
	}
	return len(d.Stages) > 0 && d.Stages[len(d.Stages)-1].Type == StageEnd
}

// BidderNumber returns the display number of bidderID, assigning the next
// sequential number the first time the bidder is seen.
func (d *AuctionDocument) BidderNumber(bidderID string) int {
	if d.BidsMapping == nil {
		d.BidsMapping = make(map[string]int)
	}
	if n, ok := d.BidsMapping[bidderID]; ok {
		return n
	}
	n := len(d.BidsMapping) + 1
	d.BidsMapping[bidderID] = n
	return n
}

func (d *AuctionDocument) DeepCopy() any {
	return d.Clone()
}

func (d *AuctionDocument) Clone() *AuctionDocument {
	if d == nil {
		return nil
	}
	c := *d
	c.Stages = make([]Stage, len(d.Stages))
	for i, s := range d.Stages {
		if s.Label != nil {
			label := *s.Label
			s.Label = &label
		}
		c.Stages[i] = s
	}
	c.Results = slices.Clone(d.Results)
	c.InitialBids = slices.Clone(d.InitialBids)
	c.BidsMapping = maps.Clone(d.BidsMapping)
	c.ProcuringEntity = cloneMap(d.ProcuringEntity)
	c.Items = cloneMaps(d.Items)
	c.TestAuctionData = d.TestAuctionData.Clone()
	return &c
}

const timeLayout = time.RFC3339Nano

// FormatTime renders t the way stage and result times are persisted:
// ISO-8601 with the local offset.
func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// LatestResult returns the last result recorded for bidderID. Results are
// appended in admission order.
func (d *AuctionDocument) LatestResult(bidderID string) (Result, bool) {
	for i := len(d.Results) - 1; i >= 0; i-- {
		if d.Results[i].BidderID == bidderID {
			return d.Results[i], true
		}
	}
	return Result{}, false
}

// OpenBidderNames replaces the anonymous labels of active bidders with the
// name of their tenderer.
func (d *AuctionDocument) OpenBidderNames(active map[string]TenderBid) {
	name := func(bidderID string) (Label, bool) {
		bid, ok := active[bidderID]
		if !ok || bid.TendererName() == "" {
			return Label{}, false
		}
		return NameLabel(bid.TendererName()), true
	}

	for i := range d.InitialBids {
		if label, ok := name(d.InitialBids[i].BidderID); ok {
			d.InitialBids[i].Label = label
		}
	}
	for i := range d.Results {
		if label, ok := name(d.Results[i].BidderID); ok {
			d.Results[i].Label = label
		}
	}
	for i := range d.Stages {
		if d.Stages[i].BidderID == "" {
			continue
		}
		if label, ok := name(d.Stages[i].BidderID); ok {
			d.Stages[i].Label = &label
		}
	}
}
