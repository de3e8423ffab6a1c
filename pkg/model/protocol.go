package model

// Protocol is the audit record of one auction, rendered to YAML and uploaded
// to the tender when the auction ends.
type Protocol struct {
	ID           string           `json:"id" yaml:"id"`
	AuctionID    string           `json:"auctionId" yaml:"auctionId"`
	AuctionDocID string           `json:"auction_id" yaml:"auction_id"`
	Items        []map[string]any `json:"items" yaml:"items"`
	Timeline     Timeline         `json:"timeline" yaml:"timeline"`
}

// Timeline holds auction_start, results and the stage_N / round_N entries
// flattened next to them.
type Timeline struct {
	AuctionStart AuctionStart             `json:"auction_start" yaml:"auction_start"`
	Entries      map[string]TimelineEntry `json:"-" yaml:",inline"`
	Results      *ProtocolResults         `json:"results,omitempty" yaml:"results,omitempty"`
}

type AuctionStart struct {
	Time        string      `json:"time,omitempty" yaml:"time,omitempty"`
	InitialBids []BidRecord `json:"initial_bids" yaml:"initial_bids"`
}

// TimelineEntry is either a round_N bid (Bidder, Amount, Time) or a stage_N
// record carrying Pause or Bids.
type TimelineEntry struct {
	Bidder string       `json:"bidder,omitempty" yaml:"bidder,omitempty"`
	Amount float64      `json:"amount,omitempty" yaml:"amount,omitempty"`
	Time   string       `json:"time,omitempty" yaml:"time,omitempty"`
	Pause  *PauseRecord `json:"pause,omitempty" yaml:"pause,omitempty"`
	Bids   *BidRecord   `json:"bids,omitempty" yaml:"bids,omitempty"`
}

type PauseRecord struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
}

type BidRecord struct {
	Bidder         string           `json:"bidder,omitempty" yaml:"bidder,omitempty"`
	Amount         float64          `json:"amount,omitempty" yaml:"amount,omitempty"`
	Time           string           `json:"time,omitempty" yaml:"time,omitempty"`
	Identification []map[string]any `json:"identification,omitempty" yaml:"identification,omitempty"`
	Owner          string           `json:"owner,omitempty" yaml:"owner,omitempty"`
}

type ProtocolResults struct {
	Time string      `json:"time" yaml:"time"`
	Bids []BidRecord `json:"bids" yaml:"bids"`
}

func (p *Protocol) Clone() *Protocol {
	if p == nil {
		return nil
	}
	c := *p
	c.Items = cloneMaps(p.Items)
	c.Timeline.AuctionStart.InitialBids = cloneBidRecords(p.Timeline.AuctionStart.InitialBids)
	if p.Timeline.Entries != nil {
		c.Timeline.Entries = make(map[string]TimelineEntry, len(p.Timeline.Entries))
		for k, e := range p.Timeline.Entries {
			if e.Pause != nil {
				pause := *e.Pause
				e.Pause = &pause
			}
			if e.Bids != nil {
				bids := cloneBidRecord(*e.Bids)
				e.Bids = &bids
			}
			c.Timeline.Entries[k] = e
		}
	}
	if p.Timeline.Results != nil {
		results := *p.Timeline.Results
		results.Bids = cloneBidRecords(results.Bids)
		c.Timeline.Results = &results
	}
	return &c
}

func (p *Protocol) DeepCopy() any {
	return p.Clone()
}

func cloneBidRecords(in []BidRecord) []BidRecord {
	if in == nil {
		return nil
	}
	out := make([]BidRecord, len(in))
	for i, r := range in {
		out[i] = cloneBidRecord(r)
	}
	return out
}

func cloneBidRecord(r BidRecord) BidRecord {
	r.Identification = cloneMaps(r.Identification)
	return r
}
