package model

// TenderEnvelope is the {"data": ...} wrapper the tender API answers with.
type TenderEnvelope struct {
	Data Tender `json:"data"`
}

type Period struct {
	StartDate string `json:"startDate,omitempty" bson:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty" bson:"endDate,omitempty"`
}

// Tender is the slice of the upstream tender payload the worker reads.
type Tender struct {
	ID                    string           `json:"id" bson:"id"`
	AuctionID             string           `json:"auctionID,omitempty" bson:"auctionID,omitempty"`
	ProcurementMethodType string           `json:"procurementMethodType,omitempty" bson:"procurementMethodType,omitempty"`
	Status                string           `json:"status,omitempty" bson:"status,omitempty"`
	Title                 string           `json:"title,omitempty" bson:"title,omitempty"`
	TitleEn               string           `json:"title_en,omitempty" bson:"title_en,omitempty"`
	TitleRu               string           `json:"title_ru,omitempty" bson:"title_ru,omitempty"`
	Description           string           `json:"description,omitempty" bson:"description,omitempty"`
	DescriptionEn         string           `json:"description_en,omitempty" bson:"description_en,omitempty"`
	DescriptionRu         string           `json:"description_ru,omitempty" bson:"description_ru,omitempty"`
	AuctionPeriod         Period           `json:"auctionPeriod" bson:"auctionPeriod"`
	Value                 Value            `json:"value" bson:"value"`
	MinimalStep           Value            `json:"minimalStep" bson:"minimalStep"`
	ProcuringEntity       map[string]any   `json:"procuringEntity,omitempty" bson:"procuringEntity,omitempty"`
	Items                 []map[string]any `json:"items,omitempty" bson:"items,omitempty"`
	Bids                  []TenderBid      `json:"bids,omitempty" bson:"bids,omitempty"`
}

type TenderBid struct {
	ID        string           `json:"id" bson:"id"`
	Date      string           `json:"date,omitempty" bson:"date,omitempty"`
	Status    string           `json:"status,omitempty" bson:"status,omitempty"`
	Value     *Value           `json:"value,omitempty" bson:"value,omitempty"`
	Owner     string           `json:"owner,omitempty" bson:"owner,omitempty"`
	Tenderers []map[string]any `json:"tenderers,omitempty" bson:"tenderers,omitempty"`
}

// IsActive treats a bid without a status as active.
func (b TenderBid) IsActive() bool {
	return b.Status == "" || b.Status == "active"
}

// TendererName is the name of the first tenderer, or "" when unknown.
func (b TenderBid) TendererName() string {
	if len(b.Tenderers) == 0 {
		return ""
	}
	name, _ := b.Tenderers[0]["name"].(string)
	return name
}

// ActiveBids indexes the active bids by bid id.
func (t *Tender) ActiveBids() map[string]TenderBid {
	active := make(map[string]TenderBid, len(t.Bids))
	for _, bid := range t.Bids {
		if bid.IsActive() {
			active[bid.ID] = bid
		}
	}
	return active
}

func (t *Tender) Clone() *Tender {
	if t == nil {
		return nil
	}
	c := *t
	c.ProcuringEntity = cloneMap(t.ProcuringEntity)
	c.Items = cloneMaps(t.Items)
	if t.Bids != nil {
		c.Bids = make([]TenderBid, len(t.Bids))
		for i, bid := range t.Bids {
			if bid.Value != nil {
				v := *bid.Value
				bid.Value = &v
			}
			bid.Tenderers = cloneMaps(bid.Tenderers)
			c.Bids[i] = bid
		}
	}
	return &c
}

func (t *Tender) DeepCopy() any {
	return t.Clone()
}

// Merge overlays the fields set on other, as the private auction view
// completes the public tender.
func (t *Tender) Merge(other *Tender) {
	if other == nil {
		return
	}
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&t.ID, other.ID)
	setStr(&t.AuctionID, other.AuctionID)
	setStr(&t.ProcurementMethodType, other.ProcurementMethodType)
	setStr(&t.Status, other.Status)
	setStr(&t.Title, other.Title)
	setStr(&t.TitleEn, other.TitleEn)
	setStr(&t.TitleRu, other.TitleRu)
	setStr(&t.Description, other.Description)
	setStr(&t.DescriptionEn, other.DescriptionEn)
	setStr(&t.DescriptionRu, other.DescriptionRu)
	setStr(&t.AuctionPeriod.StartDate, other.AuctionPeriod.StartDate)
	setStr(&t.AuctionPeriod.EndDate, other.AuctionPeriod.EndDate)
	if other.Value.Amount != 0 {
		t.Value = other.Value
	}
	if other.MinimalStep.Amount != 0 {
		t.MinimalStep = other.MinimalStep
	}
	if other.ProcuringEntity != nil {
		t.ProcuringEntity = cloneMap(other.ProcuringEntity)
	}
	if other.Items != nil {
		t.Items = cloneMaps(other.Items)
	}
	if other.Bids != nil {
		t.Bids = other.Clone().Bids
	}
}
