package datasource

import (
	"context"
	"fmt"
	"net/http"
	"time"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/internal/auction/protocol"
	"auctionworker/pkg/client"
	"auctionworker/pkg/config"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"

	"github.com/google/uuid"
)

// APIDataSource reads the tender from the tender API and posts results and
// the audit document back to it.
type APIDataSource struct {
	public  *client.HttpClient
	private *client.HttpClient
	path    string
	docs    DocumentService
	log     *logger.Logger
}

// NewAPIDataSource builds the source. docs is optional; without it the audit
// file is uploaded to the tender API directly.
func NewAPIDataSource(cfg *config.Config, auctionID string, docs DocumentService, log *logger.Logger) *APIDataSource {
	base := client.NewHttpClient(cfg.APIServer).WithRetries(2, 500*time.Millisecond)
	return &APIDataSource{
		public:  base,
		private: base.WithBasicAuth(cfg.APIToken, ""),
		path:    cfg.TenderPath(auctionID),
		docs:    docs,
		log:     log.ForAuction(auctionID),
	}
}

type documentEnvelope struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type resultsEnvelope struct {
	Data struct {
		Bids []model.TenderBid `json:"bids"`
	} `json:"data"`
}

func requestHeaders() (map[string]string, string) {
	id := uuid.NewString()
	return map[string]string{client.RequestIDHeader: id}, id
}

func (s *APIDataSource) GetData(ctx context.Context, public, withCredentials bool) (*model.Tender, error) {
	headers, requestID := requestHeaders()

	c, path := s.public, s.path
	switch {
	case !public:
		c, path = s.private, s.path+"/auction"
	case withCredentials:
		c = s.private
	}

	resp, err := c.GET(ctx, path, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auctionerrors.ErrTenderUnavailable, err)
	}
	if !resp.OK() {
		s.log.Warn("Failed to get tender data",
			logger.RequestID, requestID,
			"status", resp.StatusCode,
			"error", client.GetErrorMessage(resp),
		)
		return nil, fmt.Errorf("%w: status %d", auctionerrors.ErrTenderUnavailable, resp.StatusCode)
	}

	var env model.TenderEnvelope
	if err := resp.DecodeJSON(&env); err != nil {
		return nil, fmt.Errorf("failed to decode tender data: %w", err)
	}
	return &env.Data, nil
}

func (s *APIDataSource) UpdateSourceObject(ctx context.Context, tender *model.Tender, doc *model.AuctionDocument, p *model.Protocol) (*model.AuctionDocument, bool, error) {
	docID, err := s.UploadAuditDocument(ctx, p, "")
	if err != nil {
		s.log.Warn("Audit log not approved", logger.MessageID, "audit_log_not_approved", "error", err)
	}

	approved, err := s.postResults(ctx, tender, doc)
	if err != nil {
		s.log.Info("Auctions results not approved", logger.MessageID, "auction_result_not_approved", "error", err)
		return nil, false, err
	}

	active := make(map[string]model.TenderBid, len(approved))
	for _, bid := range approved {
		if bid.IsActive() {
			active[bid.ID] = bid
		}
	}
	replacement := doc.Clone()
	replacement.OpenBidderNames(active)

	if docID == "" || len(active) == 0 {
		return nil, true, nil
	}

	if p.Timeline.Results != nil {
		at, err := model.ParseTime(p.Timeline.Results.Time)
		if err != nil {
			at = time.Now()
		}
		protocol.ApproveResults(p, doc, at, active)
	}
	if _, err := s.UploadAuditDocument(ctx, p, docID); err != nil {
		s.log.Warn("Audit log not approved", logger.MessageID, "audit_log_not_approved", "doc_id", docID, "error", err)
	}
	return replacement, true, nil
}

// postResults sends the tender bids with the amount and date of each active
// bidder's latest auction result, and returns the bids the API approved.
func (s *APIDataSource) postResults(ctx context.Context, tender *model.Tender, doc *model.AuctionDocument) ([]model.TenderBid, error) {
	if tender == nil {
		return nil, auctionerrors.ErrTenderUnavailable
	}

	posted := tender.Clone().Bids
	for i, bid := range posted {
		if !bid.IsActive() {
			continue
		}
		latest, ok := doc.LatestResult(bid.ID)
		if !ok {
			continue
		}
		value := model.Value{}
		if bid.Value != nil {
			value = *bid.Value
		}
		value.Amount = latest.Amount
		posted[i].Value = &value
		posted[i].Date = latest.Time
	}

	body := map[string]any{"data": map[string]any{"bids": posted}}
	headers, requestID := requestHeaders()
	s.log.Info("Approved data", logger.RequestID, requestID, logger.MessageID, "approved_data", "bids", len(posted))

	resp, err := s.private.POST(ctx, s.path+"/auction", body, headers)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, client.GetErrorMessage(resp))
	}

	var env resultsEnvelope
	if err := resp.DecodeJSON(&env); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return env.Data.Bids, nil
}

func (s *APIDataSource) UploadAuditDocument(ctx context.Context, p *model.Protocol, docID string) (string, error) {
	content, err := protocol.Render(p)
	if err != nil {
		return "", err
	}

	method, path := http.MethodPost, s.path+"/documents"
	if docID != "" {
		method, path = http.MethodPut, s.path+"/documents/"+docID
	}
	headers, requestID := requestHeaders()
	name := auditFileName(p.ID)

	var resp *client.Response
	if s.docs != nil {
		url, err := s.docs.Upload(ctx, name, content)
		if err != nil {
			return "", err
		}
		body := map[string]any{"data": map[string]any{
			"title":        name,
			"url":          url,
			"format":       "application/yaml",
			"documentType": "auctionProtocol",
		}}
		if method == http.MethodPut {
			resp, err = s.private.PUT(ctx, path, body, headers)
		} else {
			resp, err = s.private.POST(ctx, path, body, headers)
		}
		if err != nil {
			return "", err
		}
	} else {
		resp, err = s.private.SendFile(ctx, method, path, client.Upload{
			Field:    "file",
			FileName: name,
			Content:  content,
		}, headers)
		if err != nil {
			return "", err
		}
	}

	if !resp.OK() {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, client.GetErrorMessage(resp))
	}
	var env documentEnvelope
	if err := resp.DecodeJSON(&env); err != nil {
		return "", fmt.Errorf("failed to decode document: %w", err)
	}

	s.log.Info("Audit log approved",
		logger.RequestID, requestID,
		logger.MessageID, "audit_log_approved",
		"doc_id", env.Data.ID,
	)
	return env.Data.ID, nil
}
