package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/internal/auction/protocol"
	"auctionworker/pkg/config"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

const tenderPath = "/api/2.5/tenders/a1"

func testConfig(server string) *config.Config {
	cfg := config.Default()
	cfg.APIServer = server
	cfg.APIToken = "token"
	return cfg
}

func finishedDocument() *model.AuctionDocument {
	return &model.AuctionDocument{
		ID: "a1",
		Stages: []model.Stage{
			{Start: "2026-03-02T11:00:00+02:00", Type: model.StagePause},
			{Start: "2026-03-02T11:00:10+02:00", Type: model.StageRound, Amount: 535000, BidderID: "b1", Time: "2026-03-02T11:01:00+02:00"},
		},
		Results: []model.Result{
			{BidderID: "b1", Amount: 540000, Time: "2026-03-02T11:01:00+02:00", Label: model.BidderLabel(1)},
		},
	}
}

func TestFileDataSource(t *testing.T) {
	dir := t.TempDir()
	payload := `{"data": {"id": "a1", "auctionID": "UA-1", "value": {"amount": 500000}, "bids": [{"id": "b1", "status": "active"}]}}`
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "auction_a1.json"), []byte(payload), 0o600))

	src := NewFileDataSource(dir, "a1")
	tender, err := src.GetData(context.Background(), true, false)
	assert.NoError(t, err)
	check.Equal(t, "UA-1", tender.AuctionID)
	check.Equal(t, 500000.0, tender.Value.Amount)
	check.Equal(t, 1, len(tender.ActiveBids()))

	replacement, ok, err := src.UpdateSourceObject(context.Background(), tender, finishedDocument(), &model.Protocol{})
	check.NoError(t, err)
	check.True(t, ok)
	check.True(t, replacement == nil)

	_, err = NewFileDataSource(dir, "missing").GetData(context.Background(), true, false)
	check.True(t, errors.Is(err, auctionerrors.ErrTenderUnavailable))
}

func TestAPIDataSource_GetData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, authed := r.BasicAuth()
		switch r.URL.Path {
		case tenderPath:
			name := "public"
			if authed && user == "token" {
				name = "credentials"
			}
			_, _ = w.Write([]byte(`{"data": {"id": "a1", "title": "` + name + `"}}`))
		case tenderPath + "/auction":
			if !authed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(`{"data": {"id": "a1", "title": "private"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewAPIDataSource(testConfig(srv.URL), "a1", nil, logger.Discard())
	tests := []struct {
		public, withCredentials bool
		want                    string
	}{
		{true, false, "public"},
		{true, true, "credentials"},
		{false, false, "private"},
	}
	for _, tt := range tests {
		tender, err := src.GetData(context.Background(), tt.public, tt.withCredentials)
		assert.NoError(t, err)
		check.Equal(t, tt.want, tender.Title)
	}

	missing := NewAPIDataSource(testConfig(srv.URL), "other", nil, logger.Discard())
	_, err := missing.GetData(context.Background(), true, false)
	check.True(t, errors.Is(err, auctionerrors.ErrTenderUnavailable))
}

func TestAPIDataSource_UpdateSourceObject(t *testing.T) {
	var (
		mu        sync.Mutex
		calls     []string
		postedBid map[string]any
		reupload  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path)

		switch {
		case r.Method == http.MethodPost && r.URL.Path == tenderPath+"/documents":
			_, _ = w.Write([]byte(`{"data": {"id": "doc-1"}}`))
		case r.Method == http.MethodPost && r.URL.Path == tenderPath+"/auction":
			var body struct {
				Data struct {
					Bids []map[string]any `json:"bids"`
				} `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			postedBid = body.Data.Bids[0]
			_, _ = w.Write([]byte(`{"data": {"bids": [{"id": "b1", "status": "active", "owner": "broker", "tenderers": [{"name": "Acme"}]}]}}`))
		case r.Method == http.MethodPut && r.URL.Path == tenderPath+"/documents/doc-1":
			file, _, err := r.FormFile("file")
			if err == nil {
				content, _ := io.ReadAll(file)
				reupload = string(content)
			}
			_, _ = w.Write([]byte(`{"data": {"id": "doc-1"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	doc := finishedDocument()
	tender := &model.Tender{ID: "a1", Bids: []model.TenderBid{
		{ID: "b1", Status: "active", Date: "2026-02-20T10:00:00+02:00", Value: &model.Value{Amount: 500000, Currency: "UAH"}},
	}}
	p := protocol.New(doc, tender)
	protocol.ApproveResults(p, doc, time.Date(2026, 3, 2, 11, 3, 10, 0, time.UTC), nil)

	src := NewAPIDataSource(testConfig(srv.URL), "a1", nil, logger.Discard())
	replacement, ok, err := src.UpdateSourceObject(context.Background(), tender, doc, p)
	assert.NoError(t, err)
	check.True(t, ok)
	assert.NotNil(t, replacement)

	check.Equal(t, []string{
		"POST " + tenderPath + "/documents",
		"POST " + tenderPath + "/auction",
		"PUT " + tenderPath + "/documents/doc-1",
	}, calls)

	value := postedBid["value"].(map[string]any)
	check.Equal(t, any(540000.0), value["amount"])
	check.Equal(t, any("UAH"), value["currency"])
	check.Equal(t, any("2026-03-02T11:01:00+02:00"), postedBid["date"])

	check.Equal(t, "Acme", replacement.Results[0].Label.En)
	check.Equal(t, "Bidder #1", doc.Results[0].Label.En)
	check.True(t, strings.Contains(reupload, "owner: broker"))
}

func TestAPIDataSource_ResultsNotApproved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tenderPath+"/auction" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message": "tender is not in active.auction"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data": {"id": "doc-1"}}`))
	}))
	defer srv.Close()

	src := NewAPIDataSource(testConfig(srv.URL), "a1", nil, logger.Discard())
	replacement, ok, err := src.UpdateSourceObject(context.Background(), &model.Tender{ID: "a1"}, finishedDocument(), &model.Protocol{ID: "a1"})
	check.Error(t, err)
	check.False(t, ok)
	check.True(t, replacement == nil)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	b, _ := io.ReadAll(params.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestS3DocumentService_RegistersUploadedAudit(t *testing.T) {
	var registered map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		registered = body["data"]
		_, _ = w.Write([]byte(`{"data": {"id": "doc-9"}}`))
	}))
	defer srv.Close()

	putter := &fakePutter{}
	docs := newS3DocumentService(putter, "audits", "https://storage.example.org/")
	src := NewAPIDataSource(testConfig(srv.URL), "a1", docs, logger.Discard())

	id, err := src.UploadAuditDocument(context.Background(), &model.Protocol{ID: "a1"}, "")
	assert.NoError(t, err)
	check.Equal(t, "doc-9", id)
	check.Equal(t, "audit_a1.yaml", *putter.input.Key)
	check.True(t, strings.Contains(putter.body, "id: a1"))
	check.Equal(t, any("https://storage.example.org/audits/audit_a1.yaml"), registered["url"])
}

func TestNew_UnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.DataSourceType = "couch"
	_, err := New(context.Background(), cfg, "a1", logger.Discard())
	check.True(t, errors.Is(err, auctionerrors.ErrUnknownDataSource))
}
