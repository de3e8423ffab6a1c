// Package datasource talks to the system the auction data comes from and
// the results go back to.
package datasource

import (
	"context"
	"fmt"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/config"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/model"
)

type DataSource interface {
	// GetData fetches the tender. public=false reads the private auction
	// view, withCredentials authenticates the public read.
	GetData(ctx context.Context, public, withCredentials bool) (*model.Tender, error)
	// UpdateSourceObject posts the results and the audit protocol. ok
	// reports that the results were accepted; a non-nil document replaces
	// the one held by the caller.
	UpdateSourceObject(ctx context.Context, tender *model.Tender, doc *model.AuctionDocument, p *model.Protocol) (replacement *model.AuctionDocument, ok bool, err error)
	// UploadAuditDocument uploads the rendered protocol, replacing docID
	// when it is set, and returns the id of the stored document.
	UploadAuditDocument(ctx context.Context, p *model.Protocol, docID string) (string, error)
}

// New builds the data source configured for auctionID.
func New(ctx context.Context, cfg *config.Config, auctionID string, log *logger.Logger) (DataSource, error) {
	switch cfg.DataSourceType {
	case config.DataSourceFile:
		return NewFileDataSource(cfg.DataSourcePath, auctionID), nil
	case config.DataSourceAPI:
		var docs DocumentService
		if cfg.WithDocumentService {
			s3docs, err := NewS3DocumentService(ctx, cfg)
			if err != nil {
				return nil, err
			}
			docs = s3docs
		}
		return NewAPIDataSource(cfg, auctionID, docs, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", auctionerrors.ErrUnknownDataSource, cfg.DataSourceType)
	}
}

func auditFileName(id string) string {
	return fmt.Sprintf("audit_%s.yaml", id)
}
