package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/model"
)

// FileDataSource reads the tender from <path>/auction_<id>.json. Results are
// not posted anywhere.
type FileDataSource struct {
	path string
}

func NewFileDataSource(dir, auctionID string) *FileDataSource {
	return &FileDataSource{path: filepath.Join(dir, fmt.Sprintf("auction_%s.json", auctionID))}
}

func (s *FileDataSource) GetData(ctx context.Context, public, withCredentials bool) (*model.Tender, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auctionerrors.ErrTenderUnavailable, err)
	}

	var env model.TenderEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return &env.Data, nil
}

func (s *FileDataSource) UpdateSourceObject(ctx context.Context, tender *model.Tender, doc *model.AuctionDocument, p *model.Protocol) (*model.AuctionDocument, bool, error) {
	return nil, true, nil
}

func (s *FileDataSource) UploadAuditDocument(ctx context.Context, p *model.Protocol, docID string) (string, error) {
	return "", nil
}
