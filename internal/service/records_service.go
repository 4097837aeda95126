package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// DefaultFolderName is the drive folder holding loan files
	DefaultFolderName = "loan_records"
	// DefaultPageSize is the number of files per listing page
	DefaultPageSize = 20

	fileNamePrefix = "loan_calculator_data_"
	fileNameLayout = "20060102150405"
)

// RecordPage is one page of loan files
type RecordPage struct {
	Items      []domain.DriveItem `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

// RecordsService browses the loan files in the drive folder
type RecordsService struct {
	store      domain.BlobStore
	folderName string
	pageSize   int
	logger     zerolog.Logger
}

// NewRecordsService creates a new RecordsService
func NewRecordsService(store domain.BlobStore, folderName string, pageSize int, logger zerolog.Logger) *RecordsService {
	if folderName == "" {
		folderName = DefaultFolderName
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &RecordsService{
		store:      store,
		folderName: folderName,
		pageSize:   pageSize,
		logger:     logger.With().Str("component", "records_service").Logger(),
	}
}

// EnsureFolder returns the id of the loan folder, creating it on first use
func (s *RecordsService) EnsureFolder(ctx context.Context) (string, error) {
	id, err := s.store.CreateFolder(ctx, s.folderName)
	if err != nil {
		return "", fmt.Errorf("failed to ensure folder %q: %w", s.folderName, err)
	}
	return id, nil
}

// ListRecords returns one page of loan files. An empty cursor starts at the
// first page; sub-folders are skipped.
func (s *RecordsService) ListRecords(ctx context.Context, folderID, cursor string) (*RecordPage, error) {
	pageURL := cursor
	if pageURL == "" {
		pageURL = s.store.FirstPageURL(folderID, s.pageSize)
	}

	page, err := s.store.ListPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	result := &RecordPage{
		Items:      make([]domain.DriveItem, 0, len(page.Items)),
		NextCursor: page.NextPageURL,
	}
	for _, item := range page.Items {
		if item.IsFolder {
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// PreviousRecord looks up the file a record was edited from
func (s *RecordsService) PreviousRecord(ctx context.Context, record *domain.LoanRecord) (*domain.DriveMetadata, error) {
	if record == nil || record.PrevFileID == "" {
		return nil, domain.ErrItemNotFound
	}
	return s.store.GetMetadata(ctx, domain.ByID(record.PrevFileID))
}

// NewFileName names a new loan file after its creation time
func NewFileName(now time.Time) string {
	return fileNamePrefix + now.Format(fileNameLayout) + ".json"
}

// ValidateFileName checks a user supplied file name
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.ErrNameRequired
	}
	if len(name) > domain.MaxFileNameLength {
		return domain.ErrNameTooLong
	}
	if strings.ContainsAny(name, `/\:*?"<>|`) {
		return fmt.Errorf("%w: file name contains reserved characters", domain.ErrInvalidInput)
	}
	return nil
}
