package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrItemNotFound    = errors.New("drive item not found")
	ErrUnauthorized    = errors.New("drive request unauthorized")
	ErrNoAccessToken   = errors.New("no access token")
	ErrNoRefreshToken  = errors.New("no refresh token")
	ErrItemRefInvalid  = errors.New("item reference needs an id or a folder and name")
	ErrFolderNotFound  = errors.New("folder not found")
	ErrPageURLRequired = errors.New("page url is required")
	ErrContentTooLarge = errors.New("drive file is too large for a loan record")
)

// MaxContentSize caps a downloaded loan file. A 600 period plan with full
// history is well under 1 MiB.
const MaxContentSize = 4 << 20

// RemoteError is a non-success response from the drive API
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("drive request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("drive request failed with status %d", e.StatusCode)
}

// DriveItem is one child of a drive folder
type DriveItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	IsFolder   bool      `json:"isFolder"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// DriveMetadata describes a stored file
type DriveMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DownloadURL string    `json:"-"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// DrivePage is one page of a cursor based listing
type DrivePage struct {
	Items       []DriveItem `json:"items"`
	NextPageURL string      `json:"nextPageUrl,omitempty"`
}

// ItemRef addresses a drive item either by id or by folder and name
type ItemRef struct {
	ID       string
	FolderID string
	Name     string
}

// ByID references an item by its drive id
func ByID(id string) ItemRef {
	return ItemRef{ID: id}
}

// ByPath references an item by its parent folder and file name
func ByPath(folderID, name string) ItemRef {
	return ItemRef{FolderID: folderID, Name: name}
}

// Validate checks that the reference can address an item
func (r ItemRef) Validate() error {
	if r.ID != "" {
		return nil
	}
	if r.FolderID == "" || r.Name == "" {
		return ErrItemRefInvalid
	}
	return nil
}

// BlobStore is an authenticated cloud file store holding one JSON blob per
// loan record. It caches metadata only, never file content.
type BlobStore interface {
	ListChildren(ctx context.Context, folderID string) ([]DriveItem, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	GetMetadata(ctx context.Context, ref ItemRef) (*DriveMetadata, error)
	GetContent(ctx context.Context, downloadURL string) ([]byte, error)
	PutContent(ctx context.Context, ref ItemRef, content []byte) (*DriveMetadata, error)
	Rename(ctx context.Context, id string, newName string) (bool, error)
	FirstPageURL(folderID string, pageSize int) string
	ListPage(ctx context.Context, pageURL string) (*DrivePage, error)
}
