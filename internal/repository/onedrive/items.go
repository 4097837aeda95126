package onedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dafibh/loansync/internal/domain"
)

const codeNameAlreadyExists = "nameAlreadyExists"

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type driveItem struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	Folder               *folderFacet `json:"folder,omitempty"`
	LastModifiedDateTime time.Time    `json:"lastModifiedDateTime"`
	DownloadURL          string       `json:"@microsoft.graph.downloadUrl,omitempty"`
}

type childrenResponse struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink,omitempty"`
}

func (i driveItem) toDomain() domain.DriveItem {
	return domain.DriveItem{
		ID:         i.ID,
		Name:       i.Name,
		IsFolder:   i.Folder != nil,
		Size:       i.Size,
		ModifiedAt: i.LastModifiedDateTime,
	}
}

func (i driveItem) toMetadata() *domain.DriveMetadata {
	return &domain.DriveMetadata{
		ID:          i.ID,
		Name:        i.Name,
		DownloadURL: i.DownloadURL,
		ModifiedAt:  i.LastModifiedDateTime,
	}
}

func (c *Client) itemURL(id string) string {
	return c.baseURL + "/me/drive/items/" + url.PathEscape(id)
}

func (c *Client) childrenURL(folderID string) string {
	if folderID == "" {
		return c.baseURL + "/me/drive/root/children"
	}
	return c.itemURL(folderID) + "/children"
}

func (c *Client) refURL(ref domain.ItemRef) string {
	if ref.ID != "" {
		return c.itemURL(ref.ID)
	}
	return c.itemURL(ref.FolderID) + ":/" + url.PathEscape(ref.Name) + ":"
}

// ListChildren returns every child of folderID, following continuation links.
// An empty folderID lists the drive root.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]domain.DriveItem, error) {
	var items []domain.DriveItem
	next := c.childrenURL(folderID)
	for next != "" {
		page, err := c.ListPage(ctx, next)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		next = page.NextPageURL
	}
	return items, nil
}

// CreateFolder creates a folder under the drive root and returns its id.
// When the name is taken the existing folder's id is returned.
func (c *Client) CreateFolder(ctx context.Context, name string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"name":                              name,
		"folder":                            map[string]interface{}{},
		"@microsoft.graph.conflictBehavior": "fail",
	})
	if err != nil {
		return "", err
	}

	var created driveItem
	err = c.doJSON(ctx, request{
		method:      http.MethodPost,
		url:         c.childrenURL(""),
		body:        body,
		contentType: "application/json",
	}, &created)
	if err == nil {
		c.logger.Info().Str("folder_id", created.ID).Str("name", name).Msg("Created drive folder")
		return created.ID, nil
	}
	if !IsRemoteCode(err, codeNameAlreadyExists) {
		return "", err
	}

	children, err := c.ListChildren(ctx, "")
	if err != nil {
		return "", err
	}
	for _, child := range children {
		if child.IsFolder && child.Name == name {
			return child.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrFolderNotFound, name)
}

// GetMetadata fetches item metadata including its download url
func (c *Client) GetMetadata(ctx context.Context, ref domain.ItemRef) (*domain.DriveMetadata, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var item driveItem
	if err := c.doJSON(ctx, request{method: http.MethodGet, url: c.refURL(ref)}, &item); err != nil {
		return nil, err
	}
	return item.toMetadata(), nil
}

// GetContent downloads file content from a pre-authenticated download url
func (c *Client) GetContent(ctx context.Context, downloadURL string) ([]byte, error) {
	if downloadURL == "" {
		return nil, fmt.Errorf("%w: download url is required", domain.ErrInvalidInput)
	}

	res, err := c.send(ctx, request{method: http.MethodGet, url: downloadURL}, "")
	if err != nil {
		return nil, err
	}
	defer discard(res)

	if err := checkResponse(res); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(io.LimitReader(res.Body, domain.MaxContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read drive content: %w", err)
	}
	if len(content) > domain.MaxContentSize {
		return nil, domain.ErrContentTooLarge
	}
	return content, nil
}

// PutContent uploads JSON content, replacing the item by id or creating it by path
func (c *Client) PutContent(ctx context.Context, ref domain.ItemRef, content []byte) (*domain.DriveMetadata, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var item driveItem
	err := c.doJSON(ctx, request{
		method:      http.MethodPut,
		url:         c.refURL(ref) + "/content",
		body:        content,
		contentType: "application/json",
	}, &item)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("item_id", item.ID).Int("bytes", len(content)).Msg("Uploaded drive content")
	return item.toMetadata(), nil
}

// Rename changes an item's name. A rejected rename reports false without error;
// auth failures and transport errors are returned.
func (c *Client) Rename(ctx context.Context, id string, newName string) (bool, error) {
	if id == "" {
		return false, domain.ErrItemRefInvalid
	}
	body, err := json.Marshal(map[string]string{"name": newName})
	if err != nil {
		return false, err
	}

	res, err := c.do(ctx, request{
		method:      http.MethodPatch,
		url:         c.itemURL(id),
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return false, err
	}
	defer discard(res)

	if err := checkResponse(res); err != nil {
		if res.StatusCode == http.StatusUnauthorized {
			return false, err
		}
		c.logger.Warn().Err(err).Str("item_id", id).Msg("Drive rename rejected")
		return false, nil
	}
	return true, nil
}

// FirstPageURL builds the url of the first listing page of folderID
func (c *Client) FirstPageURL(folderID string, pageSize int) string {
	return c.childrenURL(folderID) + "?$top=" + strconv.Itoa(pageSize)
}

// ListPage fetches one listing page; NextPageURL is empty on the last page
func (c *Client) ListPage(ctx context.Context, pageURL string) (*domain.DrivePage, error) {
	if pageURL == "" {
		return nil, domain.ErrPageURLRequired
	}
	// the bearer token must never leave the API host
	if !strings.HasPrefix(pageURL, c.baseURL+"/") {
		return nil, fmt.Errorf("%w: page url outside the drive api", domain.ErrInvalidInput)
	}

	var data childrenResponse
	if err := c.doJSON(ctx, request{method: http.MethodGet, url: pageURL}, &data); err != nil {
		return nil, err
	}

	page := &domain.DrivePage{
		Items:       make([]domain.DriveItem, 0, len(data.Value)),
		NextPageURL: data.NextLink,
	}
	for _, item := range data.Value {
		page.Items = append(page.Items, item.toDomain())
	}
	return page, nil
}
