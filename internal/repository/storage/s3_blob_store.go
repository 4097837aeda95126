package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	cfg "github.com/dafibh/loansync/internal/config"
	"github.com/dafibh/loansync/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// nameMetaKey holds the display name of a loan file; keys are stable uuids
	nameMetaKey = "name"
	// cursorScheme prefixes the opaque listing cursors
	cursorScheme  = "s3list:"
	presignExpiry = 15 * time.Minute
)

// S3BlobStore implements domain.BlobStore on an S3 bucket. Folders are key
// prefixes with a marker object; files live under <folder>/<uuid>.json and
// carry their display name as object metadata, so a rename keeps the id.
type S3BlobStore struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	httpClient *http.Client
	bucket     string
	logger     zerolog.Logger
}

// NewS3BlobStore creates a new S3 blob store
func NewS3BlobStore(ctx context.Context, s3cfg cfg.S3Config, logger zerolog.Logger) (*S3BlobStore, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(s3cfg.Region),
	}

	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				s3cfg.AccessKeyID,
				s3cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Optional endpoint override for MinIO/LocalStack
	var client *s3.Client
	if s3cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	store := &S3BlobStore{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		bucket:     s3cfg.Bucket,
		logger:     logger.With().Str("component", "s3_blob_store").Logger(),
	}

	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

var _ domain.BlobStore = (*S3BlobStore)(nil)

// ensureBucket creates the bucket if it doesn't exist (private, no policy)
func (s *S3BlobStore) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket (may be permission denied): %w", err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	s.logger.Info().Str("bucket", s.bucket).Msg("Created bucket")
	return nil
}

// ListChildren returns every file and sub-folder directly under folderID
func (s *S3BlobStore) ListChildren(ctx context.Context, folderID string) ([]domain.DriveItem, error) {
	var items []domain.DriveItem
	next := s.FirstPageURL(folderID, 1000)
	for next != "" {
		page, err := s.ListPage(ctx, next)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		next = page.NextPageURL
	}
	return items, nil
}

// CreateFolder writes the folder marker. Existing folders are returned as is.
func (s *S3BlobStore) CreateFolder(ctx context.Context, name string) (string, error) {
	folderID := strings.Trim(name, "/")
	if folderID == "" {
		return "", fmt.Errorf("%w: folder name is required", domain.ErrInvalidInput)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(folderID + "/"),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	return folderID, nil
}

// GetMetadata heads the object and presigns a download url for it
func (s *S3BlobStore) GetMetadata(ctx context.Context, ref domain.ItemRef) (*domain.DriveMetadata, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	key := ref.ID
	if key == "" {
		found, err := s.findByName(ctx, ref.FolderID, ref.Name)
		if err != nil {
			return nil, err
		}
		key = found
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}

	presigned, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return &domain.DriveMetadata{
		ID:          key,
		Name:        displayName(key, head.Metadata),
		DownloadURL: presigned.URL,
		ModifiedAt:  aws.ToTime(head.LastModified),
	}, nil
}

// GetContent downloads a presigned url
func (s *S3BlobStore) GetContent(ctx context.Context, downloadURL string) ([]byte, error) {
	if downloadURL == "" {
		return nil, fmt.Errorf("%w: download url is required", domain.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, domain.ErrItemNotFound
	case res.StatusCode >= 300:
		return nil, &domain.RemoteError{StatusCode: res.StatusCode}
	}
	content, err := io.ReadAll(io.LimitReader(res.Body, domain.MaxContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object content: %w", err)
	}
	if len(content) > domain.MaxContentSize {
		return nil, domain.ErrContentTooLarge
	}
	return content, nil
}

// PutContent replaces the object by id, or creates a new one under the
// folder when addressed by path
func (s *S3BlobStore) PutContent(ctx context.Context, ref domain.ItemRef, content []byte) (*domain.DriveMetadata, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	key := ref.ID
	name := ref.Name
	if key == "" {
		found, err := s.findByName(ctx, ref.FolderID, ref.Name)
		switch {
		case err == nil:
			key = found
		case errors.Is(err, domain.ErrItemNotFound):
			key = NewObjectKey(ref.FolderID)
		default:
			return nil, err
		}
	} else {
		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, mapS3Error(err)
		}
		name = displayName(key, head.Metadata)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(content))),
		Metadata:      map[string]string{nameMetaKey: name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	return &domain.DriveMetadata{ID: key, Name: name, ModifiedAt: time.Now().UTC()}, nil
}

// Rename rewrites the name metadata in place with a self copy
func (s *S3BlobStore) Rename(ctx context.Context, id string, newName string) (bool, error) {
	if id == "" {
		return false, domain.ErrItemRefInvalid
	}

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(id),
		CopySource:        aws.String(url.PathEscape(s.bucket + "/" + id)),
		ContentType:       aws.String("application/json"),
		Metadata:          map[string]string{nameMetaKey: newName},
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("key", id).Msg("Rename rejected")
		return false, nil
	}
	return true, nil
}

// FirstPageURL encodes the first listing cursor for folderID
func (s *S3BlobStore) FirstPageURL(folderID string, pageSize int) string {
	return encodeCursor(listCursor{Prefix: folderPrefix(folderID), PageSize: pageSize})
}

// ListPage lists one page of a folder. Names come from object metadata.
func (s *S3BlobStore) ListPage(ctx context.Context, pageURL string) (*domain.DrivePage, error) {
	if pageURL == "" {
		return nil, domain.ErrPageURLRequired
	}
	cursor, err := decodeCursor(pageURL)
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(cursor.Prefix),
		Delimiter: aws.String("/"),
	}
	if cursor.PageSize > 0 {
		input.MaxKeys = aws.Int32(int32(cursor.PageSize))
	}
	if cursor.Token != "" {
		input.ContinuationToken = aws.String(cursor.Token)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, mapS3Error(err)
	}

	page := &domain.DrivePage{Items: make([]domain.DriveItem, 0, len(out.Contents)+len(out.CommonPrefixes))}
	for _, prefix := range out.CommonPrefixes {
		id := strings.TrimSuffix(aws.ToString(prefix.Prefix), "/")
		page.Items = append(page.Items, domain.DriveItem{ID: id, Name: path.Base(id), IsFolder: true})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == cursor.Prefix {
			continue // folder marker
		}
		name := path.Base(key)
		if head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: obj.Key}); err == nil {
			name = displayName(key, head.Metadata)
		}
		page.Items = append(page.Items, domain.DriveItem{
			ID:         key,
			Name:       name,
			Size:       aws.ToInt64(obj.Size),
			ModifiedAt: aws.ToTime(obj.LastModified),
		})
	}

	if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
		cursor.Token = aws.ToString(out.NextContinuationToken)
		page.NextPageURL = encodeCursor(cursor)
	}
	return page, nil
}

func (s *S3BlobStore) findByName(ctx context.Context, folderID, name string) (string, error) {
	items, err := s.ListChildren(ctx, folderID)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if !item.IsFolder && item.Name == name {
			return item.ID, nil
		}
	}
	return "", domain.ErrItemNotFound
}

// NewObjectKey returns a fresh object key under folderID
func NewObjectKey(folderID string) string {
	return folderPrefix(folderID) + uuid.New().String() + ".json"
}

func folderPrefix(folderID string) string {
	folderID = strings.Trim(folderID, "/")
	if folderID == "" {
		return ""
	}
	return folderID + "/"
}

func displayName(key string, metadata map[string]string) string {
	if name := metadata[nameMetaKey]; name != "" {
		return name
	}
	return path.Base(key)
}

type listCursor struct {
	Prefix   string
	PageSize int
	Token    string
}

func encodeCursor(c listCursor) string {
	v := url.Values{}
	v.Set("prefix", c.Prefix)
	if c.PageSize > 0 {
		v.Set("top", strconv.Itoa(c.PageSize))
	}
	if c.Token != "" {
		v.Set("token", c.Token)
	}
	return cursorScheme + v.Encode()
}

func decodeCursor(raw string) (listCursor, error) {
	if !strings.HasPrefix(raw, cursorScheme) {
		return listCursor{}, fmt.Errorf("%w: unrecognized page cursor", domain.ErrInvalidInput)
	}
	v, err := url.ParseQuery(strings.TrimPrefix(raw, cursorScheme))
	if err != nil {
		return listCursor{}, fmt.Errorf("%w: malformed page cursor", domain.ErrInvalidInput)
	}
	c := listCursor{Prefix: v.Get("prefix"), Token: v.Get("token")}
	if top := v.Get("top"); top != "" {
		if c.PageSize, err = strconv.Atoi(top); err != nil {
			return listCursor{}, fmt.Errorf("%w: malformed page size", domain.ErrInvalidInput)
		}
	}
	return c, nil
}

func mapS3Error(err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %v", domain.ErrItemNotFound, err)
	}
	return fmt.Errorf("s3 request failed: %w", err)
}
