package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/websocket"
	"github.com/rs/zerolog"
)

// Notifier shows short user facing messages (toasts)
type Notifier interface {
	Info(message string)
	Error(message string)
}

// AuthState reports whether drive tokens are held
type AuthState interface {
	IsAuthenticated() bool
}

// User facing notices
const (
	noticeNoCloudData   = "No data found in cloud"
	noticeLoadFailed    = "Failed to load loan data"
	noticeSyncFailed    = "Failed to sync loan data"
	noticeSaved         = "Loan saved to cloud"
	noticeSaveFailed    = "Failed to save loan data"
	noticeRenamed       = "File renamed"
	noticeRenameFailed  = "Failed to rename file"
	noticeSignInAgain   = "Session expired, please sign in again"
	noticeInvalidRecord = "Cloud file is not a valid loan record"
)

// SyncControllerConfig holds configuration for a SyncController
type SyncControllerConfig struct {
	FileID    string        // drive file the view is bound to, empty for a new loan
	FolderID  string        // folder new files are created in
	SessionID string        // event routing key
	Debounce  time.Duration // idle time before a background upload
	AutoSync  bool
	Now       func() time.Time
}

// LoanView is a snapshot of a controller for rendering
type LoanView struct {
	FileID        string              `json:"fileId,omitempty"`
	FileName      string              `json:"fileName,omitempty"`
	State         domain.LoanState    `json:"state"`
	SyncStatus    domain.SyncStatus   `json:"syncStatus"`
	AutoSync      bool                `json:"autoSync"`
	UploadPending bool                `json:"uploadPending"`
	Record        *domain.LoanRecord  `json:"record,omitempty"`
	Summary       *domain.LoanSummary `json:"summary,omitempty"`
	EditTerms     *domain.LoanTerms   `json:"editTerms,omitempty"`
	Preview       *domain.LoanRecord  `json:"preview,omitempty"`
}

// SyncController owns the single authoritative in-memory copy of one loan
// record and keeps its drive file up to date in the background.
// Transitions are atomic under mu; network calls never hold it.
type SyncController struct {
	store          domain.BlobStore
	auth           AuthState
	notifier       Notifier
	eventPublisher websocket.EventPublisher
	logger         zerolog.Logger
	now            func() time.Time
	debouncer      *Debouncer
	sessionID      string
	folderID       string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	fileID   string
	fileName string
	record   *domain.LoanRecord
	edit     *domain.LoanEdit
	preview  *domain.LoanRecord
	autoSync bool
	revision uint64
	closed   bool
}

// NewSyncController creates a controller. Call Load for a bound file.
func NewSyncController(
	store domain.BlobStore,
	auth AuthState,
	notifier Notifier,
	logger zerolog.Logger,
	config SyncControllerConfig,
) *SyncController {
	if config.Now == nil {
		config.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &SyncController{
		store:          store,
		auth:           auth,
		notifier:       notifier,
		eventPublisher: &websocket.NoOpPublisher{},
		logger:         logger.With().Str("component", "sync_controller").Str("file_id", config.FileID).Logger(),
		now:            config.Now,
		debouncer:      NewDebouncer(config.Debounce),
		sessionID:      config.SessionID,
		folderID:       config.FolderID,
		ctx:            ctx,
		cancel:         cancel,
		fileID:         config.FileID,
		autoSync:       config.AutoSync,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (c *SyncController) SetEventPublisher(publisher websocket.EventPublisher) {
	c.eventPublisher = publisher
}

func (c *SyncController) publishEvent(event websocket.Event) {
	if c.eventPublisher != nil {
		c.eventPublisher.Publish(c.sessionID, event)
	}
}

// FileID returns the drive file the view is bound to
func (c *SyncController) FileID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileID
}

// View returns a deep snapshot of the controller state
func (c *SyncController) View() LoanView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *SyncController) viewLocked() LoanView {
	v := LoanView{
		FileID:        c.fileID,
		FileName:      c.fileName,
		State:         domain.LoanStateDraft,
		SyncStatus:    domain.SyncStatusSynced,
		AutoSync:      c.autoSync,
		UploadPending: c.debouncer.Pending(),
		Preview:       c.preview.Clone(),
	}
	if c.record != nil {
		v.Record = c.record.Clone()
		v.State = c.record.State()
		v.SyncStatus = c.record.SyncStatus()
		summary := c.record.Summary()
		v.Summary = &summary
	}
	if c.edit != nil {
		terms := c.edit.Terms
		v.EditTerms = &terms
		v.State = domain.LoanStateEditing
	}
	return v
}

// Load fetches the bound file. found is false when the drive has no such
// file, which is reported as a notice and is not an error.
func (c *SyncController) Load(ctx context.Context) (found bool, err error) {
	if !c.auth.IsAuthenticated() {
		return false, domain.ErrNotAuthenticated
	}
	fileID := c.FileID()
	if fileID == "" {
		return false, domain.ErrNotBound
	}

	meta, err := c.store.GetMetadata(ctx, domain.ByID(fileID))
	if errors.Is(err, domain.ErrItemNotFound) {
		c.logger.Info().Msg("No cloud data for loan file")
		c.notifier.Info(noticeNoCloudData)
		return false, nil
	}
	if err != nil {
		c.fail(noticeLoadFailed, err)
		return false, fmt.Errorf("failed to load loan metadata: %w", err)
	}

	content, err := c.store.GetContent(ctx, meta.DownloadURL)
	if err != nil {
		c.fail(noticeLoadFailed, err)
		return false, fmt.Errorf("failed to load loan content: %w", err)
	}

	var record domain.LoanRecord
	if err := json.Unmarshal(content, &record); err != nil {
		c.notifier.Error(noticeInvalidRecord)
		return false, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := record.Repair(); err != nil {
		c.logger.Warn().Err(err).Msg("Rejected loan file")
		c.notifier.Error(noticeInvalidRecord)
		return false, err
	}

	c.mu.Lock()
	c.record = &record
	c.fileName = meta.Name
	c.edit = nil
	c.preview = nil
	c.revision++
	c.mu.Unlock()

	c.logger.Debug().Int("current_period", record.CurrentPeriod).Msg("Loaded loan file")
	c.updateUI()
	return true, nil
}

// MakePayment pays the next period
func (c *SyncController) MakePayment() error {
	return c.mutate(func(r *domain.LoanRecord, now time.Time) error {
		return r.MakePayment(now)
	})
}

// UndoPayment removes the latest payment
func (c *SyncController) UndoPayment() error {
	return c.mutate(func(r *domain.LoanRecord, now time.Time) error {
		return r.UndoPayment(now)
	})
}

func (c *SyncController) mutate(fn func(r *domain.LoanRecord, now time.Time) error) error {
	c.mu.Lock()
	if c.record == nil {
		c.mu.Unlock()
		return domain.ErrNoRecord
	}
	if c.edit != nil {
		c.mu.Unlock()
		return domain.ErrEditInProcess
	}
	if err := fn(c.record, c.now()); err != nil {
		c.mu.Unlock()
		return err
	}
	c.revision++
	c.mu.Unlock()

	c.updateUI()
	return nil
}

// Calculate computes a plan for terms. While editing it becomes the preview
// for CommitEdit; on an unbound view it becomes the new draft record.
func (c *SyncController) Calculate(terms domain.LoanTerms) (*domain.LoanRecord, error) {
	computed, err := ComputeSchedule(terms)
	if err != nil {
		return nil, err
	}
	computed.LastModifiedAt = domain.Millis(c.now())

	c.mu.Lock()
	switch {
	case c.edit != nil:
		c.edit.Terms = computed.Terms()
		c.preview = computed
	case c.fileID == "":
		c.record = computed
		c.revision++
	default:
		c.mu.Unlock()
		return nil, domain.ErrRecordBound
	}
	c.mu.Unlock()

	c.updateUI()
	return computed.Clone(), nil
}

// BeginEdit puts the record aside and returns the seeded terms form
func (c *SyncController) BeginEdit() (domain.LoanTerms, error) {
	c.mu.Lock()
	if c.record == nil {
		c.mu.Unlock()
		return domain.LoanTerms{}, domain.ErrNoRecord
	}
	if c.edit != nil {
		c.mu.Unlock()
		return domain.LoanTerms{}, domain.ErrEditInProcess
	}
	edit, err := domain.BeginEdit(c.record)
	if err != nil {
		c.mu.Unlock()
		return domain.LoanTerms{}, err
	}
	c.edit = edit
	c.preview = nil
	c.mu.Unlock()

	c.updateUI()
	return edit.Terms, nil
}

// CancelEdit restores the pre-edit record exactly
func (c *SyncController) CancelEdit() error {
	c.mu.Lock()
	if c.edit == nil {
		c.mu.Unlock()
		return domain.ErrNotEditing
	}
	c.record = c.edit.Cancel()
	c.edit = nil
	c.preview = nil
	c.revision++
	c.mu.Unlock()

	c.updateUI()
	return nil
}

// CommitEdit replaces the record with the plan for the edited terms. The
// result is an unbound Draft linked to the previous file; Save stores it.
func (c *SyncController) CommitEdit() error {
	c.mu.Lock()
	if c.edit == nil {
		c.mu.Unlock()
		return domain.ErrNotEditing
	}
	next := c.preview
	if next == nil {
		computed, err := ComputeSchedule(c.edit.Terms)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		computed.LastModifiedAt = domain.Millis(c.now())
		next = computed
	}
	c.record = c.edit.Commit(next, c.fileID)
	c.edit = nil
	c.preview = nil
	c.fileID = ""
	c.fileName = ""
	c.revision++
	c.mu.Unlock()

	c.updateUI()
	return nil
}

// Save stores a draft as a new file in the folder and binds the view to it.
// A bound record is uploaded in place.
func (c *SyncController) Save(ctx context.Context, fileName string) error {
	if !c.auth.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}

	c.mu.Lock()
	if c.record == nil {
		c.mu.Unlock()
		return domain.ErrNoRecord
	}
	if c.edit != nil {
		c.mu.Unlock()
		return domain.ErrEditInProcess
	}
	bound := c.fileID != ""
	c.mu.Unlock()

	if bound {
		c.debouncer.Cancel()
		return c.upload(ctx)
	}
	if c.folderID == "" {
		return domain.ErrNotBound
	}

	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = NewFileName(c.now())
	}
	if err := ValidateFileName(fileName); err != nil {
		return err
	}

	c.mu.Lock()
	stamp := domain.Millis(c.now())
	if stamp < c.record.LastModifiedAt {
		stamp = c.record.LastModifiedAt
	}
	rev := c.revision
	payload := c.record.Clone()
	c.mu.Unlock()
	payload.LastSyncedAt = stamp
	if payload.LastModifiedAt == 0 {
		payload.LastModifiedAt = stamp
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode loan record: %w", err)
	}
	meta, err := c.store.PutContent(ctx, domain.ByPath(c.folderID, fileName), body)
	if err != nil {
		c.fail(noticeSaveFailed, err)
		return fmt.Errorf("failed to save loan file: %w", err)
	}

	c.mu.Lock()
	c.fileID = meta.ID
	c.fileName = meta.Name
	if c.fileName == "" {
		c.fileName = fileName
	}
	if c.revision == rev {
		c.record.LastModifiedAt = payload.LastModifiedAt
		c.record.LastSyncedAt = stamp
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.logger.Info().Str("saved_file_id", meta.ID).Str("name", view.FileName).Msg("Saved loan file")
	c.notifier.Info(noticeSaved)
	c.publishEvent(websocket.LoanSynced(view.FileID, view))
	c.updateUI()
	return nil
}

// SaveEdit commits the edit and saves the resulting draft as a new file.
// If the save fails the edit is put back as it was, so it can be retried
// or cancelled.
func (c *SyncController) SaveEdit(ctx context.Context, fileName string) error {
	if name := strings.TrimSpace(fileName); name != "" {
		if err := ValidateFileName(name); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.edit == nil {
		c.mu.Unlock()
		return domain.ErrNotEditing
	}
	record, edit, preview := c.record, c.edit, c.preview
	fileID, name := c.fileID, c.fileName
	c.mu.Unlock()

	if err := c.CommitEdit(); err != nil {
		return err
	}
	err := c.Save(ctx, fileName)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	c.record = record
	c.edit = edit
	c.preview = preview
	c.fileID = fileID
	c.fileName = name
	c.revision++
	c.mu.Unlock()

	c.logger.Debug().Err(err).Msg("Save failed, edit restored")
	c.updateUI()
	return err
}

// Rename renames the bound file
func (c *SyncController) Rename(ctx context.Context, newName string) error {
	newName = strings.TrimSpace(newName)
	if err := ValidateFileName(newName); err != nil {
		return err
	}
	fileID := c.FileID()
	if fileID == "" {
		return domain.ErrNotBound
	}

	ok, err := c.store.Rename(ctx, fileID, newName)
	if err != nil {
		c.fail(noticeRenameFailed, err)
		return fmt.Errorf("failed to rename loan file: %w", err)
	}
	if !ok {
		c.notifier.Error(noticeRenameFailed)
		return domain.ErrRenameFailed
	}

	c.mu.Lock()
	c.fileName = newName
	view := c.viewLocked()
	c.mu.Unlock()

	c.notifier.Info(noticeRenamed)
	c.publishEvent(websocket.LoanUpdated(view.FileID, view))
	return nil
}

// SetAutoSync turns background upload on or off
func (c *SyncController) SetAutoSync(enabled bool) {
	c.mu.Lock()
	c.autoSync = enabled
	c.mu.Unlock()

	if !enabled {
		c.debouncer.Cancel()
	}
	c.updateUI()
}

// Flush uploads local changes now instead of waiting for the debounce.
// It works with auto-sync off as well.
func (c *SyncController) Flush(ctx context.Context) error {
	c.debouncer.Cancel()
	if !c.canUpload(false) {
		return nil
	}
	return c.upload(ctx)
}

// Close cancels the pending upload and any upload in flight
func (c *SyncController) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if c.debouncer.Cancel() {
		c.logger.Debug().Msg("Dropped pending upload on close")
	}
	c.cancel()
}

// updateUI publishes the new state and schedules a debounced upload when
// the record has local changes worth sending
func (c *SyncController) updateUI() {
	view := c.View()
	c.publishEvent(websocket.LoanUpdated(view.FileID, view))

	if !c.canUpload(true) {
		return
	}
	c.debouncer.Trigger(func() {
		if err := c.upload(c.ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Background upload failed")
		}
	})
}

func (c *SyncController) canUpload(background bool) bool {
	if !c.auth.IsAuthenticated() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed &&
		c.fileID != "" &&
		c.edit == nil &&
		c.record != nil &&
		c.record.IsDirty() &&
		(c.autoSync || !background)
}

// upload writes the whole record to the bound file. The synced stamp is taken
// before the request; afterwards it is applied only if no mutation happened
// while the request was in flight.
func (c *SyncController) upload(ctx context.Context) error {
	c.mu.Lock()
	if c.record == nil || c.fileID == "" {
		c.mu.Unlock()
		return nil
	}
	stamp := domain.Millis(c.now())
	if stamp < c.record.LastModifiedAt {
		stamp = c.record.LastModifiedAt
	}
	rev := c.revision
	fileID := c.fileID
	payload := c.record.Clone()
	c.mu.Unlock()
	payload.LastSyncedAt = stamp

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode loan record: %w", err)
	}

	if _, err := c.store.PutContent(ctx, domain.ByID(fileID), body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.fail(noticeSyncFailed, err)
		c.publishEvent(websocket.LoanSyncFailed(fileID, map[string]string{"fileId": fileID}))
		return fmt.Errorf("failed to upload loan file: %w", err)
	}

	c.mu.Lock()
	applied := c.record != nil &&
		c.fileID == fileID &&
		c.revision == rev &&
		c.record.LastSyncedAt < stamp
	if applied {
		c.record.LastSyncedAt = stamp
	}
	view := c.viewLocked()
	c.mu.Unlock()

	if !applied {
		c.logger.Debug().Msg("Record changed during upload, keeping it pending")
		return nil
	}
	c.logger.Debug().Int64("last_synced_at", stamp).Msg("Uploaded loan file")
	c.publishEvent(websocket.LoanSynced(view.FileID, view))
	return nil
}

// fail reports err to the user without exposing transport details
func (c *SyncController) fail(notice string, err error) {
	c.logger.Error().Err(err).Msg(notice)
	if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrNoAccessToken) {
		c.notifier.Error(noticeSignInAgain)
		return
	}
	c.notifier.Error(notice)
}
