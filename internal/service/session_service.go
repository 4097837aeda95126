package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dafibh/loansync/internal/auth"
	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BlobStoreFactory builds the drive client for one login. onAuthFailed must
// be called when the drive rejects the session for good.
type BlobStoreFactory func(tokens domain.TokenProvider, onAuthFailed func()) domain.BlobStore

// Disconnector drops the push connections of a session
type Disconnector interface {
	Disconnect(sessionID string)
}

// SessionManagerConfig holds configuration for a SessionManager
type SessionManagerConfig struct {
	TTL        time.Duration // lifetime of stored tokens
	FolderName string
	PageSize   int
	Debounce   time.Duration
	AutoSync   bool
	Now        func() time.Time
}

// SessionManager owns the live state of every signed in browser session.
// Tokens live in the SessionStore; everything else is rebuilt on demand.
type SessionManager struct {
	store          domain.SessionStore
	newBlobStore   BlobStoreFactory
	eventPublisher websocket.EventPublisher
	disconnector   Disconnector
	logger         zerolog.Logger
	config         SessionManagerConfig

	mu       sync.Mutex
	sessions map[string]*LoginSession
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(
	store domain.SessionStore,
	newBlobStore BlobStoreFactory,
	logger zerolog.Logger,
	config SessionManagerConfig,
) *SessionManager {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	return &SessionManager{
		store:          store,
		newBlobStore:   newBlobStore,
		eventPublisher: &websocket.NoOpPublisher{},
		logger:         logger.With().Str("component", "session_manager").Logger(),
		config:         config,
		sessions:       make(map[string]*LoginSession),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (m *SessionManager) SetEventPublisher(publisher websocket.EventPublisher) {
	m.eventPublisher = publisher
}

// SetDisconnector sets what drops push connections of an expired session
func (m *SessionManager) SetDisconnector(d Disconnector) {
	m.disconnector = d
}

// Create stores tokens under a new session id
func (m *SessionManager) Create(ctx context.Context, tokens domain.Tokens) (*LoginSession, error) {
	return m.Put(ctx, uuid.NewString(), tokens)
}

// Put stores tokens under id, replacing any live session with that id
func (m *SessionManager) Put(ctx context.Context, id string, tokens domain.Tokens) (*LoginSession, error) {
	if tokens.AccessToken == "" {
		return nil, domain.ErrNoAccessToken
	}
	if err := m.store.Save(ctx, id, tokens, m.config.TTL); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	m.mu.Lock()
	old := m.sessions[id]
	s := m.newLoginSession(id, tokens)
	m.sessions[id] = s
	m.mu.Unlock()

	if old != nil {
		old.shutdown(ctx, false)
	}
	m.logger.Info().Str("session_id", id).Msg("Session created")
	return s, nil
}

// Get returns the live session for id, restoring it from the store when
// this process has not seen it yet
func (m *SessionManager) Get(ctx context.Context, id string) (*LoginSession, error) {
	if id == "" {
		return nil, domain.ErrSessionNotFound
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		s.touch()
		return s, nil
	}

	tokens, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.touch()
		return s, nil
	}
	s = m.newLoginSession(id, tokens)
	m.sessions[id] = s
	return s, nil
}

// Delete signs the session out. Pending uploads are flushed first.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if s != nil {
		s.shutdown(ctx, true)
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if m.disconnector != nil {
		m.disconnector.Disconnect(id)
	}
	m.logger.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// Expire drops a session the drive no longer accepts. The user has to sign
// in again.
func (m *SessionManager) Expire(id string) {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if s != nil {
		s.auth.Clear()
		s.shutdown(context.Background(), false)
	}
	if err := m.store.Delete(context.Background(), id); err != nil {
		m.logger.Error().Err(err).Str("session_id", id).Msg("Failed to delete expired session")
	}

	m.logger.Warn().Str("session_id", id).Msg("Session expired")
	m.eventPublisher.Publish(id, websocket.SessionExpired())
	if m.disconnector != nil {
		m.disconnector.Disconnect(id)
	}
}

// SweepIdle unloads sessions not used since idleSince. Their tokens stay
// in the store. Returns the number unloaded.
func (m *SessionManager) SweepIdle(ctx context.Context, idleSince time.Time) int {
	m.mu.Lock()
	var idle []*LoginSession
	for id, s := range m.sessions {
		if s.LastSeen().Before(idleSince) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.shutdown(ctx, true)
	}
	return len(idle)
}

// Count returns the number of live sessions
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close flushes and closes every live session
func (m *SessionManager) Close(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*LoginSession, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.shutdown(ctx, true)
	}
}

func (m *SessionManager) newLoginSession(id string, tokens domain.Tokens) *LoginSession {
	logger := m.logger.With().Str("session_id", id).Logger()

	persist := func(t domain.Tokens) {
		if t.AccessToken == "" {
			return
		}
		if err := m.store.Save(context.Background(), id, t, m.config.TTL); err != nil {
			logger.Error().Err(err).Msg("Failed to persist refreshed tokens")
		}
	}
	tokenSession := auth.NewSession(tokens, persist)
	blobStore := m.newBlobStore(tokenSession, func() { m.Expire(id) })

	s := &LoginSession{
		id:        id,
		auth:      tokenSession,
		store:     blobStore,
		records:   NewRecordsService(blobStore, m.config.FolderName, m.config.PageSize, logger),
		notifier:  websocket.NewNotifier(m.eventPublisher, id),
		publisher: m.eventPublisher,
		logger:    logger,
		config:    m.config,
		views:     make(map[string]*SyncController),
	}
	s.touch()
	return s
}

// LoginSession is one signed in user: its tokens, drive client, loan folder
// and the loan views it has open. Views are keyed by file id, or by a
// generated key while unsaved.
type LoginSession struct {
	id        string
	auth      *auth.Session
	store     domain.BlobStore
	records   *RecordsService
	notifier  Notifier
	publisher websocket.EventPublisher
	logger    zerolog.Logger
	config    SessionManagerConfig

	folderMu sync.Mutex
	folderID string

	mu       sync.Mutex
	views    map[string]*SyncController
	lastSeen time.Time
	closed   bool
}

// ID returns the session id
func (s *LoginSession) ID() string {
	return s.id
}

// Auth returns the token context of the session
func (s *LoginSession) Auth() *auth.Session {
	return s.auth
}

// Records returns the records browser bound to the session's drive
func (s *LoginSession) Records() *RecordsService {
	return s.records
}

// LastSeen returns when the session was last used
func (s *LoginSession) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *LoginSession) touch() {
	s.mu.Lock()
	s.lastSeen = s.config.Now()
	s.mu.Unlock()
}

// Folder returns the loan folder id, creating the folder on first use
func (s *LoginSession) Folder(ctx context.Context) (string, error) {
	s.folderMu.Lock()
	defer s.folderMu.Unlock()

	if s.folderID != "" {
		return s.folderID, nil
	}
	id, err := s.records.EnsureFolder(ctx)
	if err != nil {
		return "", err
	}
	s.folderID = id
	return id, nil
}

// ListRecords lists the loan files in the session's folder
func (s *LoginSession) ListRecords(ctx context.Context, cursor string) (*RecordPage, error) {
	folderID, err := s.Folder(ctx)
	if err != nil {
		return nil, err
	}
	return s.records.ListRecords(ctx, folderID, cursor)
}

// Open returns the view of fileID, loading it from the drive when it is not
// open yet. A missing file yields domain.ErrItemNotFound.
func (s *LoginSession) Open(ctx context.Context, fileID string) (*SyncController, error) {
	if fileID == "" {
		return nil, domain.ErrNotBound
	}
	if c, err := s.View(fileID); err == nil {
		return c, nil
	}

	folderID, err := s.Folder(ctx)
	if err != nil {
		return nil, err
	}

	c := s.newController(fileID, folderID)
	found, err := c.Load(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if !found {
		c.Close()
		return nil, domain.ErrItemNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		c.Close()
		return nil, domain.ErrSessionNotFound
	}
	if existing, ok := s.views[fileID]; ok {
		c.Close()
		return existing, nil
	}
	s.views[fileID] = c
	return c, nil
}

// Create opens an unsaved loan view and returns its key
func (s *LoginSession) Create(ctx context.Context) (string, *SyncController, error) {
	folderID, err := s.Folder(ctx)
	if err != nil {
		return "", nil, err
	}
	key := "draft-" + uuid.NewString()
	c := s.newController("", folderID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		c.Close()
		return "", nil, domain.ErrSessionNotFound
	}
	s.views[key] = c
	return key, c, nil
}

// View returns an open view
func (s *LoginSession) View(key string) (*SyncController, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.config.Now()

	c, ok := s.views[key]
	if !ok {
		return nil, domain.ErrViewNotOpen
	}
	return c, nil
}

// Save stores the view under key and returns the key it is open under
// afterwards, which is the file id once the loan has a drive file
func (s *LoginSession) Save(ctx context.Context, key, fileName string) (string, error) {
	c, err := s.View(key)
	if err != nil {
		return "", err
	}
	if err := c.Save(ctx, fileName); err != nil {
		return "", err
	}
	return s.rebind(key, c), nil
}

// SaveEdit commits the edit in view key and saves it as a new file. The view
// is re-keyed to the new file; on failure it keeps its key and its edit.
func (s *LoginSession) SaveEdit(ctx context.Context, key, fileName string) (string, error) {
	c, err := s.View(key)
	if err != nil {
		return "", err
	}
	if err := c.SaveEdit(ctx, fileName); err != nil {
		return "", err
	}
	return s.rebind(key, c), nil
}

// rebind moves c from key to its file id once it is bound to a file
func (s *LoginSession) rebind(key string, c *SyncController) string {
	fileID := c.FileID()
	if fileID == "" || fileID == key {
		return key
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.views[key]; ok && current == c {
		delete(s.views, key)
	}
	if other, ok := s.views[fileID]; ok && other != c {
		other.Close()
	}
	s.views[fileID] = c
	return fileID
}

// CloseView flushes and closes one view
func (s *LoginSession) CloseView(ctx context.Context, key string) error {
	s.mu.Lock()
	c, ok := s.views[key]
	delete(s.views, key)
	s.mu.Unlock()

	if !ok {
		return domain.ErrViewNotOpen
	}
	err := c.Flush(ctx)
	c.Close()
	return err
}

// Close flushes and closes every view
func (s *LoginSession) Close(ctx context.Context) {
	s.shutdown(ctx, true)
}

func (s *LoginSession) shutdown(ctx context.Context, flush bool) {
	s.mu.Lock()
	s.closed = true
	views := s.views
	s.views = make(map[string]*SyncController)
	s.mu.Unlock()

	for key, c := range views {
		if flush {
			if err := c.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Str("view", key).Msg("Failed to flush loan view")
			}
		}
		c.Close()
	}
}

func (s *LoginSession) newController(fileID, folderID string) *SyncController {
	c := NewSyncController(s.store, s.auth, s.notifier, s.logger, SyncControllerConfig{
		FileID:    fileID,
		FolderID:  folderID,
		SessionID: s.id,
		Debounce:  s.config.Debounce,
		AutoSync:  s.config.AutoSync,
		Now:       s.config.Now,
	})
	c.SetEventPublisher(s.publisher)
	return c
}
