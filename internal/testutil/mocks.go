package testutil

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/websocket"
)

const (
	downloadPrefix = "mock://download/"
	listPrefix     = "mock://list/"
)

// MockFile is a file held by MockBlobStore
type MockFile struct {
	ID         string
	Name       string
	FolderID   string
	Content    []byte
	ModifiedAt time.Time
}

// MockBlobStore is an in-memory implementation of domain.BlobStore
type MockBlobStore struct {
	mu       sync.Mutex
	Folders  map[string]string // name -> id
	Files    map[string]*MockFile
	nextID   int
	PutCalls int

	GetMetadataFn func(ctx context.Context, ref domain.ItemRef) (*domain.DriveMetadata, error)
	GetContentFn  func(ctx context.Context, downloadURL string) ([]byte, error)
	PutContentFn  func(ctx context.Context, ref domain.ItemRef, content []byte) (*domain.DriveMetadata, error)
	RenameFn      func(ctx context.Context, id, newName string) (bool, error)
}

// NewMockBlobStore creates a new MockBlobStore
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		Folders: make(map[string]string),
		Files:   make(map[string]*MockFile),
	}
}

var _ domain.BlobStore = (*MockBlobStore)(nil)

// AddFile stores content under folderID and returns the new file id
func (m *MockBlobStore) AddFile(folderID, name string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(folderID, name, content)
}

func (m *MockBlobStore) addLocked(folderID, name string, content []byte) string {
	m.nextID++
	id := fmt.Sprintf("file-%d", m.nextID)
	m.Files[id] = &MockFile{
		ID:         id,
		Name:       name,
		FolderID:   folderID,
		Content:    append([]byte(nil), content...),
		ModifiedAt: time.Now().UTC(),
	}
	return id
}

// Content returns a copy of a file's content
func (m *MockBlobStore) Content(id string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.Files[id]; ok {
		return append([]byte(nil), f.Content...)
	}
	return nil
}

// Puts returns the number of PutContent calls that reached the store
func (m *MockBlobStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PutCalls
}

// ListChildren lists the files and folders in a folder
func (m *MockBlobStore) ListChildren(ctx context.Context, folderID string) ([]domain.DriveItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.childrenLocked(folderID), nil
}

func (m *MockBlobStore) childrenLocked(folderID string) []domain.DriveItem {
	var items []domain.DriveItem
	if folderID == "" {
		for name, id := range m.Folders {
			items = append(items, domain.DriveItem{ID: id, Name: name, IsFolder: true})
		}
	}
	for _, f := range m.Files {
		if f.FolderID == folderID {
			items = append(items, domain.DriveItem{ID: f.ID, Name: f.Name, Size: int64(len(f.Content)), ModifiedAt: f.ModifiedAt})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// CreateFolder creates a folder, returning the existing id for a known name
func (m *MockBlobStore) CreateFolder(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.Folders[name]; ok {
		return id, nil
	}
	id := "folder-" + name
	m.Folders[name] = id
	return id, nil
}

// GetMetadata looks a file up by id or by folder and name
func (m *MockBlobStore) GetMetadata(ctx context.Context, ref domain.ItemRef) (*domain.DriveMetadata, error) {
	if m.GetMetadataFn != nil {
		return m.GetMetadataFn(ctx, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.findLocked(ref)
	if f == nil {
		return nil, domain.ErrItemNotFound
	}
	return &domain.DriveMetadata{ID: f.ID, Name: f.Name, DownloadURL: downloadPrefix + f.ID, ModifiedAt: f.ModifiedAt}, nil
}

func (m *MockBlobStore) findLocked(ref domain.ItemRef) *MockFile {
	if ref.ID != "" {
		return m.Files[ref.ID]
	}
	for _, f := range m.Files {
		if f.FolderID == ref.FolderID && f.Name == ref.Name {
			return f
		}
	}
	return nil
}

// GetContent returns the content behind a download url
func (m *MockBlobStore) GetContent(ctx context.Context, downloadURL string) ([]byte, error) {
	if m.GetContentFn != nil {
		return m.GetContentFn(ctx, downloadURL)
	}
	content := m.Content(strings.TrimPrefix(downloadURL, downloadPrefix))
	if content == nil {
		return nil, domain.ErrItemNotFound
	}
	return content, nil
}

// PutContent replaces a file or creates it by path
func (m *MockBlobStore) PutContent(ctx context.Context, ref domain.ItemRef, content []byte) (*domain.DriveMetadata, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.PutCalls++
	m.mu.Unlock()

	if m.PutContentFn != nil {
		return m.PutContentFn(ctx, ref, content)
	}
	return m.Store(ref, content)
}

// Store writes content without the PutContentFn hook
func (m *MockBlobStore) Store(ref domain.ItemRef, content []byte) (*domain.DriveMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.findLocked(ref)
	if f == nil {
		if ref.ID != "" {
			return nil, domain.ErrItemNotFound
		}
		f = m.Files[m.addLocked(ref.FolderID, ref.Name, content)]
	} else {
		f.Content = append([]byte(nil), content...)
		f.ModifiedAt = time.Now().UTC()
	}
	return &domain.DriveMetadata{ID: f.ID, Name: f.Name, DownloadURL: downloadPrefix + f.ID, ModifiedAt: f.ModifiedAt}, nil
}

// Rename renames a file
func (m *MockBlobStore) Rename(ctx context.Context, id string, newName string) (bool, error) {
	if m.RenameFn != nil {
		return m.RenameFn(ctx, id, newName)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.Files[id]
	if !ok {
		return false, nil
	}
	f.Name = newName
	return true, nil
}

// FirstPageURL builds a mock listing cursor
func (m *MockBlobStore) FirstPageURL(folderID string, pageSize int) string {
	return fmt.Sprintf("%s%s?top=%d&offset=0", listPrefix, url.PathEscape(folderID), pageSize)
}

// ListPage pages through ListChildren
func (m *MockBlobStore) ListPage(ctx context.Context, pageURL string) (*domain.DrivePage, error) {
	if pageURL == "" {
		return nil, domain.ErrPageURLRequired
	}
	u, err := url.Parse(pageURL)
	if err != nil || !strings.HasPrefix(pageURL, listPrefix) {
		return nil, fmt.Errorf("%w: bad page url", domain.ErrInvalidInput)
	}
	folderID := strings.TrimPrefix(u.Path, "/")
	top, _ := strconv.Atoi(u.Query().Get("top"))
	offset, _ := strconv.Atoi(u.Query().Get("offset"))

	m.mu.Lock()
	items := m.childrenLocked(folderID)
	m.mu.Unlock()

	if offset > len(items) {
		offset = len(items)
	}
	end := len(items)
	if top > 0 && offset+top < end {
		end = offset + top
	}

	page := &domain.DrivePage{Items: items[offset:end]}
	if end < len(items) {
		page.NextPageURL = fmt.Sprintf("%s%s?top=%d&offset=%d", listPrefix, url.PathEscape(folderID), top, end)
	}
	return page, nil
}

// MockSessionStore is an in-memory implementation of domain.SessionStore
type MockSessionStore struct {
	mu       sync.Mutex
	Sessions map[string]domain.Tokens
	TTLs     map[string]time.Duration
	SaveFn   func(ctx context.Context, id string, tokens domain.Tokens, ttl time.Duration) error
}

// NewMockSessionStore creates a new MockSessionStore
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		Sessions: make(map[string]domain.Tokens),
		TTLs:     make(map[string]time.Duration),
	}
}

var _ domain.SessionStore = (*MockSessionStore)(nil)

// Get returns the tokens of a session
func (m *MockSessionStore) Get(ctx context.Context, id string) (domain.Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens, ok := m.Sessions[id]
	if !ok {
		return domain.Tokens{}, domain.ErrSessionNotFound
	}
	return tokens, nil
}

// Save stores the tokens of a session
func (m *MockSessionStore) Save(ctx context.Context, id string, tokens domain.Tokens, ttl time.Duration) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, id, tokens, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[id] = tokens
	m.TTLs[id] = ttl
	return nil
}

// Delete removes a session
func (m *MockSessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, id)
	delete(m.TTLs, id)
	return nil
}

// Has reports whether a session is stored
func (m *MockSessionStore) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Sessions[id]
	return ok
}

// MockNotifier records user notices
type MockNotifier struct {
	mu     sync.Mutex
	Infos  []string
	Errors []string
}

// NewMockNotifier creates a new MockNotifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Info records an informational notice
func (m *MockNotifier) Info(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Infos = append(m.Infos, message)
}

// Error records a failure notice
func (m *MockNotifier) Error(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, message)
}

// InfoMessages returns a copy of the informational notices
func (m *MockNotifier) InfoMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Infos...)
}

// ErrorMessages returns a copy of the failure notices
func (m *MockNotifier) ErrorMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Errors...)
}

// MockAuth is a switchable authentication state
type MockAuth struct {
	mu            sync.Mutex
	Authenticated bool
}

// NewMockAuth creates a MockAuth
func NewMockAuth(authenticated bool) *MockAuth {
	return &MockAuth{Authenticated: authenticated}
}

// IsAuthenticated reports the current state
func (m *MockAuth) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Authenticated
}

// Set changes the state
func (m *MockAuth) Set(authenticated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Authenticated = authenticated
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events map[string][]websocket.Event
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{Events: make(map[string][]websocket.Event)}
}

var _ websocket.EventPublisher = (*MockEventPublisher)(nil)

// Publish records the event
func (m *MockEventPublisher) Publish(sessionID string, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[sessionID] = append(m.Events[sessionID], event)
}

// Types returns the event types published to a session, in order
func (m *MockEventPublisher) Types(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Events[sessionID]))
	for _, e := range m.Events[sessionID] {
		types = append(types, e.Type)
	}
	return types
}
