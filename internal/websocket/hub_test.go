package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is a test double for Client that captures sent messages
type mockClient struct {
	id        string
	sessionID string
	watching  string
	messages  [][]byte
	mu        sync.Mutex
	closed    bool
}

func newMockClient(id string, sessionID string) *mockClient {
	return &mockClient{
		id:        id,
		sessionID: sessionID,
		messages:  make([][]byte, 0),
	}
}

func (m *mockClient) ID() string {
	return m.id
}

func (m *mockClient) SessionID() string {
	return m.sessionID
}

func (m *mockClient) Wants(event Event) bool {
	return event.Delivered(m.watching)
}

func (m *mockClient) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClientClosed
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockClient) GetMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([][]byte, len(m.messages))
	copy(copied, m.messages)
	return copied
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()

	client1 := newMockClient("client-1", "s1")
	client2 := newMockClient("client-2", "s1")
	client3 := newMockClient("client-3", "s2")

	hub.Register(client1)
	hub.Register(client2)
	hub.Register(client3)

	assert.Equal(t, 2, hub.ClientCount("s1"))
	assert.Equal(t, 1, hub.ClientCount("s2"))
	assert.Equal(t, 0, hub.ClientCount("missing"))
	assert.Equal(t, 3, hub.TotalClientCount())

	hub.Unregister(client1)
	assert.Equal(t, 1, hub.ClientCount("s1"))

	hub.Unregister(client2)
	hub.Unregister(client3)
	assert.Equal(t, 0, hub.TotalClientCount())
}

func TestHub_Broadcast_SessionIsolation(t *testing.T) {
	hub := NewHub()

	tabA := newMockClient("tab-a", "s1")
	tabB := newMockClient("tab-b", "s1")
	other := newMockClient("other", "s2")

	hub.Register(tabA)
	hub.Register(tabB)
	hub.Register(other)

	hub.Broadcast("s1", LoanUpdated("file-1", map[string]interface{}{"currentPeriod": float64(1)}))

	// Give goroutines time to process
	time.Sleep(10 * time.Millisecond)

	assert.Len(t, tabA.GetMessages(), 1, "tab-a should receive 1 message")
	assert.Len(t, tabB.GetMessages(), 1, "tab-b should receive 1 message")
	assert.Len(t, other.GetMessages(), 0, "other session should not receive the message")
}

func TestHub_Broadcast_WatchedFile(t *testing.T) {
	hub := NewHub()

	list := newMockClient("list", "s1")
	car := newMockClient("car", "s1")
	car.watching = "file-car"
	house := newMockClient("house", "s1")
	house.watching = "file-house"

	hub.Register(list)
	hub.Register(car)
	hub.Register(house)

	hub.Broadcast("s1", LoanSynced("file-car", nil))
	hub.Broadcast("s1", NoticeInfo("Saved"))

	time.Sleep(10 * time.Millisecond)

	assert.Len(t, list.GetMessages(), 2, "a tab watching nothing gets every event")
	assert.Len(t, car.GetMessages(), 2)
	assert.Len(t, house.GetMessages(), 1, "only the notice reaches another file's tab")
}

func TestHub_Disconnect(t *testing.T) {
	hub := NewHub()

	tab := newMockClient("tab", "s1")
	other := newMockClient("other", "s2")
	hub.Register(tab)
	hub.Register(other)

	hub.Disconnect("s1")

	assert.True(t, tab.IsClosed())
	assert.False(t, other.IsClosed())
	assert.Equal(t, 0, hub.ClientCount("s1"))
	assert.Equal(t, 1, hub.ClientCount("s2"))
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	clientCount := 50
	sessions := []string{"s0", "s1", "s2", "s3", "s4"}

	clients := make([]*mockClient, clientCount)
	for i := 0; i < clientCount; i++ {
		clients[i] = newMockClient(fmt.Sprintf("client-%d", i), sessions[i%len(sessions)])
	}

	for i := 0; i < clientCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			hub.Register(clients[idx])
		}(i)
	}

	wg.Wait()
	assert.Equal(t, clientCount, hub.TotalClientCount())

	for i := 0; i < clientCount; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			hub.Broadcast(sessions[idx%len(sessions)], NoticeInfo("tick"))
		}(i)
		go func(idx int) {
			defer wg.Done()
			hub.Unregister(clients[idx])
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 0, hub.TotalClientCount())
}

func TestHub_UnregisterNonexistent(t *testing.T) {
	hub := NewHub()

	require.NotPanics(t, func() {
		hub.Unregister(newMockClient("client-1", "s1"))
	})
}

func TestHub_BroadcastToEmptySession(t *testing.T) {
	hub := NewHub()

	require.NotPanics(t, func() {
		hub.Broadcast("nobody", NoticeInfo("hello"))
	})
}
