package websocket

// EventPublisher defines the interface for publishing events to WebSocket clients
type EventPublisher interface {
	// Publish sends an event to all clients connected to the specified session
	Publish(sessionID string, event Event)
}

// Ensure Hub implements EventPublisher
var _ EventPublisher = (*Hub)(nil)

// Publish implements EventPublisher by broadcasting the event to the session
func (h *Hub) Publish(sessionID string, event Event) {
	h.Broadcast(sessionID, event)
}

// NoOpPublisher is a publisher that does nothing (for testing or when WebSocket is disabled)
type NoOpPublisher struct{}

// Publish does nothing
func (n *NoOpPublisher) Publish(sessionID string, event Event) {}

// Notifier turns user notices into notice events for one session
type Notifier struct {
	publisher EventPublisher
	sessionID string
}

// NewNotifier creates a Notifier publishing to sessionID
func NewNotifier(publisher EventPublisher, sessionID string) *Notifier {
	return &Notifier{publisher: publisher, sessionID: sessionID}
}

// Info publishes an informational notice
func (n *Notifier) Info(message string) {
	n.publisher.Publish(n.sessionID, NoticeInfo(message))
}

// Error publishes a failure notice
func (n *Notifier) Error(message string) {
	n.publisher.Publish(n.sessionID, NoticeError(message))
}
