package messaging

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// UserInfo is the slice of a user the messaging domain needs.
type UserInfo struct {
	ID   uuid.UUID
	Name string
}

// UserProvider resolves user ids to display info. Implemented by the
// identity service.
type UserProvider interface {
	ResolveUserInfo(ctx context.Context, id uuid.UUID) (*UserInfo, error)
}

// Broadcaster fans a freshly stored message out to the conversation's live
// connections. Implemented by the websocket hub; delivery is best effort.
type Broadcaster interface {
	BroadcastMessage(m *Message)
}

// Service implements the messaging operations: authorized sends, history
// reads and read receipts. All authorization goes through the gate.
type Service struct {
	messages MessageRepository
	gate     *Gate
	users    UserProvider

	broadcaster Broadcaster

	mu        sync.Mutex
	convLocks map[string]*sync.Mutex
}

// NewService creates a new messaging service.
func NewService(messages MessageRepository, gate *Gate, users UserProvider) *Service {
	return &Service{
		messages:  messages,
		gate:      gate,
		users:     users,
		convLocks: make(map[string]*sync.Mutex),
	}
}

// SetBroadcaster wires live delivery in. Called once during startup, before
// the server accepts traffic.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// convLock returns the mutex serializing sends within one conversation.
func (s *Service) convLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.convLocks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.convLocks[conversationID] = l
	}
	return l
}

// Send validates, authorizes and appends a message, returning it with the
// caller's correlation id echoed back and display names filled in.
func (s *Service) Send(ctx context.Context, senderID, receiverID uuid.UUID, text, correlationID string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if receiverID == uuid.Nil || receiverID == senderID {
		return nil, ErrInvalidParticipant
	}
	receiver, err := s.users.ResolveUserInfo(ctx, receiverID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if err := s.gate.Authorize(ctx, senderID, receiverID); err != nil {
		return nil, err
	}
	sender, err := s.users.ResolveUserInfo(ctx, senderID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	m := &Message{
		ConversationID: ConversationID(senderID, receiverID),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
	}

	// The conversation lock is held across append and broadcast so live
	// delivery order matches store order within a conversation.
	lock := s.convLock(m.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.messages.Append(ctx, m); err != nil {
		return nil, err
	}
	m.CorrelationID = correlationID
	m.SenderName = sender.Name
	m.ReceiverName = receiver.Name
	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage(m)
	}
	return m, nil
}

// History returns the full ordered conversation between the caller and the
// other user. An unauthorized pair gets ErrUnauthorized, never an empty
// list: the two outcomes must stay distinguishable.
func (s *Service) History(ctx context.Context, callerID, otherID uuid.UUID) ([]*Message, error) {
	if otherID == uuid.Nil || otherID == callerID {
		return nil, ErrInvalidParticipant
	}
	if _, err := s.users.ResolveUserInfo(ctx, otherID); err != nil {
		return nil, ErrUserNotFound
	}
	if err := s.gate.Authorize(ctx, callerID, otherID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.History(ctx, ConversationID(callerID, otherID))
	if err != nil {
		return nil, err
	}
	s.fillNames(ctx, msgs)
	return msgs, nil
}

// MarkRead flags a message as read. Only the receiver may do it; repeating
// the call is a no-op.
func (s *Service) MarkRead(ctx context.Context, callerID, messageID uuid.UUID) (*Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.ReceiverID != callerID {
		return nil, ErrNotReceiver
	}
	if !m.Read {
		if err := s.messages.MarkRead(ctx, messageID); err != nil {
			return nil, err
		}
		m.Read = true
	}
	return m, nil
}

// Authorize exposes the gate decision for callers outside the service, such
// as the live delivery router's join handling.
func (s *Service) Authorize(ctx context.Context, a, b uuid.UUID) error {
	return s.gate.Authorize(ctx, a, b)
}

// fillNames decorates messages with display names. A lookup miss leaves the
// name blank rather than failing the read.
func (s *Service) fillNames(ctx context.Context, msgs []*Message) {
	cache := make(map[uuid.UUID]string)
	lookup := func(id uuid.UUID) string {
		if name, ok := cache[id]; ok {
			return name
		}
		name := ""
		if u, err := s.users.ResolveUserInfo(ctx, id); err == nil {
			name = u.Name
		}
		cache[id] = name
		return name
	}
	for _, m := range msgs {
		m.SenderName = lookup(m.SenderID)
		m.ReceiverName = lookup(m.ReceiverID)
	}
}
