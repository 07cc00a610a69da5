// Package session tracks the broker subscriptions held by one live
// connection and guarantees they are all released on teardown.
package session

import (
	"errors"
	"sync"

	"convo-server/internal/model"
	"convo-server/internal/pubsub"
	"github.com/google/uuid"
)

type State int

const (
	Pending State = iota
	Authorized
	Active
	Closed
)

var (
	ErrNotAuthorized = errors.New("session not authorized")
	ErrClosed        = errors.New("session closed")
)

// Session is the per-connection record binding an authenticated user to zero
// or more broker topics. A connection authorizes once at establishment; every
// Attach afterwards rides on that decision. Close drops every registration,
// so a closed session never receives ghost deliveries.
type Session struct {
	broker pubsub.Broker

	mu    sync.Mutex
	state State
	user  *model.User
	subs  map[string]*pubsub.Subscription
}

func New(broker pubsub.Broker) *Session {
	return &Session{
		broker: broker,
		state:  Pending,
		subs:   make(map[string]*pubsub.Subscription),
	}
}

// Authorize moves the session from Pending to Authorized. A nil user is a
// denial: the session closes and never accepts subscriptions.
func (s *Session) Authorize(user *model.User) error {
	s.mu.Lock()
	if s.state != Pending {
		s.mu.Unlock()
		return ErrClosed
	}
	if user == nil {
		s.state = Closed
		s.mu.Unlock()
		return ErrNotAuthorized
	}
	s.user = user
	s.state = Authorized
	s.mu.Unlock()
	return nil
}

// Attach opens a broker subscription for topic and returns a handle id the
// client can use to detach it. Multiple concurrent attachments are allowed.
func (s *Session) Attach(topic pubsub.Topic) (string, *pubsub.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Authorized, Active:
	case Pending:
		return "", nil, ErrNotAuthorized
	default:
		return "", nil, ErrClosed
	}

	sub := s.broker.Subscribe(topic)
	sid := uuid.NewString()
	s.subs[sid] = sub
	s.state = Active
	return sid, sub, nil
}

// Detach removes a single subscription. Unknown ids are a no-op.
func (s *Session) Detach(sid string) bool {
	s.mu.Lock()
	sub, ok := s.subs[sid]
	delete(s.subs, sid)
	if len(s.subs) == 0 && s.state == Active {
		s.state = Authorized
	}
	s.mu.Unlock()

	if ok {
		s.broker.Unsubscribe(sub)
	}
	return ok
}

// Close is terminal and idempotent. Every held subscription is unregistered
// from the broker before it returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	held := s.subs
	s.subs = make(map[string]*pubsub.Subscription)
	s.mu.Unlock()

	for _, sub := range held {
		s.broker.Unsubscribe(sub)
	}
}

func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Registrations reports how many broker subscriptions the session holds.
func (s *Session) Registrations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
