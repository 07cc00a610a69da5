package pubsub

import "sync"

// Subscription is a live, ordered feed of payloads for one topic. Publishes
// are staged in an unbounded backlog so a slow consumer never blocks the
// publisher; a pump goroutine drains the backlog into C in publish order.
// The feed is not restartable: after Unsubscribe, C is closed and anything
// published later is lost to this handle.
type Subscription struct {
	topic Topic

	mu      sync.Mutex
	backlog []any

	wake chan struct{}
	out  chan any
	done chan struct{}
	once sync.Once
}

func newSubscription(topic Topic) *Subscription {
	s := &Subscription{
		topic: topic,
		wake:  make(chan struct{}, 1),
		out:   make(chan any),
		done:  make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Subscription) Topic() Topic { return s.topic }

// C yields payloads in publish order. It is closed when the subscription is
// removed from the broker.
func (s *Subscription) C() <-chan any { return s.out }

func (s *Subscription) enqueue(payload any) {
	s.mu.Lock()
	s.backlog = append(s.backlog, payload)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		pending := s.backlog
		s.backlog = nil
		s.mu.Unlock()

		for _, payload := range pending {
			select {
			case s.out <- payload:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}
