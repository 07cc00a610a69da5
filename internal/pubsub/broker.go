package pubsub

import "sync"

// Broker fans published payloads out to every current subscriber of a topic.
// There is no buffering or replay across registrations: a payload published
// while a handle is not registered is lost to it.
type Broker interface {
	Publish(topic Topic, payload any)
	Subscribe(topic Topic) *Subscription
	Unsubscribe(sub *Subscription)
}

// Memory is the in-process broker. Registration, deregistration, and fan-out
// are serialized by one mutex, so a publish reaches exactly the subscriber set
// that existed when it was called.
type Memory struct {
	mu     sync.Mutex
	topics map[Topic]map[*Subscription]struct{}
}

func NewMemory() *Memory {
	return &Memory{topics: make(map[Topic]map[*Subscription]struct{})}
}

func (m *Memory) Publish(topic Topic, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sub := range m.topics[topic] {
		sub.enqueue(payload)
	}
}

func (m *Memory) Subscribe(topic Topic) *Subscription {
	sub := newSubscription(topic)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.topics[topic] == nil {
		m.topics[topic] = make(map[*Subscription]struct{})
	}
	m.topics[topic][sub] = struct{}{}
	return sub
}

// Unsubscribe is idempotent and safe after the topic itself is gone.
func (m *Memory) Unsubscribe(sub *Subscription) {
	m.mu.Lock()
	set := m.topics[sub.topic]
	if set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(m.topics, sub.topic)
		}
	}
	m.mu.Unlock()

	sub.close()
}

func (m *Memory) SubscriberCount(topic Topic) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics[topic])
}
