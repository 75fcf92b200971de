// Package realtime fans database change notifications out to streaming
// clients.
package realtime

import (
	"context"
	"sync"
	"time"

	"staging-studio-backend/internal/models"
)

const (
	TableSubmissions = "submissions"
	TableMessages    = "messages"

	TopicSubmissions = "submissions"

	EventHeartbeat = "heartbeat"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Change is one row change. Submission or Message carries the row as read
// after the change; both are nil for deletes.
type Change struct {
	Table        string             `json:"table"`
	Op           Op                 `json:"op"`
	ID           string             `json:"id"`
	SubmissionID string             `json:"submissionId,omitempty"`
	Submission   *models.Submission `json:"submission,omitempty"`
	Message      *models.Message    `json:"message,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// MessagesTopic is the topic of one conversation.
func MessagesTopic(submissionID string) string {
	return TableMessages + ":" + submissionID
}

// Dispatcher delivers changes to subscribers of a topic. Slow subscribers
// miss changes rather than block the publisher.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Change
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  32,
	}
}

// Subscribe registers for topic until ctx is done or the returned cleanup
// is called.
func (d *Dispatcher) Subscribe(ctx context.Context, topic string) (<-chan Change, func()) {
	if topic == "" {
		ch := make(chan Change)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Change, d.bufferSize),
	}
	d.register(topic, sub)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregister(topic, sub.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

func (d *Dispatcher) Publish(topic string, change Change) {
	if topic == "" {
		return
	}
	d.mu.RLock()
	subs := d.subscribers[topic]
	if len(subs) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		copies = append(copies, s)
	}
	d.mu.RUnlock()
	for _, s := range copies {
		select {
		case s.stream <- change:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (d *Dispatcher) Subscribers(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[topic])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(topic string, s *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*subscriber)
	}
	d.subscribers[topic][s.id] = s
}

func (d *Dispatcher) unregister(topic string, id int64) {
	d.mu.Lock()
	subs := d.subscribers[topic]
	if subs != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(d.subscribers, topic)
		}
	}
	d.mu.Unlock()
}
