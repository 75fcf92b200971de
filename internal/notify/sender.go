package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender accepts emails for delivery without blocking the caller on the
// outcome. Delivery failures are logged and never returned.
type Sender interface {
	Enqueue(ctx context.Context, emails ...Email)
}

// Recorder counts delivery outcomes.
type Recorder interface {
	RecordEmail(template string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordEmail(string, bool) {}

// AsyncSender delivers in-process on a small worker pool.
type AsyncSender struct {
	mailer   Mailer
	logger   *zap.Logger
	recorder Recorder
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan Email
	wg     sync.WaitGroup
}

func NewAsyncSender(mailer Mailer, workers int, logger *zap.Logger, recorder Recorder) *AsyncSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if workers <= 0 {
		workers = 2
	}
	s := &AsyncSender{
		mailer:   mailer,
		logger:   logger,
		recorder: recorder,
		timeout:  time.Minute,
		jobs:     make(chan Email, 64),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.work()
	}
	return s
}

func (s *AsyncSender) Enqueue(ctx context.Context, emails ...Email) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("email dropped after shutdown", zap.Int("count", len(emails)))
		return
	}
	for _, e := range emails {
		select {
		case s.jobs <- e:
		default:
			s.logger.Warn("email queue full, dropping", zap.String("template", string(e.Template)), zap.String("order_id", e.OrderID))
			s.recorder.RecordEmail(string(e.Template), false)
		}
	}
}

// Close stops accepting emails and waits for queued ones.
func (s *AsyncSender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *AsyncSender) work() {
	defer s.wg.Done()
	for e := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		Deliver(ctx, s.mailer, e, s.logger, s.recorder)
		cancel()
	}
}

// Deliver sends one email and records the outcome.
func Deliver(ctx context.Context, mailer Mailer, e Email, logger *zap.Logger, recorder Recorder) error {
	err := mailer.Send(ctx, e)
	recorder.RecordEmail(string(e.Template), err == nil)
	if err != nil {
		logger.Warn("email delivery failed",
			zap.String("template", string(e.Template)),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
	return err
}

// Publisher is the outbound side of a durable queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// QueueSender hands emails to a durable queue consumed by the worker.
type QueueSender struct {
	publisher Publisher
	logger    *zap.Logger
}

func NewQueueSender(publisher Publisher, logger *zap.Logger) *QueueSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueSender{publisher: publisher, logger: logger}
}

func (s *QueueSender) Enqueue(ctx context.Context, emails ...Email) {
	for _, e := range emails {
		body, err := json.Marshal(e)
		if err != nil {
			s.logger.Warn("failed to encode email", zap.Error(err))
			continue
		}
		// The request context may end before the broker confirms.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err = s.publisher.Publish(pubCtx, body)
		cancel()
		if err != nil {
			s.logger.Warn("failed to queue email",
				zap.String("template", string(e.Template)),
				zap.String("order_id", e.OrderID),
				zap.Error(err),
			)
		}
	}
}
