package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Acknowledger is the part of a delivery the worker settles.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Worker drains queued emails into a Mailer.
type Worker struct {
	mailer   Mailer
	size     int
	logger   *zap.Logger
	recorder Recorder
}

func NewWorker(mailer Mailer, size int, logger *zap.Logger, recorder Recorder) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if size <= 0 {
		size = 5
	}
	return &Worker{mailer: mailer, size: size, logger: logger, recorder: recorder}
}

// Run consumes msgs with a fixed pool until msgs closes or ctx is done.
func (w *Worker) Run(ctx context.Context, msgs <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < w.size; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.logger.Debug("email worker started", zap.Int("worker", workerID))
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					w.Handle(ctx, msg.Body, &msg)
				}
			}
		}(i + 1)
	}
	wg.Wait()
	w.logger.Info("email workers stopped")
}

// Handle delivers one message body and settles it. Undecodable bodies and
// emails that exhausted the mailer's retries are discarded.
func (w *Worker) Handle(ctx context.Context, body []byte, ack Acknowledger) {
	var e Email
	if err := json.Unmarshal(body, &e); err != nil {
		w.logger.Warn("failed to unmarshal email message", zap.Error(err))
		ack.Nack(false, false)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := Deliver(sendCtx, w.mailer, e, w.logger, w.recorder); err != nil {
		ack.Nack(false, false)
		return
	}
	ack.Ack(false)
}
