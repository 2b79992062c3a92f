package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	retryBackoff       = 2 * time.Second
)

// Dispatcher decouples notification delivery from the request path. Dispatch
// enqueues without blocking; a worker goroutine drains the queue and retries
// transient failures a bounded number of times. Delivery failures are logged
// and dropped, never propagated.
type Dispatcher struct {
	sender      *Sender
	logger      zerolog.Logger
	queue       chan *Notification
	maxAttempts int

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. queueSize <= 0 uses the default.
func NewDispatcher(sender *Sender, logger zerolog.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		sender:      sender,
		logger:      logger,
		queue:       make(chan *Notification, queueSize),
		maxAttempts: defaultMaxAttempts,
		done:        make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains in-flight work and shuts the worker down.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

// Dispatch enqueues a notification for delivery. It never blocks: when the
// queue is full the notification is dropped with a log entry, matching the
// best-effort contract.
func (d *Dispatcher) Dispatch(n *Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn().
			Str("template_id", n.TemplateID).
			Str("recipient", n.Recipient).
			Msg("notification queue full, dropping")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-d.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err = d.sender.Send(ctx, n)
		if err == nil {
			return
		}
		if attempt < d.maxAttempts {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				err = ctx.Err()
				attempt = d.maxAttempts
			}
		}
	}

	d.logger.Error().
		Err(err).
		Str("template_id", n.TemplateID).
		Str("recipient", n.Recipient).
		Int("attempts", d.maxAttempts).
		Msg("notification delivery failed")
}

// LogEmailSender logs emails instead of sending them. Used in development.
type LogEmailSender struct {
	Logger zerolog.Logger
}

func (s *LogEmailSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Msg("email (log only)")
	return nil
}

// LogSMSSender logs SMS messages instead of sending them. Used in development.
type LogSMSSender struct {
	Logger zerolog.Logger
}

func (s *LogSMSSender) SendSMS(_ context.Context, to, _ string) error {
	s.Logger.Info().Str("to", to).Msg("sms (log only)")
	return nil
}
