// Package clicks counts redirects and fans click events out to sinks off the
// response path.
package clicks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/metrics"
	"github.com/edgelink/shortener/internal/model"
)

// ClickCounter is the store's atomic increment.
type ClickCounter interface {
	IncrementClicks(ctx context.Context, slug string) (int64, error)
}

// VariantCounter records A/B exposures. Optional.
type VariantCounter interface {
	IncrementVariant(ctx context.Context, testID, variant string) error
}

// Sink receives click events. Emit is best-effort; errors are logged and the
// event is not retried.
type Sink interface {
	Name() string
	Emit(ctx context.Context, event model.ClickEvent) error
}

type Config struct {
	QueueSize    int
	Workers      int
	StoreTimeout time.Duration
	EmitTimeout  time.Duration
}

// Accountant counts clicks and emits events on separate queues: a slow sink
// only backs up the outbox, never the counting workers.
type Accountant struct {
	buffer   *Buffer
	outbox   *Buffer
	counter  ClickCounter
	variants VariantCounter
	sinks    []Sink
	cfg      Config
	log      logger.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
	emitWG   sync.WaitGroup
}

type Option func(*Accountant)

func WithSinks(sinks ...Sink) Option {
	return func(a *Accountant) { a.sinks = append(a.sinks, sinks...) }
}

func WithVariantCounter(vc VariantCounter) Option {
	return func(a *Accountant) { a.variants = vc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Accountant) { a.metrics = m }
}

func NewAccountant(counter ClickCounter, cfg Config, log logger.Logger, opts ...Option) *Accountant {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	a := &Accountant{
		buffer:  NewBuffer(cfg.QueueSize),
		outbox:  NewBuffer(cfg.QueueSize),
		counter: counter,
		cfg:     cfg,
		log:     log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record enqueues the event and returns immediately. It returns false when
// the event was dropped because the queue is full or stopped.
func (a *Accountant) Record(event model.ClickEvent) bool {
	if err := a.buffer.Send(event); err != nil {
		a.metrics.ClickEvent("dropped")
		if errors.Is(err, ErrBufferClosed) {
			a.log.Warn("Click accountant stopped, dropping event",
				logger.String("slug", event.Slug),
				logger.String("event_id", event.ID),
			)
		} else {
			a.log.Warn("Click event buffer full, dropping event",
				logger.String("slug", event.Slug),
				logger.String("event_id", event.ID),
			)
		}
		return false
	}
	a.metrics.QueueDepth(a.buffer.Len())
	return true
}

// Start launches the counting workers and, when sinks are configured, the
// emitting workers.
func (a *Accountant) Start() {
	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go a.work(a.buffer, &a.wg, a.process)
	}
	if len(a.sinks) == 0 {
		return
	}
	for i := 0; i < a.cfg.Workers; i++ {
		a.emitWG.Add(1)
		go a.work(a.outbox, &a.emitWG, a.fanOut)
	}
}

// Stop closes the queue, lets the counting workers drain what is left, then
// does the same for the outbox.
func (a *Accountant) Stop() {
	a.buffer.Close()
	a.wg.Wait()
	a.outbox.Close()
	a.emitWG.Wait()
	a.metrics.QueueDepth(0)
}

func (a *Accountant) work(buf *Buffer, wg *sync.WaitGroup, handle func(model.ClickEvent)) {
	defer wg.Done()

	for {
		select {
		case event := <-buf.events:
			handle(event)
		case <-buf.closed:
			drain(buf, handle)
			return
		}
	}
}

func drain(buf *Buffer, handle func(model.ClickEvent)) {
	for {
		select {
		case event := <-buf.events:
			handle(event)
		default:
			return
		}
	}
}

func (a *Accountant) process(event model.ClickEvent) {
	a.metrics.QueueDepth(a.buffer.Len())

	if err := a.increment(event.Slug); err != nil {
		a.metrics.ClickEvent("count_failed")
		a.log.Error("Failed to increment click count",
			logger.String("slug", event.Slug),
			logger.Error(err),
		)
	} else {
		a.metrics.ClickEvent("counted")
	}

	if event.TestID != "" && event.Variant != "" && a.variants != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.StoreTimeout)
		if err := a.variants.IncrementVariant(ctx, event.TestID, event.Variant); err != nil {
			a.log.Warn("Failed to record A/B exposure",
				logger.String("slug", event.Slug),
				logger.String("test_id", event.TestID),
				logger.Error(err),
			)
		}
		cancel()
	}

	if len(a.sinks) == 0 {
		return
	}
	if err := a.outbox.Send(event); err != nil {
		a.metrics.ClickEvent("emit_dropped")
		a.log.Warn("Click event outbox full, event not emitted",
			logger.String("slug", event.Slug),
			logger.String("event_id", event.ID),
		)
	}
}

func (a *Accountant) fanOut(event model.ClickEvent) {
	for _, sink := range a.sinks {
		a.emit(sink, event)
	}
}

func (a *Accountant) increment(slug string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.StoreTimeout)
	defer cancel()
	_, err := a.counter.IncrementClicks(ctx, slug)
	return err
}

func (a *Accountant) emit(sink Sink, event model.ClickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.EmitTimeout)
	defer cancel()

	if err := sink.Emit(ctx, event); err != nil {
		a.metrics.SinkEmit(sink.Name(), "error")
		a.log.Warn("Failed to emit click event",
			logger.String("sink", sink.Name()),
			logger.String("slug", event.Slug),
			logger.String("event_id", event.ID),
			logger.Error(err),
		)
		return
	}
	a.metrics.SinkEmit(sink.Name(), "ok")
}
