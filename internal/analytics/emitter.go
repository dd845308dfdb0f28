package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

// Emitter defaults.
const (
	DefaultBufferSize = 1024

	// The sink breaker trips when at least sinkTripRequests deliveries
	// were attempted in the counting window and half of them failed.
	sinkTripRequests = 5

	sinkBreakerInterval = time.Minute
	sinkBreakerTimeout  = 30 * time.Second
)

// Emitter queues analytics events and delivers them to a sink on a
// single background goroutine. Emit never blocks the caller.
type Emitter struct {
	enabled  bool
	events   chan *Event
	sink     Sink
	breaker  *gobreaker.CircuitBreaker
	logger   observability.Logger
	metrics  *Metrics
	throttle *rate.Limiter

	dropped atomic.Uint64

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Stats is a point-in-time snapshot of the emitter.
type Stats struct {
	Buffered int    `json:"buffered"`
	Dropped  uint64 `json:"dropped"`
	Breaker  string `json:"breaker"`
}

// NewEmitter creates an emitter for the given sink and starts its
// delivery worker. A disabled configuration yields an emitter whose
// Emit is a no-op. A nil sink falls back to the log sink.
func NewEmitter(cfg *config.AnalyticsConfig, sink Sink, logger observability.Logger, metrics *Metrics) *Emitter {
	if cfg == nil {
		cfg = &config.AnalyticsConfig{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	e := &Emitter{
		enabled: cfg.Enabled,
		logger:  logger,
		metrics: metrics,
	}
	if !e.enabled {
		return e
	}

	if sink == nil {
		sink = NewLogSink(logger)
	}
	e.sink = sink

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	e.events = make(chan *Event, bufferSize)
	e.done = make(chan struct{})
	e.stopped = make(chan struct{})
	e.throttle = rate.NewLimiter(rate.Every(5*time.Second), 1)

	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "analytics-sink",
		Interval: sinkBreakerInterval,
		Timeout:  sinkBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= sinkTripRequests && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("analytics sink breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			metrics.RecordBreakerTransition(from.String(), to.String())
		},
	})

	go e.run()
	return e
}

// Emit queues the event for delivery. When the buffer is full the
// event is dropped and counted.
func (e *Emitter) Emit(event *Event) {
	if e == nil || !e.enabled || event == nil {
		return
	}

	select {
	case e.events <- event:
		e.metrics.RecordEvent(event.Type)
	default:
		e.dropped.Add(1)
		e.metrics.RecordDropped()
		if e.throttle.Allow() {
			e.logger.Warn("analytics buffer full, dropping events",
				observability.String("type", string(event.Type)),
				observability.Int64("dropped", int64(e.dropped.Load())),
			)
		}
	}
}

// Dropped returns the number of events dropped because the buffer was
// full.
func (e *Emitter) Dropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}

// Stats returns a snapshot of the emitter.
func (e *Emitter) Stats() Stats {
	if e == nil || !e.enabled {
		return Stats{}
	}
	return Stats{
		Buffered: len(e.events),
		Dropped:  e.dropped.Load(),
		Breaker:  e.breaker.State().String(),
	}
}

// Close stops the delivery worker after draining buffered events and
// closes the sink. Events emitted after Close are not delivered.
func (e *Emitter) Close() error {
	if e == nil || !e.enabled {
		return nil
	}
	e.closeOnce.Do(func() { close(e.done) })
	<-e.stopped
	return e.sink.Close()
}

func (e *Emitter) run() {
	defer close(e.stopped)

	for {
		select {
		case event := <-e.events:
			e.deliver(event)
		case <-e.done:
			// Drain what is already buffered, then stop.
			for {
				select {
				case event := <-e.events:
					e.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) deliver(event *Event) {
	_, err := e.breaker.Execute(func() (interface{}, error) {
		return nil, e.sink.Deliver(context.Background(), event)
	})
	if err == nil {
		e.metrics.RecordDelivery("success")
		return
	}

	outcome := "failure"
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		outcome = "rejected"
	}
	e.metrics.RecordDelivery(outcome)

	if e.throttle.Allow() {
		e.logger.Warn("analytics delivery failed",
			observability.String("type", string(event.Type)),
			observability.Error(err),
		)
	}
}
