package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

// DefaultSinkTimeout bounds HTTP sink deliveries when no timeout is
// configured.
const DefaultSinkTimeout = 5 * time.Second

// Sink delivers analytics events.
type Sink interface {
	// Deliver sends one event. The emitter calls it from a single
	// goroutine.
	Deliver(ctx context.Context, event *Event) error

	// Close releases sink resources.
	Close() error
}

// LogSink writes events through the structured logger.
type LogSink struct {
	logger observability.Logger
}

// NewLogSink creates a sink that logs each event at info level.
func NewLogSink(logger observability.Logger) *LogSink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogSink{logger: logger}
}

// Deliver logs the event.
func (s *LogSink) Deliver(_ context.Context, event *Event) error {
	s.logger.Info("analytics event",
		observability.String("event", event.ID),
		observability.String("type", string(event.Type)),
		observability.String("request", event.RequestID),
		observability.String("tenant", event.TenantID),
		observability.String("method", event.Method),
		observability.String("path", event.Path),
		observability.Int("status", event.Status),
		observability.Duration("latency", event.Latency),
		observability.String("outcome", event.Outcome),
		observability.String("detail", event.Detail),
	)
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }

// HTTPSink POSTs events as JSON to a collector endpoint.
type HTTPSink struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewHTTPSink creates a sink delivering to the configured endpoint.
func NewHTTPSink(cfg *config.SinkConfig) (*HTTPSink, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("analytics http sink requires an endpoint")
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}

	return &HTTPSink{
		endpoint: cfg.Endpoint,
		headers:  cfg.Headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Deliver POSTs the event. Any status outside 2xx is a delivery
// failure.
func (s *HTTPSink) Deliver(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal analytics event: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build analytics request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for name, value := range s.headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("deliver analytics event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("analytics sink returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// NewSink builds the configured sink: http when configured with an
// endpoint, the log sink otherwise.
func NewSink(cfg *config.SinkConfig, logger observability.Logger) (Sink, error) {
	if cfg == nil || cfg.Type == "" || cfg.Type == "log" {
		return NewLogSink(logger), nil
	}
	switch cfg.Type {
	case "http":
		return NewHTTPSink(cfg)
	default:
		return nil, fmt.Errorf("unknown analytics sink type %q", cfg.Type)
	}
}
