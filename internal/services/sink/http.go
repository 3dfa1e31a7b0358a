package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/j-veylop/kpm-aggregator/internal/logger"
	"github.com/j-veylop/kpm-aggregator/internal/models"
)

const (
	defaultMaxElapsed      = 2 * time.Minute
	defaultInitialInterval = 500 * time.Millisecond
	maxErrorBody           = 512
)

// StatusError is returned when the ingest endpoint answers with a non-2xx status.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingest returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPConfig holds configuration for the HTTP sink.
type HTTPConfig struct {
	Client          *http.Client
	URL             string
	Token           string
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
}

// HTTPSink posts aggregates as JSON to an ingest endpoint.
type HTTPSink struct {
	client          *http.Client
	url             string
	token           string
	maxElapsed      time.Duration
	initialInterval time.Duration
}

// NewHTTPSink creates an HTTP sink.
func NewHTTPSink(cfg HTTPConfig) *HTTPSink {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	s := &HTTPSink{
		client:          client,
		url:             cfg.URL,
		token:           cfg.Token,
		maxElapsed:      cfg.MaxElapsedTime,
		initialInterval: cfg.InitialInterval,
	}
	if s.maxElapsed <= 0 {
		s.maxElapsed = defaultMaxElapsed
	}
	if s.initialInterval <= 0 {
		s.initialInterval = defaultInitialInterval
	}
	return s
}

// Submit posts agg, retrying transport errors and 5xx responses with
// exponential backoff. 4xx responses are not retried.
func (s *HTTPSink) Submit(ctx context.Context, agg *models.ProjectAggregate) error {
	body, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initialInterval
	eb.MaxElapsedTime = s.maxElapsed

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		err := s.post(ctx, body, agg.BatchID)
		if err != nil {
			logger.Debug("ingest attempt failed", "directory", agg.Directory, "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithContext(eb, ctx))
	if err != nil {
		return fmt.Errorf("failed to submit %s after %d attempts: %w", agg.Directory, attempt, err)
	}

	logger.Debug("aggregate delivered", "directory", agg.Directory, "keystrokes", agg.Keystrokes)
	return nil
}

func (s *HTTPSink) post(ctx context.Context, body []byte, batchID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create ingest request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if batchID != "" {
		req.Header.Set("X-Batch-ID", batchID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ingest request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return backoff.Permanent(statusErr)
	}
	return statusErr
}
