package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/domain/core/aggregates"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// maxReportBytes bounds how much of a runner response is read
const maxReportBytes = 1 << 20

// RunnerConfig configures the HTTP preview runner client
type RunnerConfig struct {
	BaseURL      string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// The breaker opens after TripAfter consecutive failures and probes again
	// after OpenTimeout
	TripAfter   uint32
	OpenTimeout time.Duration
}

// DefaultRunnerConfig returns the default runner configuration for baseURL
func DefaultRunnerConfig(baseURL string) RunnerConfig {
	return RunnerConfig{
		BaseURL:      baseURL,
		RetryMax:     2,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		TripAfter:    5,
		OpenTimeout:  30 * time.Second,
	}
}

// runRequest is the body POSTed to the runner
type runRequest struct {
	Blueprint aggregates.Document `json:"blueprint"`
}

// rejectedError is a 4xx answer. The runner is healthy, so the breaker does
// not count it.
type rejectedError struct {
	status int
	body   string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("preview runner rejected the request (%d): %s", e.status, e.body)
}

// HTTPRunner runs previews on a remote sandbox over HTTP. Transient failures
// are retried and repeated failures open a circuit breaker so a dead runner
// is not hammered while editors keep previewing.
type HTTPRunner struct {
	client  *retryablehttp.Client
	breaker *gobreaker.CircuitBreaker
	url     string
	logger  *zap.Logger
}

// NewHTTPRunner creates a new HTTP preview runner
func NewHTTPRunner(cfg RunnerConfig, logger *zap.Logger) *HTTPRunner {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.Logger = nil
	// Hand the last response back instead of a generic "giving up" error
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	tripAfter := cfg.TripAfter
	if tripAfter == 0 {
		tripAfter = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "preview-runner",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			var rejected *rejectedError
			return err == nil ||
				errors.As(err, &rejected) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &HTTPRunner{
		client:  client,
		breaker: breaker,
		url:     strings.TrimRight(cfg.BaseURL, "/") + "/run",
		logger:  logger,
	}
}

// Run implements ports.PreviewRunner
func (r *HTTPRunner) Run(ctx context.Context, blueprint *aggregates.Blueprint) (*ports.PreviewReport, error) {
	if blueprint == nil {
		return nil, pkgerrors.NewValidationError("blueprint is required")
	}
	body, err := json.Marshal(runRequest{Blueprint: blueprint.ToDocument()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview request: %w", err)
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.post(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, pkgerrors.NewUnavailableError("preview runner").WithCause(err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return result.(*ports.PreviewReport), nil
}

// State reports the breaker state, for readiness checks
func (r *HTTPRunner) State() gobreaker.State {
	return r.breaker.State()
}

func (r *HTTPRunner) post(ctx context.Context, body []byte) (*ports.PreviewReport, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preview runner request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read preview report: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("preview runner failed with status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &rejectedError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var report ports.PreviewReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("malformed preview report: %w", err)
	}

	r.logger.Debug("Preview run finished",
		zap.Bool("ok", report.OK),
		zap.Int("issues", len(report.Errors)),
		zap.Duration("duration", time.Since(start)),
	)
	return &report, nil
}
