package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"resumechat/internal/logger"
	"resumechat/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

type response struct {
	StatusCode int
	Body       []byte
}

// Client talks to the resume and chat backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*response]
	log        *logger.Logger
	metrics    *metrics.Recorder
}

// New creates a client. log and recorder may be nil.
func New(cfg Config, log *logger.Logger, recorder *metrics.Recorder) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("backend")

	transport := http.DefaultTransport.(*http.Transport).Clone()
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		log:     log,
		metrics: recorder,
	}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker, log)
	}
	return c, nil
}

func newBreaker(cfg BreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker[*response] {
	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureThreshold
		},
		// Client errors mean the backend is up.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed", logger.Fields("name", name, "from", from.String(), "to", to.String()))
		},
	})
}

type request struct {
	op          string
	method      string
	url         string
	body        []byte
	contentType string
	// anonymous requests go to presigned storage URLs and carry no credentials.
	anonymous bool
}

func (c *Client) do(ctx context.Context, req request) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.BackendRequest(req.op, "throttled")
		return nil, fmt.Errorf("%s: %w", req.op, err)
	}

	execute := func() (*response, error) { return c.send(ctx, req) }

	var (
		resp *response
		err  error
	)
	if c.breaker != nil {
		resp, err = c.breaker.Execute(execute)
	} else {
		resp, err = execute()
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.BackendRequest(req.op, "rejected")
		return nil, fmt.Errorf("%s: %w", req.op, err)
	case err != nil:
		c.metrics.BackendRequest(req.op, "error")
		return nil, err
	}
	c.metrics.BackendRequest(req.op, "ok")
	return resp, nil
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", req.op, err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	requestID := uuid.New().String()
	if !req.anonymous {
		httpReq.Header.Set(requestIDHeader, requestID)
		if c.cfg.Authorization != "" {
			httpReq.Header.Set("Authorization", c.cfg.Authorization)
		}
	}

	log := c.log.WithFields(logger.Fields(logger.FieldRequestID, requestID, "op", req.op))
	log.Debug("backend request", logger.Fields("method", req.method))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.op, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response body: %w", req.op, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		log.Warn("backend request failed", logger.Fields("status", httpResp.StatusCode))
		return nil, &APIError{Op: req.op, StatusCode: httpResp.StatusCode, Body: string(payload)}
	}
	return &response{StatusCode: httpResp.StatusCode, Body: payload}, nil
}

func (c *Client) endpoint(path string) string {
	return c.cfg.BaseURL + path
}

func (c *Client) getJSON(ctx context.Context, op string, url string, out any) (*response, error) {
	resp, err := c.do(ctx, request{op: op, method: http.MethodGet, url: url})
	if err != nil {
		return nil, err
	}
	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, op string, url string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	resp, err := c.do(ctx, request{op: op, method: http.MethodPost, url: url, body: payload, contentType: "application/json"})
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}
