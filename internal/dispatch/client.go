package dispatch

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ClientConfig configures the HTTP dispatcher.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
}

// Client dispatches over JSON/HTTP to {BaseURL}/dispatch.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

type request struct {
	ClassName    string `json:"className"`
	FunctionName string `json:"functionName"`
	Parameters   []any  `json:"parameters"`
}

type response struct {
	Data    json.RawMessage `json:"data"`
	IsError bool            `json:"isError"`
	Message string          `json:"message"`
}

// NewClient constructs a new client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "dispatch").Logger(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_dispatch_requests_total",
			Help: "Dispatch calls by procedure and outcome.",
		}, []string{"procedure", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoicing_dispatch_duration_seconds",
			Help:    "Dispatch call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"procedure"}),
	}
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(c.requests, c.duration)
	}
	return c
}

// Dispatch implements Dispatcher.
func (c *Client) Dispatch(ctx context.Context, recordType, method string, args ...any) (json.RawMessage, error) {
	procedure := recordType + "." + method
	start := time.Now()
	raw, err := c.do(ctx, recordType, method, args)
	c.duration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
		var derr *Error
		if !errors.As(err, &derr) {
			outcome = "transport"
		}
		c.logger.Warn().Err(err).Str("procedure", procedure).Msg("dispatch failed")
	}
	c.requests.WithLabelValues(procedure, outcome).Inc()
	return raw, err
}

func (c *Client) do(ctx context.Context, recordType, method string, args []any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(request{ClassName: recordType, FunctionName: method, Parameters: args})
	if err != nil {
		return nil, fmt.Errorf("dispatch %s.%s: encode: %w", recordType, method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dispatch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s.%s: %w", recordType, method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("dispatch %s.%s: read body: %w", recordType, method, err)
	}

	var out response
	decodeErr := json.Unmarshal(payload, &out)
	if resp.StatusCode >= 400 {
		msg := out.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{RecordType: recordType, Method: method, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("dispatch %s.%s: decode body: %w", recordType, method, decodeErr)
	}
	if out.IsError {
		return nil, &Error{RecordType: recordType, Method: method, Message: out.Message}
	}
	return out.Data, nil
}

// Ping checks that the dispatch endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("dispatch health returned status %d", resp.StatusCode)
	}
	return nil
}
