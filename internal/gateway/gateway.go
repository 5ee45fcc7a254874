package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ackinacki-farmer/internal/logging"
	"github.com/ackinacki-farmer/internal/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const DefaultTimeout = 60 * time.Second

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 10 * 1024 * 1024

// Route is a way out to the network, typically a proxy handle.
type Route interface {
	HTTPClient() *http.Client
	String() string
}

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{}
	Route   Route
	Retry   bool
	Account string
}

// Result is the outcome of Do. Failures are values, never errors or panics.
type Result struct {
	Success   bool
	Data      json.RawMessage
	Status    int
	Error     string
	ErrorData json.RawMessage
	Attempts  int
}

// Decode unmarshals the response payload into v.
func (r Result) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type Options struct {
	Timeout  time.Duration
	Backoff  Backoff
	Headers  map[string]string
	Limiter  *rate.Limiter
	ErrorLog *logging.ErrorLog
	Metrics  *metrics.Collector
}

type Gateway struct {
	timeout  time.Duration
	backoff  Backoff
	headers  map[string]string
	limiter  *rate.Limiter
	errorLog *logging.ErrorLog
	metrics  *metrics.Collector
	direct   *http.Client
}

// DefaultHeaders is the browser-like header set sent with every call.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":             "application/json, text/plain, */*",
		"Accept-Language":    "vi-VN,vi;q=0.9,fr-FR;q=0.8,fr;q=0.7,en-US;q=0.6,en;q=0.5",
		"Origin":             "https://t.ackinacki.com",
		"Referer":            "https://t.ackinacki.com/",
		"Sec-Ch-Ua":          `"Not/A)Brand";v="99", "Google Chrome";v="115", "Chromium";v="115"`,
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": `"Windows"`,
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "cross-site",
		"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	}
}

func New(opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Headers == nil {
		opts.Headers = DefaultHeaders()
	}

	return &Gateway{
		timeout:  opts.Timeout,
		backoff:  opts.Backoff,
		headers:  opts.Headers,
		limiter:  opts.Limiter,
		errorLog: opts.ErrorLog,
		metrics:  opts.Metrics,
		direct:   NewClient(nil, nil, opts.Timeout),
	}
}

// DialContextFunc matches net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// NewTransport builds the transport tuning shared by every route. proxy and
// dial may be nil for a direct connection.
func NewTransport(proxy func(*http.Request) (*url.URL, error), dial DialContextFunc, timeout time.Duration) *http.Transport {
	if dial == nil {
		dial = (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}

	return &http.Transport{
		Proxy:                 proxy,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// NewClient wraps NewTransport in a client with the fixed timeout.
func NewClient(proxy func(*http.Request) (*url.URL, error), dial DialContextFunc, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewTransport(proxy, dial, timeout),
		Timeout:   timeout,
	}
}

// Do issues req, retrying per the backoff policy when req.Retry is set.
// Every failed attempt is appended to the error log.
func (g *Gateway) Do(ctx context.Context, req Request) Result {
	maxAttempts := g.backoff.attempts(req.Retry)
	client := g.direct
	routeLabel := "direct"
	if req.Route != nil {
		client = req.Route.HTTPClient()
		routeLabel = req.Route.String()
	}

	var result Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result = g.attempt(ctx, client, req)
		result.Attempts = attempt
		if result.Success {
			return result
		}

		g.errorLog.Append(fmt.Sprintf("Attempt %d failed for %s %s: %s", attempt, req.Method, req.URL, result.Error), req.Account, routeLabel)

		if attempt < maxAttempts {
			log.WithFields(log.Fields{
				"account": req.Account,
				"route":   routeLabel,
			}).Warnf("Retrying %s %s (%d/%d)...", req.Method, req.URL, attempt, maxAttempts)

			if err := g.backoff.Pause(ctx); err != nil {
				result.Error = fmt.Sprintf("%s (retry aborted: %v)", result.Error, err)
				return result
			}
		}
	}

	return result
}

func (g *Gateway) attempt(ctx context.Context, client *http.Client, req Request) Result {
	start := time.Now()
	result := g.send(ctx, client, req)
	if g.metrics != nil {
		g.metrics.RecordRequest(req.Method, result.Success, time.Since(start).Seconds())
	}
	return result
}

func (g *Gateway) send(ctx context.Context, client *http.Client, req Request) Result {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Result{Error: fmt.Sprintf("rate limiter: %v", err)}
		}
	}

	var body io.Reader
	if req.Method != http.MethodGet {
		// Mutating calls always carry a JSON object, even when empty.
		payload := req.Body
		if payload == nil {
			payload = struct{}{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return Result{Error: fmt.Sprintf("encode body: %v", err)}
		}
		body = bytes.NewReader(data)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, req.URL, body)
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	for k, v := range g.headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{Status: resp.StatusCode, Error: fmt.Sprintf("read body: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result := Result{
			Status: resp.StatusCode,
			Error:  errorMessage(resp.StatusCode, data),
		}
		if json.Valid(data) {
			result.ErrorData = data
		}
		return result
	}

	return Result{Success: true, Data: data, Status: resp.StatusCode}
}

// errorMessage prefers the "message" field of a JSON error body.
func errorMessage(status int, data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}
