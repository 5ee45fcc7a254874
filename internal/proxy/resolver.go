package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ackinacki-farmer/internal/gateway"
	log "github.com/sirupsen/logrus"
	netproxy "golang.org/x/net/proxy"
)

const DefaultIPCheckURL = "https://api.ipify.org?format=json"

// Handle is a reusable connection route through one proxy endpoint.
type Handle struct {
	Index    int
	Endpoint string

	label  string
	client *http.Client
}

func (h *Handle) HTTPClient() *http.Client { return h.client }

// String is the endpoint without credentials.
func (h *Handle) String() string { return h.label }

type Resolver struct {
	endpoints  []string
	timeout    time.Duration
	backoff    gateway.Backoff
	ipCheckURL string

	mu      sync.RWMutex
	handles map[int]*Handle
}

type Options struct {
	Timeout    time.Duration
	Backoff    gateway.Backoff
	IPCheckURL string
}

func NewResolver(endpoints []string, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = gateway.DefaultTimeout
	}
	if opts.IPCheckURL == "" {
		opts.IPCheckURL = DefaultIPCheckURL
	}

	return &Resolver{
		endpoints:  endpoints,
		timeout:    opts.Timeout,
		backoff:    opts.Backoff,
		ipCheckURL: opts.IPCheckURL,
		handles:    make(map[int]*Handle),
	}
}

// Resolve returns the cached handle for index, building it on first use.
// It returns nil when no usable proxy is configured at index, or on a nil
// resolver.
func (r *Resolver) Resolve(index int) *Handle {
	if r == nil || index < 0 || index >= len(r.endpoints) {
		return nil
	}

	r.mu.RLock()
	handle, exists := r.handles[index]
	r.mu.RUnlock()

	if exists {
		return handle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if handle, exists := r.handles[index]; exists {
		return handle
	}

	handle, err := newHandle(index, r.endpoints[index], r.timeout)
	if err != nil {
		log.Errorf("Error creating proxy handle for proxy %d: %v", index+1, err)
		handle = nil
	}
	r.handles[index] = handle

	return handle
}

func newHandle(index int, endpoint string, timeout time.Duration) (*Handle, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse proxy URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy URL %q has no host", Redact(endpoint))
	}

	var client *http.Client
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		client = gateway.NewClient(http.ProxyURL(u), nil, timeout)

	case "socks5", "socks5h":
		dial, err := socksDialer(u, timeout)
		if err != nil {
			return nil, err
		}
		client = gateway.NewClient(nil, dial, timeout)

	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	return &Handle{
		Index:    index,
		Endpoint: endpoint,
		label:    u.Host,
		client:   client,
	}, nil
}

func socksDialer(u *url.URL, timeout time.Duration) (gateway.DialContextFunc, error) {
	var auth *netproxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &netproxy.Auth{
			User:     u.User.Username(),
			Password: pass,
		}
	}

	forward := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	dialer, err := netproxy.SOCKS5("tcp", u.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 dialer error: %w", err)
	}

	if cd, ok := dialer.(netproxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// VerifyEgressIP asks the IP echo service which address h exits from,
// retrying with the gateway backoff policy.
func (r *Resolver) VerifyEgressIP(ctx context.Context, h *Handle) (string, error) {
	if h == nil {
		return "", fmt.Errorf("no proxy handle")
	}

	attempts := r.backoff.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ip, err := r.fetchIP(ctx, h)
		if err == nil {
			return ip, nil
		}
		lastErr = err

		if attempt < attempts {
			log.Warnf("Proxy %s IP check attempt %d failed, retrying...", h, attempt)
			if err := r.backoff.Pause(ctx); err != nil {
				break
			}
		}
	}

	return "", fmt.Errorf("proxy IP check failed after %d attempts: %w", attempts, lastErr)
}

func (r *Resolver) fetchIP(ctx context.Context, h *Handle) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.ipCheckURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode IP response: %w", err)
	}
	if body.IP == "" {
		return "", fmt.Errorf("IP response has no ip field")
	}

	return body.IP, nil
}

// Redact strips credentials from an endpoint for display.
func Redact(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	if at := strings.LastIndex(endpoint, "@"); at != -1 {
		return endpoint[at+1:]
	}
	return endpoint
}
