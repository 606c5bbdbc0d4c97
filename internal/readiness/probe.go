package readiness

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tridentframe/launcher/internal/domain"
)

// TCPProber succeeds once something accepts a TCP connection on addr.
type TCPProber struct {
	DialTimeout time.Duration
}

// Probe dials addr once.
func (p TCPProber) Probe(ctx context.Context, addr string) error {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// HTTPProber issues GET http://addr<path> and accepts any status below 500.
type HTTPProber struct {
	client *retryablehttp.Client
	path   string
}

// NewHTTPProber creates a prober. Retries inside one probe are kept short;
// the outer poll loop owns the overall deadline.
func NewHTTPProber(path string, requestTimeout time.Duration) *HTTPProber {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = 200 * time.Millisecond
	client.HTTPClient.Timeout = requestTimeout
	client.Logger = nil

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &HTTPProber{client: client, path: path}
}

// Probe performs one request (with the client's own short retries).
func (p *HTTPProber) Probe(ctx context.Context, addr string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+p.path, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

var (
	_ domain.ReadinessProber = TCPProber{}
	_ domain.ReadinessProber = (*HTTPProber)(nil)
)
