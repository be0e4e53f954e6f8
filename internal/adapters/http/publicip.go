package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strings"

	"github.com/bft-labs/clipd/internal/ports"
)

// DefaultEchoURLs are plain-text "what is my IP" services, tried in order.
var DefaultEchoURLs = []string{
	"https://ifconfig.me/ip",
	"https://api.ipify.org",
	"https://ipinfo.io/ip",
}

// maxEchoBody bounds how much of an echo response is read.
const maxEchoBody = 256

// PublicIPResolver looks up this host's public address through echo services.
type PublicIPResolver struct {
	client ports.HTTPClient
	logger ports.Logger
	urls   []string
}

// NewPublicIPResolver creates a resolver. With no urls, DefaultEchoURLs is used.
func NewPublicIPResolver(client ports.HTTPClient, logger ports.Logger, urls ...string) *PublicIPResolver {
	if len(urls) == 0 {
		urls = DefaultEchoURLs
	}
	return &PublicIPResolver{
		client: client,
		logger: logger,
		urls:   urls,
	}
}

// Resolve returns the first valid address any service reports.
func (r *PublicIPResolver) Resolve(ctx context.Context) (net.IP, error) {
	var lastErr error
	for _, url := range r.urls {
		ip, err := r.query(ctx, url)
		if err == nil {
			return ip, nil
		}
		lastErr = err
		r.logger.Debug("public ip lookup failed", ports.String("url", url), ports.Err(err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("resolve public ip: %w", lastErr)
}

func (r *PublicIPResolver) query(ctx context.Context, url string) (net.IP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", "clipd ("+runtime.GOOS+"/"+runtime.GOARCH+")")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEchoBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil {
		return nil, fmt.Errorf("server returned non-address %q", strings.TrimSpace(string(body)))
	}
	return ip, nil
}
