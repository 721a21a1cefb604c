package repository

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const (
	maxRetries      = 2
	minRetryInterval = 1000 * time.Millisecond
	maxRetryInterval = 2000 * time.Millisecond
)

// Client is the RepositoryClient (C2): HTTPS access to a cytrus v5 content
// repository at one origin host, with DNS-cached endpoint rotation (§4.2)
// and per-endpoint circuit breaking grounded on matrix/breakers.go.
type Client struct {
	host       string
	scheme     string
	httpClient *http.Client
	endpoints  *endpointSet
	breakers   *endpointBreakers
	preRelease bool
	log        *logrus.Entry
}

// Options configures a new Client.
type Options struct {
	Host       string
	Scheme     string // defaults to "https"
	PreRelease bool
	Resolver   string // DNS server address, host:port; defaults to the system resolver
}

// New builds a Client for one cytrus repository host.
func New(opts Options) *Client {
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "https"
	}

	resolver := opts.Resolver
	if resolver == "" {
		resolver = systemResolver()
	}

	c := &Client{
		host:       opts.Host,
		scheme:     scheme,
		endpoints:  newEndpointSet(opts.Host, resolver),
		breakers:   newEndpointBreakers(),
		preRelease: opts.PreRelease,
		log:        logrus.WithField("repository", opts.Host),
	}
	c.httpClient = &http.Client{Transport: c.transport()}
	return c
}

func systemResolver() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return "8.8.8.8:53"
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// transport dials the currently-rotated endpoint for host, overriding the
// Host header to the original hostname (§4.2).
func (c *Client) transport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: &tls.Config{ServerName: c.host},
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			addr, err := c.endpoints.pick()
			if err != nil {
				return nil, err
			}
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			return dialer.DialContext(ctx, network, net.JoinHostPort(addr, c.portFor()))
		},
	}
}

func (c *Client) portFor() string {
	if c.scheme == "http" {
		return "80"
	}
	return "443"
}
