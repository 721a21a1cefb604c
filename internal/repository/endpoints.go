package repository

import (
	"math/rand"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	minTTL = 30 * time.Second
	maxTTL = 300 * time.Second
)

// endpointSet is the DNS-cached pool of A records backing one hostname, per
// §4.2 "Endpoint rotation".
type endpointSet struct {
	mu       sync.RWMutex
	host     string
	addrs    []string
	expires  time.Time
	resolver string
}

func newEndpointSet(host, resolver string) *endpointSet {
	return &endpointSet{host: host, resolver: resolver}
}

// pick returns a cached address, refreshing the set first if it has expired.
// On DNS failure the last-known set is retained (§4.2).
func (s *endpointSet) pick() (string, error) {
	s.mu.RLock()
	stale := time.Now().After(s.expires)
	addrs := s.addrs
	s.mu.RUnlock()

	if stale || len(addrs) == 0 {
		if err := s.refresh(); err != nil && len(addrs) == 0 {
			return "", err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.addrs) == 0 {
		return "", errors.Errorf("repository: no resolvable address for %s", s.host)
	}
	return s.addrs[rand.Intn(len(s.addrs))], nil
}

func (s *endpointSet) refresh() error {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(s.host), dns.TypeA)
	m.RecursionDesired = true

	client := new(dns.Client)
	client.Timeout = 5 * time.Second

	in, _, err := client.Exchange(m, s.resolver)
	if err != nil {
		logrus.WithError(err).Warn("repository: dns refresh failed for ", s.host, ", retaining last-known endpoints")
		return err
	}

	addrs := make([]string, 0, len(in.Answer))
	minTTLSeen := uint32(0)
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		addrs = append(addrs, a.A.String())
		hdr := a.Header()
		if minTTLSeen == 0 || hdr.Ttl < minTTLSeen {
			minTTLSeen = hdr.Ttl
		}
	}

	if len(addrs) == 0 {
		return errors.Errorf("repository: no A records for %s", s.host)
	}

	ttl := time.Duration(minTTLSeen) * time.Second
	if ttl < minTTL {
		ttl = minTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}

	s.mu.Lock()
	s.addrs = addrs
	s.expires = time.Now().Add(ttl)
	s.mu.Unlock()

	return nil
}
