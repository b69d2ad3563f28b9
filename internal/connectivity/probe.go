package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultProbeInterval = 15 * time.Second
	probeTimeout         = 5 * time.Second
)

// ProbeProvider derives connectivity from a periodic HTTP HEAD probe.
// Daemon deployments have no platform reachability signal, so the probe
// stands in for one.
type ProbeProvider struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]func(online bool)
}

func NewProbeProvider(url string, interval time.Duration, logger *zerolog.Logger) *ProbeProvider {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &ProbeProvider{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: probeTimeout},
		logger:   logger,
		subs:     make(map[int]func(online bool)),
	}
}

// Subscribe registers a callback for probe results.
func (p *ProbeProvider) Subscribe(callback func(online bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.subs[id] = callback

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Start probes immediately and then on every tick until ctx is done.
func (p *ProbeProvider) Start(ctx context.Context) {
	p.notify(p.probe(ctx))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.notify(p.probe(ctx))
		}
	}
}

func (p *ProbeProvider) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Error().Err(err).Msg("Build probe request failed")
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (p *ProbeProvider) notify(online bool) {
	p.mu.Lock()
	callbacks := make([]func(bool), 0, len(p.subs))
	for _, cb := range p.subs {
		callbacks = append(callbacks, cb)
	}
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(online)
	}
}
