package ethereum

import (
	"fmt"
	"sync"
	"time"

	"emberscan/internal/metrics"

	"github.com/ethereum/go-ethereum/ethclient"
)

// BreakerState is the circuit-breaker state of a single RPC provider.
type BreakerState int

const (
	StateHealthy BreakerState = iota
	StateUnhealthy
	StateHalfOpen // probing whether the provider recovered
)

// BreakerConfig holds circuit breaker parameters.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// DefaultBreakerConfig returns the stock circuit breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Provider is one RPC endpoint with health tracking. After
// FailureThreshold consecutive failures it opens; once Cooldown passes it
// half-opens and SuccessThreshold consecutive successes close it again.
type Provider struct {
	Name    string
	URL     string
	Weight  int
	Timeout time.Duration

	client *ethclient.Client
	cfg    BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewProvider dials one RPC endpoint.
func NewProvider(name, url string, weight int, timeout time.Duration, cfg BreakerConfig) (*Provider, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to provider %s: %w", name, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		Name:    name,
		URL:     url,
		Weight:  weight,
		Timeout: timeout,
		client:  client,
		cfg:     cfg,
		state:   StateHealthy,
	}, nil
}

// Healthy reports whether the provider may take a call, moving an open
// breaker to half-open once the cooldown has passed.
func (p *Provider) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateUnhealthy && time.Since(p.lastFailure) > p.cfg.Cooldown {
		p.state = StateHalfOpen
		p.successes = 0
	}
	return p.state != StateUnhealthy
}

func (p *Provider) recordSuccess(method string) {
	metrics.RPCRequestsTotal.WithLabelValues(p.Name, method).Inc()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures = 0
	switch p.state {
	case StateHalfOpen:
		p.successes++
		if p.successes >= p.cfg.SuccessThreshold {
			p.state = StateHealthy
			p.successes = 0
		}
	case StateUnhealthy:
		p.state = StateHalfOpen
	}
}

func (p *Provider) recordFailure(method string) {
	metrics.RPCRequestsTotal.WithLabelValues(p.Name, method).Inc()
	metrics.RPCErrorsTotal.WithLabelValues(p.Name, method).Inc()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastFailure = time.Now()
	p.successes = 0
	if p.state == StateHalfOpen {
		p.state = StateUnhealthy
		return
	}
	p.failures++
	if p.failures >= p.cfg.FailureThreshold {
		p.state = StateUnhealthy
	}
}

// State returns the current breaker state, for the health endpoint.
func (p *Provider) State() BreakerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close closes the provider connection.
func (p *Provider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
