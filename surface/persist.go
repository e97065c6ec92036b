package surface

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Persister receives mutation requests and hands back the ids of the
// records it created.
type Persister interface {
	CreateNode(ctx context.Context, graphID, name string) (string, error)
	CreateLink(ctx context.Context, graphID, sourceID, targetID string) (string, error)
}

// BreakerConfig holds configuration for the circuit breaker around a
// Persister.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a forgiving breaker configuration.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// breakerPersister fails fast once the wrapped Persister keeps failing, so
// mutation requests do not pile up behind a dead store.
type breakerPersister struct {
	next Persister
	cb   *gobreaker.CircuitBreaker
}

func newBreakerPersister(next Persister, config BreakerConfig, logger *zap.Logger) *breakerPersister {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Persister circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &breakerPersister{next: next, cb: cb}
}

func (p *breakerPersister) CreateNode(ctx context.Context, graphID, name string) (string, error) {
	id, err := p.cb.Execute(func() (interface{}, error) {
		return p.next.CreateNode(ctx, graphID, name)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}

func (p *breakerPersister) CreateLink(ctx context.Context, graphID, sourceID, targetID string) (string, error) {
	id, err := p.cb.Execute(func() (interface{}, error) {
		return p.next.CreateLink(ctx, graphID, sourceID, targetID)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}
