package recovery

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var errWorkerFailure = errors.New("worker reported task failure")

// BreakerConfig shapes the per-worker circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32        // Trip threshold
	OpenTimeout         time.Duration // Time quarantined before probing again
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// BreakerRegistry manages one circuit breaker per worker. A worker that
// keeps failing tasks is quarantined: the assignment engine skips it
// until the breaker half-opens.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewBreakerRegistry creates a breaker registry.
func NewBreakerRegistry(cfg BreakerConfig, logger *zap.Logger) *BreakerRegistry {
	if cfg.ConsecutiveFailures == 0 {
		cfg = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

func (r *BreakerRegistry) get(workerID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[workerID]; ok {
		return cb
	}

	logger := r.logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        workerID,
		MaxRequests: 1, // one probe assignment while half-open
		Interval:    0,
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("worker breaker state change",
				zap.String("worker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	r.breakers[workerID] = cb
	return cb
}

// Record feeds a task outcome into the worker's breaker.
func (r *BreakerRegistry) Record(workerID string, failed bool) {
	cb := r.get(workerID)
	_, _ = cb.Execute(func() (interface{}, error) {
		if failed {
			return nil, errWorkerFailure
		}
		return nil, nil
	})
}

// Available reports whether the worker may receive assignments. Open
// breakers quarantine the worker; half-open lets one probe through.
func (r *BreakerRegistry) Available(workerID string) bool {
	return r.get(workerID).State() != gobreaker.StateOpen
}
