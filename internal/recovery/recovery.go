// Package recovery classifies task failures and decides what happens
// next: retry, park on a missing dependency, widen the eligible worker
// set, or give up. Classification is structured caller input — this
// package never infers root cause from free text.
package recovery

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Classification is the structured failure category reported alongside
// a failed event.
type Classification string

const (
	ClassTransient          Classification = "transient"
	ClassDependencyMissing  Classification = "dependency-missing"
	ClassCapabilityMismatch Classification = "capability-mismatch"
	ClassUnrecoverable      Classification = "unrecoverable"

	// ClassCancelled marks transitions caused by explicit cancellation
	// rather than execution failure.
	ClassCancelled Classification = "cancelled"
)

// Valid reports whether the classification is one the coordinator
// understands. Unknown classifications are treated as unrecoverable by
// the caller.
func (c Classification) Valid() bool {
	switch c {
	case ClassTransient, ClassDependencyMissing, ClassCapabilityMismatch, ClassUnrecoverable, ClassCancelled:
		return true
	}
	return false
}

// Action is the coordinator's verdict on a failed task.
type Action int

const (
	ActionRetry     Action = iota // Re-enqueue as pending after Delay
	ActionAwaitDep                // Stay failed until AwaitDep completes
	ActionWiden                   // Re-enqueue with relaxed capability matching
	ActionBlock                   // Terminal; external intervention required
)

// Decision carries the action plus its parameters.
type Decision struct {
	Action   Action
	Delay    time.Duration // Retry hold-off, ActionRetry only
	AwaitDep string        // Dependency to wait on, ActionAwaitDep only
}

// Metadata is the structured context submitted with a failure event.
type Metadata struct {
	MissingDependency string // dependency-missing: the absent prerequisite
}

// RetryConfig shapes the per-task exponential backoff between retries.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default backoff shape.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Coordinator applies the recovery policy. It keeps one backoff policy
// per task so consecutive transient failures back off exponentially.
type Coordinator struct {
	maxRetries int
	retryCfg   RetryConfig
	policies   map[string]*backoff.ExponentialBackOff
	logger     *zap.Logger
}

// New creates a coordinator. maxRetries bounds transient re-enqueues
// per task (default 3 when <= 0).
func New(maxRetries int, retryCfg RetryConfig, logger *zap.Logger) *Coordinator {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		maxRetries: maxRetries,
		retryCfg:   retryCfg,
		policies:   make(map[string]*backoff.ExponentialBackOff),
		logger:     logger,
	}
}

// Decide maps a failure to a recovery decision.
//
// transient            -> retry while retryCount < max, else block
// dependency-missing   -> park until the missing dependency completes
// capability-mismatch  -> re-enqueue with the worker set widened
// unrecoverable        -> block immediately, bypassing the retry budget
func (c *Coordinator) Decide(taskID string, retryCount int, class Classification, meta Metadata) Decision {
	switch class {
	case ClassTransient:
		if retryCount >= c.maxRetries {
			c.logger.Warn("retry budget exhausted",
				zap.String("task", taskID),
				zap.Int("retries", retryCount))
			return Decision{Action: ActionBlock}
		}
		return Decision{Action: ActionRetry, Delay: c.nextDelay(taskID)}

	case ClassDependencyMissing:
		if meta.MissingDependency == "" {
			// Nothing concrete to wait for; treat as transient.
			if retryCount >= c.maxRetries {
				return Decision{Action: ActionBlock}
			}
			return Decision{Action: ActionRetry, Delay: c.nextDelay(taskID)}
		}
		return Decision{Action: ActionAwaitDep, AwaitDep: meta.MissingDependency}

	case ClassCapabilityMismatch:
		return Decision{Action: ActionWiden}

	default:
		// unrecoverable, cancelled, or anything unknown
		return Decision{Action: ActionBlock}
	}
}

// nextDelay advances the task's backoff policy.
func (c *Coordinator) nextDelay(taskID string) time.Duration {
	p, ok := c.policies[taskID]
	if !ok {
		p = backoff.NewExponentialBackOff()
		p.InitialInterval = c.retryCfg.InitialInterval
		p.MaxInterval = c.retryCfg.MaxInterval
		p.Multiplier = c.retryCfg.Multiplier
		p.RandomizationFactor = c.retryCfg.RandomizationFactor
		p.MaxElapsedTime = 0 // budget is counted in retries, not wall time
		p.Reset()
		c.policies[taskID] = p
	}
	return p.NextBackOff()
}

// Forget drops per-task retry state once a task reaches a terminal
// status.
func (c *Coordinator) Forget(taskID string) {
	delete(c.policies, taskID)
}
