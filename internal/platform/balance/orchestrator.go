package balance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Markhorcapital/ledger-listener/pkg/logger"
	"github.com/Markhorcapital/ledger-listener/pkg/retrier"
)

// OrchestratorConfig holds fan-out settings
type OrchestratorConfig struct {
	// CallTimeout bounds one source's fetch, retries included
	CallTimeout time.Duration

	// RetryAttempts is the total number of attempts for non-timeout errors
	RetryAttempts int

	// RetryDelay is the pause between attempts
	RetryDelay time.Duration

	// MaxConcurrency caps in-flight gateway calls
	MaxConcurrency int
}

// DefaultOrchestratorConfig returns the default fan-out configuration
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		CallTimeout:    30 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     100 * time.Millisecond,
		MaxConcurrency: 16,
	}
}

// Validate fills in defaults for unset fields
func (c *OrchestratorConfig) Validate() error {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 16
	}
	return nil
}

// Observer receives one call per settled job
type Observer interface {
	ObserveFetch(venue string, ok bool, d time.Duration)
}

// Job is one unit of fan-out. A job with Err set is reported as failed without a call.
type Job struct {
	Key     SourceKey
	Name    string
	Address string
	Gateway Gateway
	Err     error
}

// Orchestrator queries every source concurrently and always yields one result per job
type Orchestrator struct {
	config   *OrchestratorConfig
	retrier  *retrier.Retrier
	observer Observer
	logger   *logger.Logger
	now      func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(config *OrchestratorConfig, observer Observer, log *logger.Logger) *Orchestrator {
	if config == nil {
		config = DefaultOrchestratorConfig()
	}
	_ = config.Validate()

	return &Orchestrator{
		config: config,
		retrier: retrier.New(
			retrier.WithAttempts(config.RetryAttempts),
			retrier.WithDelay(config.RetryDelay),
			retrier.WithRetryable(isRetryable),
		),
		observer: observer,
		logger:   log.WithComponent("orchestrator"),
		now:      time.Now,
	}
}

// Fetch runs all jobs and waits for every one of them. results[i] belongs to jobs[i].
// Individual failures never cancel siblings and never escape as an error.
func (o *Orchestrator) Fetch(ctx context.Context, jobs []Job) []FetchResult {
	results := make([]FetchResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(o.config.MaxConcurrency)

	for i, job := range jobs {
		g.Go(func() error {
			results[i] = o.run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) run(parent context.Context, job Job) FetchResult {
	parent = logger.WithSource(parent, job.Key.Venue, job.Key.Source)
	log := o.logger.WithContext(parent)
	start := time.Now()
	result := FetchResult{
		Key:      job.Key,
		Name:     job.Name,
		Address:  job.Address,
		Balances: Balances{},
	}

	var err error
	switch {
	case job.Err != nil:
		err = job.Err
	case job.Gateway == nil:
		err = ErrUnsupportedVenue
	default:
		ctx, cancel := context.WithTimeout(parent, o.config.CallTimeout)
		var balances Balances
		balances, result.Attempts, err = retrier.DoWithData(ctx, o.retrier, func(ctx context.Context) (Balances, error) {
			return call(ctx, job.Gateway)
		})
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrFetchTimeout) {
			err = fmt.Errorf("%w after %s: %v", ErrFetchTimeout, o.config.CallTimeout, err)
		}
		cancel()

		if err == nil {
			for _, e := range balances {
				result.Balances.Add(e)
			}
		}
	}

	elapsed := time.Since(start)
	result.FetchedAt = o.now().UTC()

	if err != nil {
		result.Err = err
		log.Error("balance fetch failed",
			"attempts", result.Attempts,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
	} else {
		log.Info("balance fetch succeeded",
			"currencies", len(result.Balances),
			"attempts", result.Attempts,
			"duration_ms", elapsed.Milliseconds())
	}

	if o.observer != nil {
		o.observer.ObserveFetch(job.Key.Venue, err == nil, elapsed)
	}

	return result
}

// call runs the gateway on its own goroutine so a client that ignores ctx
// cannot hold the caller past the deadline.
func call(ctx context.Context, gw Gateway) (Balances, error) {
	type outcome struct {
		balances Balances
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrGatewayPanic, rec)}
			}
		}()
		b, err := gw.FetchBalances(ctx)
		done <- outcome{balances: b, err: err}
	}()

	select {
	case out := <-done:
		return out.balances, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrFetchTimeout
		}
		return nil, ctx.Err()
	}
}

// isRetryable mirrors the exchange-side policy: timeouts fail fast, everything
// transient gets another attempt.
func isRetryable(err error) bool {
	if err == nil || retrier.IsPermanent(err) {
		return false
	}
	if errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrUnsupportedVenue) || errors.Is(err, ErrGatewayPanic) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !IsTimeout(err)
}

// IsTimeout reports whether err is a deadline or an upstream timeout
func IsTimeout(err error) bool {
	if errors.Is(err, ErrFetchTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}
