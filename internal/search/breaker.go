package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	apperrors "github.com/opencourses/catalog-service/pkg/errors"
)

// BreakerConfig holds configuration for the search circuit breaker.
type BreakerConfig struct {
	// Name identifies this breaker (used in metrics and logs).
	Name string

	// MaxRequests is the maximum number of requests allowed in the half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing internal counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio is the ratio of failures to total requests that trips the breaker.
	FailureRatio float64

	// MinRequests is the minimum number of requests needed before the failure ratio is evaluated.
	MinRequests uint32
}

// DefaultBreakerConfig returns sensible defaults for the search breaker.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var searchBreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "search_circuit_breaker_state",
		Help: "Current state of the search circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func init() {
	prometheus.MustRegister(searchBreakerState)
}

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// BreakerEngine wraps an Engine with circuit breaker protection. All
// operations share one breaker, so a flapping cluster degrades writes
// and reads together. A rejected call surfaces as an unavailability
// error for callers to absorb.
type BreakerEngine struct {
	engine  Engine
	breaker *gobreaker.CircuitBreaker[*Result]
	logger  *slog.Logger
	name    string
}

// NewBreakerEngine wraps a search engine with a circuit breaker.
func NewBreakerEngine(engine Engine, cfg BreakerConfig, logger *slog.Logger) *BreakerEngine {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("search circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			searchBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	cb := gobreaker.NewCircuitBreaker[*Result](settings)

	// Set initial state metric.
	searchBreakerState.WithLabelValues(cfg.Name).Set(0)

	return &BreakerEngine{
		engine:  engine,
		breaker: cb,
		logger:  logger,
		name:    cfg.Name,
	}
}

// Index adds or updates a single course document through the breaker.
func (b *BreakerEngine) Index(ctx context.Context, course *SearchableCourse) error {
	_, err := b.breaker.Execute(func() (*Result, error) {
		return nil, b.engine.Index(ctx, course)
	})
	return b.mapErr(err)
}

// Delete removes a course document through the breaker.
func (b *BreakerEngine) Delete(ctx context.Context, id string) error {
	_, err := b.breaker.Execute(func() (*Result, error) {
		return nil, b.engine.Delete(ctx, id)
	})
	return b.mapErr(err)
}

// Search executes a query through the breaker.
func (b *BreakerEngine) Search(ctx context.Context, query *Query) (*Result, error) {
	result, err := b.breaker.Execute(func() (*Result, error) {
		return b.engine.Search(ctx, query)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return result, nil
}

// BulkIndex adds or updates multiple course documents through the breaker.
func (b *BreakerEngine) BulkIndex(ctx context.Context, courses []SearchableCourse) error {
	_, err := b.breaker.Execute(func() (*Result, error) {
		return nil, b.engine.BulkIndex(ctx, courses)
	})
	return b.mapErr(err)
}

// State returns the current state of the circuit breaker.
func (b *BreakerEngine) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerEngine) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Unavailable("search", err)
	}
	return err
}
