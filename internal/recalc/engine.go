// Package recalc evaluates derived attributes as an explicit dependency graph.
//
// Every document owns one Engine. Mutations enter through Do, which holds the
// engine lock, runs the mutation and then drains the rule queue until no rule
// produces further work. Rules that need a remote collaborator use Spawn: the
// call runs on its own goroutine and its result is applied back under the lock,
// followed by another flush. Readers therefore never see a half-applied pass.
package recalc

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxSteps bounds the number of rule runs in one flush.
const DefaultMaxSteps = 10000

var (
	// ErrNoFixedPoint is returned when a flush exceeds its step bound.
	ErrNoFixedPoint = errors.New("recalc: graph did not settle")
	// ErrClosed is returned by Do after Close.
	ErrClosed = errors.New("recalc: engine closed")
)

// Attr names an attribute of a node.
type Attr string

// Config collects optional engine dependencies.
type Config struct {
	Logger   zerolog.Logger
	Metrics  *Metrics
	MaxSteps int
}

// Engine serializes access to one document graph.
type Engine struct {
	mu       sync.Mutex
	queue    []*Rule
	maxSteps int
	logger   zerolog.Logger
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	inflight int
	idle     chan struct{}
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	idle := make(chan struct{})
	close(idle)
	return &Engine{
		maxSteps: maxSteps,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		idle:     idle,
	}
}

// Do runs fn under the engine lock and flushes scheduled rules afterwards.
// fn must not call Do or Read on the same engine.
func (e *Engine) Do(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	err := fn()
	if flushErr := e.flush(); flushErr != nil {
		return flushErr
	}
	return err
}

// Read runs fn under the engine lock without flushing.
func (e *Engine) Read(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Schedule queues r unless it is already queued. Callers must hold the lock,
// which is the case inside Do, rules and apply callbacks.
func (e *Engine) Schedule(r *Rule) {
	if r == nil || r.queued {
		return
	}
	r.queued = true
	e.queue = append(e.queue, r)
}

func (e *Engine) flush() error {
	steps := 0
	for len(e.queue) > 0 {
		r := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		r.queued = false
		steps++
		if steps > e.maxSteps {
			for _, pending := range e.queue {
				pending.queued = false
			}
			e.queue = nil
			e.logger.Error().Str("rule", r.name).Int("steps", steps).Msg("recalc flush aborted")
			return ErrNoFixedPoint
		}
		e.metrics.ruleRun(r.name)
		r.run()
	}
	e.queue = nil
	return nil
}

// Spawn starts an asynchronous edge. call runs without the lock; apply runs
// under the lock once call returns, followed by a flush. Spawn itself must be
// called with the lock held.
func Spawn[T any](e *Engine, name string, call func(ctx context.Context) (T, error), apply func(T, error)) {
	if e.closed {
		return
	}
	if e.inflight == 0 {
		e.idle = make(chan struct{})
	}
	e.inflight++
	e.metrics.inflightInc()
	ctx := e.ctx
	go func() {
		result, err := call(ctx)

		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.closed {
			apply(result, err)
			if flushErr := e.flush(); flushErr != nil {
				e.logger.Error().Err(flushErr).Str("edge", name).Msg("recalc async flush")
			}
		}
		e.inflight--
		e.metrics.inflightDec()
		if e.inflight == 0 {
			close(e.idle)
		}
	}()
}

// Wait blocks until no asynchronous edge is in flight.
func (e *Engine) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		if e.inflight == 0 {
			e.mu.Unlock()
			return nil
		}
		idle := e.idle
		e.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels in-flight calls. Results that arrive afterwards are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.queue = nil
	e.cancel()
}

// Logger returns the engine logger.
func (e *Engine) Logger() zerolog.Logger {
	return e.logger
}

// Metrics returns the engine metrics, possibly nil.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}
