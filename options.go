package batchmux

import (
	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"batchmux/trace"
)

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger     log.Logger
	registry   *Registry
	registerer prometheus.Registerer
	recorder   trace.Recorder
	stats      *RunStats
	maxPhases  int
}

func defaultOptions() engineOptions {
	return engineOptions{
		logger:   log.NewNopLogger(),
		recorder: trace.Nop{},
	}
}

// normalized returns a validated copy with defaults filled in.
func (o engineOptions) normalized() (engineOptions, error) {
	if o.maxPhases < 0 {
		return o, errors.Wrapf(ErrInvalidOption, "max phases must be >= 0, got %d", o.maxPhases)
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.recorder == nil {
		o.recorder = trace.Nop{}
	}
	return o, nil
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l log.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithRegistry sets the handler registry. Defaults to a fresh registry that
// only knows the built-in SimpleTask handler.
func WithRegistry(r *Registry) Option {
	return func(o *engineOptions) { o.registry = r }
}

// WithRegisterer sets the Prometheus registerer for scheduler metrics. A nil
// registerer (the default) creates unregistered metrics. Engines register
// their metrics once at construction, so reuse one Engine per registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registerer = reg }
}

// WithRecorder sets the trace recorder observing scheduling decisions.
func WithRecorder(rec trace.Recorder) Option {
	return func(o *engineOptions) { o.recorder = rec }
}

// WithRunStats attaches shared live counters to the engine's runs.
func WithRunStats(s *RunStats) Option {
	return func(o *engineOptions) { o.stats = s }
}

// WithMaxPhases caps the number of phases a run may take before aborting
// with ErrPhaseLimit. Zero (the default) means unlimited; a cap guards
// against progression chains that never terminate.
func WithMaxPhases(n int) Option {
	return func(o *engineOptions) { o.maxPhases = n }
}
