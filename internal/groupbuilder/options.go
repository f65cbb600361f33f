package groupbuilder

import (
	"github.com/rs/zerolog"

	"github.com/Sh00ty/rendezvous/internal/metrics"
)

type Option func(o *option)

type option struct {
	turnstile Turnstile
	metrics   metrics.Metrics
	notifier  Notifier
	session   string
	logger    zerolog.Logger
}

// WithTurnstile makes the root admit each joiner before accepting it.
func WithTurnstile(t Turnstile) Option {
	return func(o *option) {
		o.turnstile = t
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(o *option) {
		o.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *option) {
		o.notifier = n
	}
}

func WithSession(id string) Option {
	return func(o *option) {
		o.session = id
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *option) {
		o.logger = logger
	}
}
