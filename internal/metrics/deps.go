package metrics

import "time"

type Metrics interface {
	Increment(string)
	Duration(string, time.Duration)
	Gauge(string, int)
}

const (
	StepDuration    = "rendezvous.step.duration"
	StepFailed      = "rendezvous.step.failed"
	GroupSize       = "rendezvous.group.size"
	SessionDuration = "rendezvous.session.duration"
	SessionComplete = "rendezvous.session.complete"
	SessionFailed   = "rendezvous.session.failed"
)
