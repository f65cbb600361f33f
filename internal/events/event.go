// Package events reports formation progress of a session. Events go to a
// channel notifier first, a sender drains it into a sink such as Kafka.
package events

import (
	"time"

	"github.com/Sh00ty/rendezvous/internal/models"
)

type Kind string

const (
	KindStarted  Kind = "started"
	KindStep     Kind = "step"
	KindComplete Kind = "complete"
	KindFailed   Kind = "failed"
)

type Event struct {
	Session string          `json:"session"`
	Worker  models.WorkerID `json:"worker"`
	Kind    Kind            `json:"kind"`
	Step    int             `json:"step,omitempty"`
	Size    int             `json:"size,omitempty"`
	Error   string          `json:"error,omitempty"`
	Time    time.Time       `json:"time"`
}
