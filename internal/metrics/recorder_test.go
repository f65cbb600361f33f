package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	var m Metrics = NewRecorder()
	m.Increment(StepFailed)
	m.Increment(StepFailed)
	m.Gauge(GroupSize, 3)
	m.Gauge(GroupSize, 4)
	m.Duration(StepDuration, time.Millisecond)

	r := m.(*Recorder)
	assert.Equal(t, 2, r.Counter(StepFailed))
	assert.Equal(t, 4, r.GaugeValue(GroupSize))
	assert.Equal(t, 1, r.Durations(StepDuration))
	assert.Equal(t, 0, r.Counter(SessionFailed))
}

func TestStatsdDoesNotBlockWithoutServer(t *testing.T) {
	s := NewStatsd(2, "", "127.0.0.1:1")
	s.Increment(SessionComplete)
	s.Gauge(GroupSize, 2)
	s.Duration(SessionDuration, time.Second)
	assert.NoError(t, s.Close())
}
