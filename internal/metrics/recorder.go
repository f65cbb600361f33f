package metrics

import (
	"sync"
	"time"
)

// Recorder keeps metrics in memory. Tests use it to check what a component
// reported.
type Recorder struct {
	mu        sync.Mutex
	counters  map[string]int
	gauges    map[string]int
	durations map[string][]time.Duration
}

func NewRecorder() *Recorder {
	return &Recorder{
		counters:  make(map[string]int),
		gauges:    make(map[string]int),
		durations: make(map[string][]time.Duration),
	}
}

func (r *Recorder) Increment(metric string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[metric]++
}

func (r *Recorder) Duration(metric string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[metric] = append(r.durations[metric], d)
}

func (r *Recorder) Gauge(metric string, value int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[metric] = value
}

func (r *Recorder) Counter(metric string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[metric]
}

func (r *Recorder) GaugeValue(metric string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[metric]
}

func (r *Recorder) Durations(metric string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.durations[metric])
}
