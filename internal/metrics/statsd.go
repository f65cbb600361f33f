package metrics

import (
	"strconv"
	"time"

	statsd "github.com/smira/go-statsd"

	"github.com/Sh00ty/rendezvous/internal/models"
)

type Statsd struct {
	client *statsd.Client
}

func NewStatsd(worker models.WorkerID, prefix string, addr string) *Statsd {
	if prefix == "" {
		prefix = "rendezvous."
	}
	clnt := statsd.NewClient(
		addr,
		statsd.MetricPrefix(prefix),
		statsd.DefaultTags(statsd.StringTag("worker", strconv.Itoa(int(worker)))),
	)
	return &Statsd{
		client: clnt,
	}
}

func (s *Statsd) Increment(metric string) {
	s.client.Incr(metric, 1)
}

func (s *Statsd) Duration(metric string, duration time.Duration) {
	s.client.PrecisionTiming(metric, duration)
}

func (s *Statsd) Gauge(metric string, value int) {
	s.client.Gauge(metric, int64(value))
}

// Close flushes buffered metrics.
func (s *Statsd) Close() error {
	return s.client.Close()
}
