package main

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sh00ty/rendezvous/internal/discovery/gossip"
	"github.com/Sh00ty/rendezvous/internal/resolver"
	"github.com/Sh00ty/rendezvous/internal/session"
	"github.com/Sh00ty/rendezvous/internal/transport/tcp"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

type Config struct {
	LoggerLevel  string `envconfig:"LOGGER_LEVEL,optional"`
	WorkerID     int    `envconfig:"WORKER_ID"`
	TotalWorkers int    `envconfig:"TOTAL_WORKERS"`

	Session   session.Config
	Resolver  resolver.Config
	Transport tcp.Config

	DiscoveryBackend string `envconfig:"DISCOVERY_BACKEND,default=file"`
	DiscoveryDir     string `envconfig:"DISCOVERY_DIR,optional"`

	EtcdAddr       []string `envconfig:"ETCD_ADDR,optional"`
	EtcdPrefix     string   `envconfig:"ETCD_PREFIX,optional"`
	EtcdSessionTTL uint8    `envconfig:"ETCD_SESSION_TTL,optional"`

	DatabaseHost     string `envconfig:"DATABASE_HOST,optional"`
	DatabaseUser     string `envconfig:"DATABASE_USER,optional"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD,optional"`
	DatabasePort     uint16 `envconfig:"DATABASE_PORT,optional"`

	Gossip gossip.Config

	NameServerAddr string `envconfig:"NAMESERVER_ADDR,optional"`

	StatsdAddr       string        `envconfig:"STATSD_ADDR,optional"`
	EventsKafkaAddr  string        `envconfig:"EVENTS_KAFKA_ADDR,optional"`
	EventsKafkaTopic string        `envconfig:"EVENTS_KAFKA_TOPIC,default=rendezvous-events"`
	EventsRetry      time.Duration `envconfig:"EVENTS_RETRY_INTERVAL,default=1s"`

	HoldAfterComplete time.Duration `envconfig:"HOLD_AFTER_COMPLETE,optional"`
}
