package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/rendezvous/internal/discovery"
	"github.com/Sh00ty/rendezvous/internal/discovery/etcd"
	"github.com/Sh00ty/rendezvous/internal/discovery/file"
	"github.com/Sh00ty/rendezvous/internal/discovery/gossip"
	"github.com/Sh00ty/rendezvous/internal/discovery/nameserver"
	"github.com/Sh00ty/rendezvous/internal/discovery/postgres"
)

// newBackend builds the configured discovery backend. The returned func
// releases it and is never nil.
func newBackend(ctx context.Context, cfg Config) (discovery.Backend, func(), error) {
	switch cfg.DiscoveryBackend {
	case "", "file":
		backend, err := file.NewBackend(cfg.DiscoveryDir)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() {}, nil

	case "etcd":
		if len(cfg.EtcdAddr) == 0 {
			return nil, nil, fmt.Errorf("ETCD_ADDR is required for the etcd backend")
		}
		backend, err := etcd.NewBackend(ctx, cfg.EtcdAddr, cfg.EtcdPrefix, cfg.EtcdSessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := backend.Close(closeCtx)
			if err != nil {
				log.Error().Err(err).Msg("failed to close etcd backend")
			}
		}, nil

	case "postgres":
		backend, err := postgres.NewRepo(
			ctx,
			cfg.DatabaseUser,
			cfg.DatabasePassword,
			cfg.DatabaseHost,
			cfg.DatabasePort,
		)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil

	case "gossip":
		gossipCfg := cfg.Gossip
		if gossipCfg.NodeName == "" {
			gossipCfg.NodeName = fmt.Sprintf("worker-%d", cfg.WorkerID)
		}
		backend, err := gossip.New(ctx, gossipCfg)
		if err != nil {
			return nil, nil, err
		}
		err = backend.Join(ctx)
		if err != nil {
			_ = backend.GracefullyClose(time.Second)
			return nil, nil, err
		}
		return backend, func() {
			err := backend.GracefullyClose(5 * time.Second)
			if err != nil {
				log.Error().Err(err).Msg("failed to leave gossip cluster")
			}
		}, nil

	case "nameserver":
		if cfg.NameServerAddr == "" {
			return nil, nil, fmt.Errorf("NAMESERVER_ADDR is required for the nameserver backend")
		}
		backend, err := nameserver.NewClient(cfg.NameServerAddr)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() {
			_ = backend.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown discovery backend %q", cfg.DiscoveryBackend)
}
