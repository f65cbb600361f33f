package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/rendezvous/internal/models"
)

type Config struct {
	NodeName            string        `envconfig:"GOSSIP_NODE_NAME,optional"`
	BindAddr            string        `envconfig:"GOSSIP_BIND_ADDR,optional"`
	Port                int           `envconfig:"GOSSIP_PORT,optional"`
	GossipProbeInterval time.Duration `envconfig:"GOSSIP_PROBE_INTERVAL,optional"`
	GossipProbeTimeout  time.Duration `envconfig:"GOSSIP_PROBE_TIMEOUT,optional"`
	UpdateTimeout       time.Duration `envconfig:"GOSSIP_UPDATE_TIMEOUT,optional"`
	SeedNodes           []string      `envconfig:"GOSSIP_SEED_NODES,optional"`
}

// Backend carries the records a node publishes in that node's memberlist
// metadata. Every member sees every record once the metadata has been
// gossiped, and a record disappears together with the node that owns it.
type Backend struct {
	list          *memberlist.Memberlist
	records       *localRecords
	seedNodes     []string
	updateTimeout time.Duration
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	const eventBufSize = 256

	records := &localRecords{records: make(map[string]string)}
	events := make(chan memberlist.NodeEvent, eventBufSize)

	config := memberlist.DefaultLocalConfig()
	if cfg.NodeName != "" {
		config.Name = cfg.NodeName
	}
	if cfg.BindAddr != "" {
		config.BindAddr = cfg.BindAddr
	}
	config.BindPort = cfg.Port
	config.AdvertisePort = cfg.Port
	config.LogOutput = io.Discard
	if cfg.GossipProbeInterval > 0 {
		config.ProbeInterval = cfg.GossipProbeInterval
	}
	if cfg.GossipProbeTimeout > 0 {
		config.ProbeTimeout = cfg.GossipProbeTimeout
	}
	config.Delegate = records
	config.Events = &memberlist.ChannelEventDelegate{
		Ch: events,
	}

	ml, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case mlEvent, opened := <-events:
				if !opened {
					return
				}
				log.Debug().Msgf(
					"got event from node %s: type=%d, node.status=%d",
					mlEvent.Node.Name,
					mlEvent.Event,
					mlEvent.Node.State,
				)
			}
		}
	}()
	updateTimeout := cfg.UpdateTimeout
	if updateTimeout <= 0 {
		updateTimeout = time.Second
	}
	return &Backend{
		list:          ml,
		records:       records,
		seedNodes:     cfg.SeedNodes,
		updateTimeout: updateTimeout,
	}, nil
}

// Join contacts the seed nodes. A node without seeds is the first member.
func (b *Backend) Join(ctx context.Context) error {
	if len(b.seedNodes) == 0 {
		return nil
	}
	_, err := b.list.Join(b.seedNodes)
	if err != nil {
		return fmt.Errorf("failed to join memberlist: %w", err)
	}
	return nil
}

// Address is the host:port other nodes use as a seed for this one.
func (b *Backend) Address() string {
	return b.list.LocalNode().Address()
}

func (b *Backend) Publish(ctx context.Context, name string, endpoint string) error {
	if _, err := b.Resolve(ctx, name); err == nil {
		return fmt.Errorf("publish %s: %w", name, models.ErrAlreadyPublished)
	}
	err := b.records.set(name, endpoint)
	if err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return b.pushUpdate()
}

func (b *Backend) Resolve(ctx context.Context, name string) (string, error) {
	if endpoint, ok := b.records.get(name); ok {
		return endpoint, nil
	}
	for _, node := range b.list.Members() {
		if node.Name == b.list.LocalNode().Name || len(node.Meta) == 0 {
			continue
		}
		remote, err := decodeMeta(node.Meta)
		if err != nil {
			log.Warn().Err(err).Msgf("skip broken metadata of node %s", node.Name)
			continue
		}
		if endpoint, ok := remote[name]; ok && endpoint != "" {
			return endpoint, nil
		}
	}
	return "", fmt.Errorf("resolve %s: %w", name, models.ErrNotFound)
}

// Retract only removes records published through this node.
func (b *Backend) Retract(ctx context.Context, name string) error {
	if !b.records.remove(name) {
		return fmt.Errorf("retract %s: %w", name, models.ErrNotFound)
	}
	return b.pushUpdate()
}

func (b *Backend) pushUpdate() error {
	err := b.list.UpdateNode(b.updateTimeout)
	if err != nil {
		return fmt.Errorf("failed to gossip node metadata: %w", err)
	}
	return nil
}

func (b *Backend) GracefullyClose(timeout time.Duration) error {
	log.Warn().Msg("start gracefull leaving from gossip cluster")

	err := b.list.Leave(timeout)
	if err != nil {
		log.Error().Err(err).Msg("failed to leave gossip cluster")
	}
	return b.list.Shutdown()
}

type localRecords struct {
	mu      sync.Mutex
	records map[string]string
}

func (r *localRecords) set(name string, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[name]; exists {
		return models.ErrAlreadyPublished
	}
	r.records[name] = endpoint
	meta, err := json.Marshal(r.records)
	if err != nil {
		delete(r.records, name)
		return err
	}
	if len(meta) > memberlist.MetaMaxSize {
		delete(r.records, name)
		return fmt.Errorf("node metadata exceeds %d bytes", memberlist.MetaMaxSize)
	}
	return nil
}

func (r *localRecords) get(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	endpoint, ok := r.records[name]
	return endpoint, ok
}

func (r *localRecords) remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[name]; !exists {
		return false
	}
	delete(r.records, name)
	return true
}

func (r *localRecords) NodeMeta(limit int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := json.Marshal(r.records)
	if err != nil || len(meta) > limit {
		return nil
	}
	return meta
}

func (r *localRecords) NotifyMsg([]byte) {}

func (r *localRecords) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

func (r *localRecords) LocalState(join bool) []byte {
	return nil
}

func (r *localRecords) MergeRemoteState(buf []byte, join bool) {}

func decodeMeta(meta []byte) (map[string]string, error) {
	records := make(map[string]string)
	err := json.Unmarshal(meta, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to decode node metadata: %w", err)
	}
	return records, nil
}
