package etcd

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/Sh00ty/rendezvous/internal/models"
)

const (
	defaultKeyPrefix = "/rendezvous/records"
)

func recordKey(prefix string, name string) string {
	return path.Join(prefix, name)
}

// Backend keeps records under a key prefix. Published keys are attached to
// the lease of the publisher's session, so the record of a crashed root
// expires after the session TTL.
type Backend struct {
	etcd       *clientv3.Client
	prefix     string
	sessionTTL uint8

	mu      sync.Mutex
	session *concurrency.Session
}

func NewBackend(ctx context.Context, hosts []string, prefix string, ttlUntilDeathInSec uint8) (*Backend, error) {
	clnt, err := clientv3.New(clientv3.Config{
		Endpoints: hosts,
		Context:   ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return newBackend(clnt, prefix, ttlUntilDeathInSec), nil
}

func newBackend(clnt *clientv3.Client, prefix string, ttl uint8) *Backend {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl == 0 {
		ttl = 10
	}
	return &Backend{
		etcd:       clnt,
		prefix:     prefix,
		sessionTTL: ttl,
	}
}

func (b *Backend) Publish(ctx context.Context, name string, endpoint string) error {
	leaseID, err := b.acquireSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire etcd session: %w", err)
	}
	key := recordKey(b.prefix, name)
	resp, err := b.etcd.Txn(ctx).If(
		clientv3.Compare(clientv3.CreateRevision(key), "=", 0),
	).Then(
		clientv3.OpPut(key, endpoint, clientv3.WithLease(leaseID)),
	).Commit()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("publish %s: %w", key, models.ErrAlreadyPublished)
	}
	return nil
}

func (b *Backend) Resolve(ctx context.Context, name string) (string, error) {
	key := recordKey(b.prefix, name)
	resp, err := b.etcd.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 || len(resp.Kvs[0].Value) == 0 {
		return "", fmt.Errorf("resolve %s: %w", key, models.ErrNotFound)
	}
	return string(resp.Kvs[0].Value), nil
}

func (b *Backend) Retract(ctx context.Context, name string) error {
	key := recordKey(b.prefix, name)
	resp, err := b.etcd.Txn(ctx).If(
		clientv3.Compare(clientv3.CreateRevision(key), ">", 0),
	).Then(
		clientv3.OpDelete(key),
	).Commit()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("retract %s: %w", key, models.ErrNotFound)
	}
	return nil
}

func (b *Backend) acquireSession(ctx context.Context) (clientv3.LeaseID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session != nil {
		select {
		case <-b.session.Done():
			log.Warn().Msg("etcd session expired, creating a new one")
			b.session = nil
		default:
			return b.session.Lease(), nil
		}
	}
	session, err := concurrency.NewSession(
		b.etcd,
		concurrency.WithContext(context.WithoutCancel(ctx)),
		concurrency.WithTTL(int(b.sessionTTL)),
	)
	if err != nil {
		return 0, fmt.Errorf("creating session: %w", err)
	}
	b.session = session
	return session.Lease(), nil
}

func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	session := b.session
	b.session = nil
	b.mu.Unlock()

	if session != nil {
		err := session.Close()
		if err != nil {
			log.Error().Err(err).Msg("error during closing etcd session")
		}
	}
	return b.etcd.Close()
}
