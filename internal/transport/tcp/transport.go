package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/transport"
)

const scheme = "tcp://"

var _ transport.Transport = (*Transport)(nil)

type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR,default=127.0.0.1:0"`
	// AdvertiseHost replaces the host of the published endpoint, for
	// listeners bound to a wildcard address.
	AdvertiseHost string        `envconfig:"ADVERTISE_HOST,optional"`
	DialTimeout   time.Duration `envconfig:"DIAL_TIMEOUT,optional"`
	KeepAlive     time.Duration `envconfig:"TCP_KEEPALIVE,optional"`
}

// Transport forms groups over plain TCP connections exchanging CBOR frames.
type Transport struct {
	cfg    Config
	dialer net.Dialer
	log    zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Transport {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	return &Transport{
		cfg: cfg,
		dialer: net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		},
		log: logger.With().Str("component", "tcp-transport").Logger(),
	}
}

type port struct {
	ln       net.Listener
	endpoint string
}

func (p *port) Endpoint() string {
	return p.endpoint
}

func (p *port) Close() error {
	return p.ln.Close()
}

func (p *port) accept(ctx context.Context) (net.Conn, error) {
	tcpLn, ok := p.ln.(*net.TCPListener)
	if ok {
		stop := context.AfterFunc(ctx, func() {
			_ = tcpLn.SetDeadline(time.Now())
		})
		defer stop()
	}
	conn, err := p.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (t *Transport) OpenPort(ctx context.Context) (transport.Port, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", t.cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", t.cfg.ListenAddr, err)
	}
	addr := ln.Addr().String()
	if t.cfg.AdvertiseHost != "" {
		_, portNum, err := net.SplitHostPort(addr)
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("failed to parse listen addr %s: %w", addr, err)
		}
		addr = net.JoinHostPort(t.cfg.AdvertiseHost, portNum)
	}
	return &port{
		ln:       ln,
		endpoint: scheme + addr,
	}, nil
}

// ParseEndpoint returns the host:port of a tcp:// endpoint.
func ParseEndpoint(endpoint string) (string, error) {
	addr, ok := strings.CutPrefix(endpoint, scheme)
	if !ok {
		return "", fmt.Errorf("endpoint %q has no %s scheme", endpoint, scheme)
	}
	host, portNum, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if portNum == "" || portNum == "0" {
		return "", fmt.Errorf("invalid endpoint %q: no port", endpoint)
	}
	return net.JoinHostPort(host, portNum), nil
}

func (t *Transport) Singleton(self models.WorkerID) transport.Group {
	return singleton(self)
}

func asGroup(tg transport.Group) (*group, error) {
	g, ok := tg.(*group)
	if !ok || g == nil {
		return nil, fmt.Errorf("group %T does not belong to the tcp transport", tg)
	}
	if err := g.usable(); err != nil {
		return nil, err
	}
	return g, nil
}

func (t *Transport) Accept(ctx context.Context, tp transport.Port, tg transport.Group) (transport.Conn, error) {
	g, err := asGroup(tg)
	if err != nil {
		return nil, err
	}
	if g.uplink != nil {
		f, err := g.uplink.recv(ctx, frameAccepted)
		if err != nil {
			return nil, err
		}
		return &pending{peer: f.Peer, owner: g}, nil
	}

	p, ok := tp.(*port)
	if !ok || p == nil {
		return nil, errors.New("rank 0 accepts only on its own listening port")
	}
	conn, err := p.accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept on %s: %w", p.endpoint, err)
	}
	l := newLink(conn)
	hello, err := l.recv(ctx, frameHello)
	if err != nil {
		_ = l.close()
		return nil, err
	}
	if slices.Contains(g.members, hello.From) {
		reason := fmt.Sprintf("worker %d is already a member", hello.From)
		_ = l.send(ctx, frame{Kind: frameReject, Reason: reason})
		_ = l.close()
		return nil, errors.New(reason)
	}
	// ranks follow worker ids, so the next joiner is the current size
	next := models.WorkerID(g.Size())
	if hello.From != next {
		reason := fmt.Sprintf("worker %d is out of order, expected worker %d", hello.From, next)
		_ = l.send(ctx, frame{Kind: frameReject, Reason: reason})
		_ = l.close()
		return nil, fmt.Errorf("%w: %s", models.ErrOutOfOrder, reason)
	}
	err = l.send(ctx, frame{Kind: frameWelcome, From: g.self})
	if err != nil {
		_ = l.close()
		return nil, err
	}
	t.log.Debug().Msgf("accepted worker %d from %s", hello.From, conn.RemoteAddr())

	accepted := frame{Kind: frameAccepted, Peer: hello.From}
	for _, member := range g.links[1:] {
		err = member.send(ctx, accepted)
		if err != nil {
			_ = l.close()
			return nil, err
		}
	}
	return &pending{peer: hello.From, link: l, owner: g}, nil
}

func (t *Transport) Connect(ctx context.Context, endpoint string, self transport.Group) (transport.Conn, error) {
	g, err := asGroup(self)
	if err != nil {
		return nil, err
	}
	if g.Size() != 1 {
		return nil, fmt.Errorf("only a singleton group connects, have size %d", g.Size())
	}
	addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	l := newLink(conn)
	err = l.send(ctx, frame{Kind: frameHello, From: g.self})
	if err != nil {
		_ = l.close()
		return nil, err
	}
	welcome, err := l.recv(ctx, frameWelcome)
	if err != nil {
		_ = l.close()
		return nil, err
	}
	return &pending{peer: welcome.From, link: l}, nil
}

func (t *Transport) Merge(ctx context.Context, tg transport.Group, tc transport.Conn, high bool) (transport.Group, error) {
	g, err := asGroup(tg)
	if err != nil {
		return nil, err
	}
	p, ok := tc.(*pending)
	if !ok || p == nil {
		return nil, fmt.Errorf("connection %T does not belong to the tcp transport", tc)
	}
	if p.done {
		return nil, errors.New("connection was already merged or closed")
	}
	p.done = true

	var merged *group
	switch {
	case high:
		merged, err = t.mergeJoiner(ctx, g, p)
	case g.uplink == nil:
		merged, err = t.mergeRoot(ctx, g, p)
	default:
		merged, err = t.mergeMember(ctx, g, p)
	}
	if err != nil {
		if p.link != nil && (high || g.uplink == nil) {
			_ = p.link.close()
		}
		return nil, err
	}
	g.retired = true
	return merged, nil
}

// mergeRoot is a barrier: every member and the joiner get the new view,
// the root waits for all acks and only then commits.
func (t *Transport) mergeRoot(ctx context.Context, g *group, p *pending) (*group, error) {
	if p.owner != g || p.link == nil {
		return nil, errors.New("connection was not accepted over this group")
	}
	members := append(slices.Clone(g.members), p.peer)
	links := append(slices.Clone(g.links), p.link)

	view := frame{Kind: frameView, Members: members}
	for _, l := range links[1:] {
		if err := l.send(ctx, view); err != nil {
			return nil, err
		}
	}
	for _, l := range links[1:] {
		if _, err := l.recv(ctx, frameAck); err != nil {
			return nil, err
		}
	}
	for _, l := range links[1:] {
		if err := l.send(ctx, frame{Kind: frameCommit}); err != nil {
			return nil, err
		}
	}
	return &group{
		self:    g.self,
		members: members,
		links:   links,
	}, nil
}

func (t *Transport) mergeMember(ctx context.Context, g *group, p *pending) (*group, error) {
	if p.owner != g {
		return nil, errors.New("connection was not accepted over this group")
	}
	view, err := g.uplink.recv(ctx, frameView)
	if err != nil {
		return nil, err
	}
	want := append(slices.Clone(g.members), p.peer)
	if !slices.Equal(view.Members, want) {
		return nil, fmt.Errorf("view mismatch: root sent %v, expected %v", view.Members, want)
	}
	return t.commit(ctx, g.self, g.uplink, view.Members)
}

func (t *Transport) mergeJoiner(ctx context.Context, g *group, p *pending) (*group, error) {
	if g.Size() != 1 || p.link == nil {
		return nil, errors.New("only a connected singleton merges as the high side")
	}
	view, err := p.link.recv(ctx, frameView)
	if err != nil {
		return nil, err
	}
	n := len(view.Members)
	if n < 2 || view.Members[0] != p.peer || view.Members[n-1] != g.self {
		return nil, fmt.Errorf("view %v does not put root %d first and worker %d last", view.Members, p.peer, g.self)
	}
	return t.commit(ctx, g.self, p.link, view.Members)
}

func (t *Transport) commit(ctx context.Context, self models.WorkerID, uplink *link, members []models.WorkerID) (*group, error) {
	err := uplink.send(ctx, frame{Kind: frameAck, From: self})
	if err != nil {
		return nil, err
	}
	_, err = uplink.recv(ctx, frameCommit)
	if err != nil {
		return nil, err
	}
	return &group{
		self:    self,
		members: members,
		uplink:  uplink,
	}, nil
}
