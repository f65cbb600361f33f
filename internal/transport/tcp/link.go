package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// link is one framed connection between two workers.
type link struct {
	conn net.Conn
	enc  *cbor.Encoder
	dec  *cbor.Decoder
}

func newLink(conn net.Conn) *link {
	return &link{
		conn: conn,
		enc:  encMode.NewEncoder(conn),
		dec:  decMode.NewDecoder(conn),
	}
}

func (l *link) send(ctx context.Context, f frame) error {
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	err := l.enc.Encode(f)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to send %s to %s: %w", f.Kind, l.conn.RemoteAddr(), err)
	}
	return nil
}

func (l *link) recv(ctx context.Context, want frameKind) (frame, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var f frame
	err := l.dec.Decode(&f)
	if err != nil {
		if ctx.Err() != nil {
			return frame{}, ctx.Err()
		}
		return frame{}, fmt.Errorf("failed to receive %s from %s: %w", want, l.conn.RemoteAddr(), err)
	}
	if f.Kind == frameReject && want != frameReject {
		return f, fmt.Errorf("rejected by %s: %s", l.conn.RemoteAddr(), f.Reason)
	}
	if f.Kind != want {
		return f, fmt.Errorf("unexpected %s from %s, expected %s", f.Kind, l.conn.RemoteAddr(), want)
	}
	return f, nil
}

func (l *link) close() error {
	return l.conn.Close()
}
