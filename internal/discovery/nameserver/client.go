package nameserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/Sh00ty/rendezvous/internal/models"
)

// Client is a discovery backend talking to a name server.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create name server grpc client: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Publish(ctx context.Context, name string, endpoint string) error {
	err := c.conn.Invoke(ctx, publishMethod, &RecordRequest{Name: name, Endpoint: endpoint}, new(RecordResponse))
	if err != nil {
		return fromStatus("publish", name, err)
	}
	return nil
}

func (c *Client) Resolve(ctx context.Context, name string) (string, error) {
	resp := new(RecordResponse)
	err := c.conn.Invoke(ctx, resolveMethod, &RecordRequest{Name: name}, resp)
	if err != nil {
		return "", fromStatus("resolve", name, err)
	}
	return resp.Endpoint, nil
}

func (c *Client) Retract(ctx context.Context, name string) error {
	err := c.conn.Invoke(ctx, retractMethod, &RecordRequest{Name: name}, new(RecordResponse))
	if err != nil {
		return fromStatus("retract", name, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func fromStatus(op string, name string, err error) error {
	code := status.Code(err)
	switch code {
	case codes.AlreadyExists:
		return fmt.Errorf("%s %s: %w", op, name, models.ErrAlreadyPublished)
	case codes.NotFound:
		return fmt.Errorf("%s %s: %w", op, name, models.ErrNotFound)
	case codes.InvalidArgument:
		return fmt.Errorf("invalid request to name server: %w", err)
	case codes.Internal:
		return fmt.Errorf("got name server internal error: %w", err)
	default:
		return fmt.Errorf("failed to %s %s, has unknown error: %w", op, name, err)
	}
}
