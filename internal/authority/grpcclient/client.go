package grpcclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/turnstile/internal/authority"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type Client struct {
	conn  grpc.ClientConnInterface
	close func() error
}

var _ authority.Client = (*Client)(nil)

// Dial connects to target. Without extra options the connection is
// plaintext; pass transport credentials for TLS.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial authority %s: %w", target, err)
	}
	return &Client{conn: cc, close: cc.Close}, nil
}

// New wraps an existing connection. Close is then the caller's job.
func New(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return nil, fromStatus(method, err)
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.invoke(ctx, methodPing, &structpb.Struct{})
	return err
}

func (c *Client) PushValidations(ctx context.Context, recs []types.ValidationRecord) ([]authority.PushResult, error) {
	in, err := toStruct(map[string]any{"records": recs})
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, methodPushValidations, in)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []authority.PushResult `json:"results"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) FetchSnapshot(ctx context.Context, eventID string) (types.Snapshot, error) {
	in, err := structpb.NewStruct(map[string]any{"event_id": eventID})
	if err != nil {
		return types.Snapshot{}, err
	}
	out, err := c.invoke(ctx, methodFetchSnapshot, in)
	if err != nil {
		return types.Snapshot{}, err
	}
	var snap types.Snapshot
	if err := fromStruct(out, &snap); err != nil {
		return types.Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) Execute(ctx context.Context, a types.QueuedAction) error {
	in, err := toStruct(a)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, IdempotencyKey, a.ID)
	_, err = c.invoke(ctx, methodExecute, in)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

// fromStatus maps a gRPC error onto the authority sentinels.
func fromStatus(method string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
		return fmt.Errorf("%w: %s: %w", authority.ErrUnavailable, method, err)
	default:
		return fmt.Errorf("%w: %s: %w", authority.ErrRejected, method, err)
	}
}
