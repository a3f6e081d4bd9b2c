package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/lanepilot/internal/pipeline"
)

// Client consumes the Telemetry stream.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a telemetry server. The link is unauthenticated; the
// server is expected on loopback or a trusted network.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// StreamOptions selects what the server sends.
type StreamOptions struct {
	IncludeSkipped bool
}

// Stream calls fn for every record until the server ends the stream, ctx is
// cancelled or fn returns an error. A clean end of stream returns nil.
func (c *Client) Stream(ctx context.Context, opts StreamOptions, fn func(pipeline.Record) error) error {
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], StreamDecisionsRoute)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}

	req, err := structpb.NewStruct(map[string]any{OptIncludeSkipped: opts.IncludeSkipped})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close send: %w", err)
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		rec, err := DecodeRecord(msg)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
