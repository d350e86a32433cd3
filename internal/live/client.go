package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"annfeed/internal/feed"
	"annfeed/internal/util"
)

// GRPCOptions configures a Client.
type GRPCOptions struct {
	DialOptions []grpc.DialOption // appended after insecure credentials
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Status      StatusFunc
	Logger      *slog.Logger
}

// Client connects to a relay's gRPC stream and merges every record into a
// Sink, reconnecting with backoff until its context ends.
type Client struct {
	addr string
	sink Sink
	opts GRPCOptions
	log  *slog.Logger
}

// NewClient creates a client targeting the given gRPC address.
func NewClient(addr string, sink Sink, opts GRPCOptions) *Client {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	return &Client{addr: addr, sink: sink, opts: opts, log: opts.Logger}
}

// Run keeps a stream open until ctx is cancelled. It returns nil once ctx is
// done and an error only if the client cannot be constructed.
func (c *Client) Run(ctx context.Context) error {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, c.opts.DialOptions...)
	conn, err := grpc.NewClient(c.addr, dialOpts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	backoff := util.Backoff{Base: c.opts.BackoffBase, Max: c.opts.BackoffMax}
	for {
		c.opts.Status.report(feed.LiveConnecting)
		err := c.Sync(ctx, conn, &backoff)
		c.opts.Status.report(feed.LiveDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		delay := backoff.Next()
		c.log.Warn("live stream ended", "addr", c.addr, "error", err, "retry_in", delay)
		if util.Sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// Sync opens one stream on conn and merges records until it ends.
func (c *Client) Sync(ctx context.Context, conn grpc.ClientConnInterface, backoff *util.Backoff) error {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], streamMethod)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing send: %w", err)
	}

	md, err := stream.Header()
	if err != nil {
		return fmt.Errorf("awaiting header: %w", err)
	}
	if backoff != nil {
		backoff.Reset()
	}
	c.opts.Status.report(feed.LiveConnected)
	c.log.Info("connected to live stream", "addr", c.addr, "snapshot", md.Get(snapshotHeader))

	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receiving record: %w", err)
		}
		data, err := protojson.Marshal(msg)
		if err != nil {
			c.log.Warn("dropping unencodable record", "error", err)
			continue
		}
		rec, err := feed.DecodeRecord(data)
		if err != nil {
			c.log.Warn("dropping malformed record", "error", err)
			continue
		}
		c.sink.Merge(rec)
	}
}
