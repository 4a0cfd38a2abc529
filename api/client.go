package api

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Token is sent in the auth handshake when non-empty.
	Token          string
	MaxMessageSize int
	// Timeout bounds each request round trip. Zero disables it.
	Timeout time.Duration
	Codec   *harrow.IPCCodec
}

// Client is a connection to an ArrowServer. It is safe for concurrent use;
// requests are serialized on the connection.
type Client struct {
	conn    net.Conn
	codec   *harrow.IPCCodec
	options ClientOptions
	mu      sync.Mutex
}

// Dial connects to an ArrowServer and performs the auth handshake.
func Dial(ctx context.Context, address string, options ClientOptions) (*Client, error) {
	if options.MaxMessageSize <= 0 {
		options.MaxMessageSize = MaxMessageSize
	}
	if options.Codec == nil {
		codec, err := harrow.NewIPCCodec(nil, harrow.CompressionNone)
		if err != nil {
			return nil, err
		}
		options.Codec = codec
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if options.Token != "" {
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		if err := Authenticate(conn, options.Token, options.MaxMessageSize); err != nil {
			conn.Close()
			return nil, err
		}
		_ = conn.SetDeadline(time.Time{})
	}

	return &Client{
		conn:    conn,
		codec:   options.Codec,
		options: options,
	}, nil
}

// Call sends a raw request payload and returns the result IPC stream. A
// server-side failure is returned as *ErrorResponse.
func (c *Client) Call(payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.options.Timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.options.Timeout))
	}

	if err := WriteMessageLimit(c.conn, payload, c.options.MaxMessageSize); err != nil {
		return nil, err
	}
	data, err := ReadMessageLimit(c.conn, c.options.MaxMessageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return ParseResponse(data)
}

// Compute evaluates op on the server. The caller must Release the result.
func (c *Client) Compute(op temporal.Op, lhs, rhs arrow.Array) (arrow.Array, error) {
	payload, err := c.codec.EncodeRequest(op, lhs, rhs)
	if err != nil {
		return nil, err
	}

	out, err := c.Call(payload)
	if err != nil {
		return nil, err
	}
	return c.codec.DecodeResult(out)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
