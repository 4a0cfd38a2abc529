package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/api"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

// TransportName labels ZeroMQ requests in metrics.
const TransportName = "zmq"

// Common errors for network operations
var (
	ErrClientBroken   = errors.New("client socket abandoned after cancelled call")
	ErrMalformedFrame = errors.New("expected a single-frame message")
)

// Handler evaluates one request payload and returns a status-prefixed
// response. *api.ArrowHandler implements it.
type Handler interface {
	Handle(ctx context.Context, transport string, data []byte) []byte
}

// ZmqServer answers compute requests on a ZeroMQ REP socket.
type ZmqServer struct {
	endpoint       string
	maxMessageSize int
	handler        Handler
	logger         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	socket zmq4.Socket

	handled atomic.Int64
	failed  atomic.Int64

	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewZmqServer creates a server bound to endpoint on Start, for example
// "tcp://127.0.0.1:5555".
func NewZmqServer(endpoint string, maxMessageSize int, handler Handler, logger *zap.Logger) *ZmqServer {
	if maxMessageSize <= 0 {
		maxMessageSize = api.MaxMessageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZmqServer{
		endpoint:       endpoint,
		maxMessageSize: maxMessageSize,
		handler:        handler,
		logger:         logger,
	}
}

// Start binds the socket and begins serving in the background.
func (s *ZmqServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.socket = zmq4.NewRep(s.ctx)
	if err := s.socket.Listen(s.endpoint); err != nil {
		s.cancel()
		return fmt.Errorf("failed to bind rep socket: %w", err)
	}
	s.running = true

	s.logger.Info("zmq server listening", zap.String("endpoint", s.Endpoint()))

	s.wg.Add(1)
	go s.receiverLoop()
	return nil
}

// Endpoint returns the bound endpoint, resolving an ephemeral port.
func (s *ZmqServer) Endpoint() string {
	if s.socket == nil {
		return s.endpoint
	}
	addr := s.socket.Addr()
	if addr == nil {
		return s.endpoint
	}
	return addr.Network() + "://" + addr.String()
}

// Stop gracefully shuts down the server.
func (s *ZmqServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if err := s.socket.Close(); err != nil {
		s.logger.Debug("failed to close rep socket", zap.Error(err))
	}

	s.wg.Wait()
	s.logger.Info("zmq server stopped")
}

// receiverLoop answers requests one at a time, as REP sockets require.
func (s *ZmqServer) receiverLoop() {
	defer s.wg.Done()

	for {
		msg, err := s.socket.Recv()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Debug("recv failed", zap.Error(err))
			continue
		}

		reply := s.serve(msg)
		if err := s.socket.Send(zmq4.NewMsg(reply)); err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Warn("send failed", zap.Error(err))
		}
	}
}

func (s *ZmqServer) serve(msg zmq4.Msg) []byte {
	switch {
	case len(msg.Frames) != 1:
		s.failed.Add(1)
		return api.ErrorResponsePayload(api.CodeBadRequest, ErrMalformedFrame.Error())
	case len(msg.Frames[0]) > s.maxMessageSize:
		s.failed.Add(1)
		return api.ErrorResponsePayload(api.CodeBadRequest,
			fmt.Sprintf("%v: %d bytes (max: %d)", api.ErrMessageTooLarge, len(msg.Frames[0]), s.maxMessageSize))
	}

	s.handled.Add(1)
	return s.handler.Handle(s.ctx, TransportName, msg.Frames[0])
}

// ServerStats contains server statistics.
type ServerStats struct {
	Endpoint  string `json:"endpoint"`
	IsRunning bool   `json:"is_running"`
	Handled   int64  `json:"handled"`
	Rejected  int64  `json:"rejected"`
}

// GetStats returns current server statistics.
func (s *ZmqServer) GetStats() ServerStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return ServerStats{
		Endpoint:  s.Endpoint(),
		IsRunning: running,
		Handled:   s.handled.Load(),
		Rejected:  s.failed.Load(),
	}
}

// ZmqClient issues compute requests over a ZeroMQ REQ socket. Calls are
// serialized.
type ZmqClient struct {
	socket zmq4.Socket
	codec  *harrow.IPCCodec
	cancel context.CancelFunc
	broken bool
	mu     sync.Mutex
}

// DialZmq connects a REQ socket to endpoint. A nil codec uses an
// uncompressed one.
func DialZmq(endpoint string, codec *harrow.IPCCodec) (*ZmqClient, error) {
	if codec == nil {
		var err error
		if codec, err = harrow.NewIPCCodec(nil, harrow.CompressionNone); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	socket := zmq4.NewReq(ctx)
	if err := socket.Dial(endpoint); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	return &ZmqClient{socket: socket, codec: codec, cancel: cancel}, nil
}

// Call sends a raw request payload and returns the result IPC stream. A
// server-side failure is returned as *api.ErrorResponse. A call abandoned
// through ctx leaves the REQ socket out of step, so the client refuses
// further calls.
func (c *ZmqClient) Call(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, ErrClientBroken
	}

	type reply struct {
		data []byte
		err  error
	}
	done := make(chan reply, 1)

	go func() {
		if err := c.socket.Send(zmq4.NewMsg(payload)); err != nil {
			done <- reply{err: fmt.Errorf("failed to send request: %w", err)}
			return
		}
		msg, err := c.socket.Recv()
		if err != nil {
			done <- reply{err: fmt.Errorf("failed to receive reply: %w", err)}
			return
		}
		if len(msg.Frames) != 1 {
			done <- reply{err: ErrMalformedFrame}
			return
		}
		done <- reply{data: msg.Frames[0]}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return api.ParseResponse(r.data)
	case <-ctx.Done():
		c.broken = true
		c.cancel()
		return nil, ctx.Err()
	}
}

// Compute evaluates op on the server. The caller must Release the result.
func (c *ZmqClient) Compute(ctx context.Context, op temporal.Op, lhs, rhs arrow.Array) (arrow.Array, error) {
	payload, err := c.codec.EncodeRequest(op, lhs, rhs)
	if err != nil {
		return nil, err
	}

	out, err := c.Call(ctx, payload)
	if err != nil {
		return nil, err
	}
	return c.codec.DecodeResult(out)
}

// Close closes the socket.
func (c *ZmqClient) Close() error {
	defer c.cancel()
	return c.socket.Close()
}
