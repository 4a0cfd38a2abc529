package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServerConfig holds ArrowServer settings.
type ServerConfig struct {
	Address        string
	MaxMessageSize int
	Auth           AuthConfig
	// IdleTimeout closes connections that send nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration
}

// DefaultServerConfig returns the default server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":50051",
		MaxMessageSize: MaxMessageSize,
		IdleTimeout:    5 * time.Minute,
	}
}

// ArrowServer is a TCP server that listens for Arrow IPC compute requests.
type ArrowServer struct {
	config   ServerConfig
	listener net.Listener
	handler  *ArrowHandler
	auth     *Authenticator
	logger   *zap.Logger
	running  bool
	mu       sync.Mutex
	quit     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewArrowServer creates a new ArrowServer instance.
func NewArrowServer(config ServerConfig, handler *ArrowHandler, logger *zap.Logger) *ArrowServer {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = MaxMessageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ArrowServer{
		config:  config,
		handler: handler,
		auth:    NewAuthenticator(config.Auth),
		logger:  logger,
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

func (s *ArrowServer) listen() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = lis
	s.running = true

	s.logger.Info("arrow server listening",
		zap.String("address", lis.Addr().String()),
		zap.Bool("auth", s.auth.IsEnabled()),
	)
	return lis, nil
}

// Start starts the Arrow server.
// This method blocks until the server is stopped or fails.
func (s *ArrowServer) Start() error {
	lis, err := s.listen()
	if err != nil {
		return err
	}
	defer s.Stop()

	s.acceptLoop(lis)
	return nil
}

// StartAsync starts the server in a background goroutine.
func (s *ArrowServer) StartAsync() error {
	lis, err := s.listen()
	if err != nil {
		return err
	}

	go s.acceptLoop(lis)
	return nil
}

func (s *ArrowServer) acceptLoop(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *ArrowServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *ArrowServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Addr returns the listener address, or nil if the server is not running.
func (s *ArrowServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server, closes open connections and waits for their
// handlers to return.
func (s *ArrowServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.running = false
	close(s.quit)
	s.cancel()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("failed to close listener", zap.Error(err))
		}
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("arrow server stopped")
}

// handleConnection handles a single client connection.
func (s *ArrowServer) handleConnection(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	logger := s.logger.With(
		zap.String("conn", newConnID()),
		zap.String("remote", conn.RemoteAddr().String()),
	)
	s.touch(conn)

	if err := s.auth.Handshake(conn, s.config.MaxMessageSize); err != nil {
		logger.Warn("authentication failed", zap.Error(err))
		return
	}

	for {
		s.touch(conn)

		data, err := ReadMessageLimit(conn, s.config.MaxMessageSize)
		if err != nil {
			var sizeErr *MessageSizeError
			if errors.As(err, &sizeErr) {
				if !s.rejectOversized(conn, sizeErr, logger) {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		response := s.handler.Handle(s.ctx, "tcp", data)

		if err := WriteMessageLimit(conn, response, s.config.MaxMessageSize); err != nil {
			if errors.Is(err, ErrMessageTooLarge) {
				response = ErrorResponsePayload(CodeBadRequest, "result exceeds maximum message size")
				if err := WriteMessageLimit(conn, response, s.config.MaxMessageSize); err == nil {
					continue
				}
			}
			logger.Debug("write failed", zap.Error(err))
			return
		}
	}
}

// rejectOversized skips the unread body of an oversized frame and answers
// it with BAD_REQUEST, keeping the connection in step. It reports whether
// the connection can keep serving.
func (s *ArrowServer) rejectOversized(conn net.Conn, sizeErr *MessageSizeError, logger *zap.Logger) bool {
	logger.Warn("rejecting oversized message", zap.Error(sizeErr))

	s.touch(conn)
	if _, err := io.CopyN(io.Discard, conn, int64(sizeErr.Size)); err != nil {
		logger.Debug("failed to skip oversized body", zap.Error(err))
		return false
	}

	resp := ErrorResponsePayload(CodeBadRequest, sizeErr.Error())
	if err := WriteMessageLimit(conn, resp, s.config.MaxMessageSize); err != nil {
		logger.Debug("write failed", zap.Error(err))
		return false
	}
	return true
}

// newConnID returns a time-ordered identifier for connection log lines.
func newConnID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *ArrowServer) touch(conn net.Conn) {
	if s.config.IdleTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.config.IdleTimeout))
	}
}
