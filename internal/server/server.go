// Package server runs the TCP listener of the logon gateway: it accepts
// connections, frames packets and feeds them to one authserver.Session per
// connection.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fzdarsky/realmgate/internal/authserver"
	"github.com/fzdarsky/realmgate/internal/logging"
	"github.com/fzdarsky/realmgate/internal/metrics"
)

// Defaults applied to a zero Config.
const (
	DefaultPort            = 3724
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds listener settings.
type Config struct {
	// ListenAddress is the address to bind to. Empty binds all interfaces.
	ListenAddress string

	// Port is the TCP port. Zero picks DefaultPort.
	Port int

	// MaxConnections limits concurrent connections. Connections beyond the
	// limit are closed right after accept. Zero means unlimited.
	MaxConnections int

	// ReadTimeout bounds the wait for the next packet of a connection.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single response write.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds the drain of open connections on Stop.
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// Server accepts client connections and drives their sessions.
type Server struct {
	cfg      Config
	handler  *authserver.Handler
	logger   *logging.Logger
	metrics  *metrics.Metrics
	sessions *SessionTable

	listenerMu sync.RWMutex
	listener   net.Listener
	ready      chan struct{}

	conns        sync.WaitGroup
	slots        chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
	cancel       context.CancelFunc
}

// New creates a stopped server. m may be nil.
func New(cfg Config, handler *authserver.Handler, logger *logging.Logger, m *metrics.Metrics) *Server {
	cfg = cfg.withDefaults()

	var slots chan struct{}
	if cfg.MaxConnections > 0 {
		slots = make(chan struct{}, cfg.MaxConnections)
	}

	return &Server{
		cfg:      cfg,
		handler:  handler,
		logger:   logger,
		metrics:  m,
		sessions: NewSessionTable(),
		ready:    make(chan struct{}),
		slots:    slots,
		shutdown: make(chan struct{}),
	}
}

// Sessions returns the table of open connections.
func (s *Server) Sessions() *SessionTable {
	return s.sessions
}

// Addr blocks until the listener is bound and returns its address.
func (s *Server) Addr() string {
	<-s.ready

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ListenAndServe binds the listener and serves until ctx is cancelled or
// Stop is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.ListenAddress, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		close(s.ready)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled or Stop is
// called. It returns nil after a graceful drain.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.listenerMu.Lock()
	s.listener = listener
	s.cancel = cancel
	s.listenerMu.Unlock()
	close(s.ready)

	s.logger.Info("logon server listening", map[string]any{"address": listener.Addr().String()})

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("logon server shutdown requested")
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.drain()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return s.drain()
			}
			s.logger.Warn("failed to accept connection", map[string]any{"error": err.Error()})
			continue
		}

		if !s.acquire() {
			s.metrics.ConnectionRejected()
			s.logger.Warn("connection limit reached", map[string]any{
				"remote_addr":     conn.RemoteAddr().String(),
				"max_connections": s.cfg.MaxConnections,
			})
			_ = conn.Close()
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		s.conns.Add(1)
		go s.serveConn(connCtx, conn)
	}
}

func (s *Server) acquire() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}

// serveConn runs one session to completion. A panic in the session is
// logged and counted and closes only this connection.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	id := uuid.New()
	remoteIP := remoteHost(conn.RemoteAddr())
	log := s.logger.ForConnection(id.String(), conn.RemoteAddr().String())

	session := s.handler.NewSession(&deadlineWriter{conn: conn, timeout: s.cfg.WriteTimeout}, id.String(), remoteIP)
	s.sessions.Put(id, conn, session)
	s.metrics.ConnectionOpened()
	log.Debug("connection accepted", map[string]any{"active": s.sessions.Len()})

	defer func() {
		if r := recover(); r != nil {
			s.metrics.SessionPanicked()
			log.Error("panic in session", map[string]any{
				"error": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
		}
		session.Close()
		_ = conn.Close()
		s.sessions.Remove(id)
		s.metrics.ConnectionClosed()
		s.release()
		s.conns.Done()
		log.Debug("connection closed")
	}()

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}

		pkt, err := ReadPacket(reader)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case errors.Is(err, os.ErrDeadlineExceeded):
				log.Debug("connection idle timeout")
			default:
				log.Warn("failed to read packet", map[string]any{"error": err.Error()})
			}
			return
		}

		if err := session.Handle(ctx, pkt); err != nil {
			if !errors.Is(err, authserver.ErrSessionClosed) {
				log.Warn("dropping connection", map[string]any{"error": err.Error()})
			}
			return
		}
		if session.Status() == authserver.StatusClosed {
			return
		}
	}
}

// Stop stops accepting connections and waits for open ones to finish, up to
// ShutdownTimeout or ctx, whichever ends first. Remaining connections are
// closed.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.wait(ctx)
}

func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.listenerMu.Unlock()

		// Idle connections are blocked in a read; wake them up.
		s.sessions.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	})
}

func (s *Server) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.wait(ctx)
}

func (s *Server) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("logon server stopped")
		return nil
	case <-ctx.Done():
		s.listenerMu.RLock()
		if s.cancel != nil {
			s.cancel()
		}
		s.listenerMu.RUnlock()
		closed := s.sessions.CloseAll()
		s.logger.Warn("shutdown timeout exceeded, connections closed", map[string]any{"closed": closed})
		return fmt.Errorf("shutdown timeout: %d connections force-closed", closed)
	}
}

type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, err
	}
	return w.conn.Write(p)
}

func remoteHost(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		if v4 := tcp.IP.To4(); v4 != nil {
			return v4.String()
		}
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
