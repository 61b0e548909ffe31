// Package tcp serves the line-oriented command protocol.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/autopeer-io/flightrelay/internal/pkg/metrics"
	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/pkg/log"
	"github.com/autopeer-io/flightrelay/pkg/options"
)

// LinkUnavailable is sent to clients connecting while the vehicle link is down.
const LinkUnavailable = "vehicle link unavailable"

// Dispatcher runs one command to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd model.Command) model.CommandResult
}

// LinkChecker reports whether the vehicle can currently be commanded.
type LinkChecker interface {
	Healthy() bool
}

type Server struct {
	options    *options.RelayOptions
	dispatcher Dispatcher
	link       LinkChecker

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
	ready chan struct{}
}

func NewServer(opts *options.RelayOptions, d Dispatcher, link LinkChecker) *Server {
	return &Server{
		options:    opts,
		dispatcher: d,
		link:       link,
		conns:      make(map[net.Conn]struct{}),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start accepts connections until ctx is done, then closes every live
// connection and waits for their handlers to return.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.options.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	close(s.ready)

	log.Info("Starting command server", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeAll()
	})
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			// Transient accept failures (e.g. too many open files).
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			log.Error(err, "Accept failed, retrying", "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if s.link != nil && !s.link.Healthy() {
			s.reject(conn)
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serve(ctx, conn)
		}()
	}

	s.closeAll()
	s.wg.Wait()
	log.Info("Command server stopped")
	return nil
}

func (s *Server) reject(conn net.Conn) {
	log.Warn("Rejecting connection, vehicle link is down", "remote", conn.RemoteAddr().String())
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = io.WriteString(conn, model.Failure(LinkUnavailable).Line()+"\n")
	_ = conn.Close()
}

// serve runs the request/response loop of one connection.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log.Info("Client connected", "remote", remote)
	defer log.Info("Client disconnected", "remote", remote)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(4096, s.options.MaxLineBytes)), s.options.MaxLineBytes)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return
		}

		log.Debug("Received command", "remote", remote, "line", truncate(line, 128))
		res := s.dispatcher.Dispatch(ctx, model.ParseLine(line))

		if _, err := w.WriteString(res.Line() + "\n"); err != nil {
			log.Warn("Write failed", "remote", remote, "error", err)
			return
		}
		if err := w.Flush(); err != nil {
			log.Warn("Write failed", "remote", remote, "error", err)
			return
		}

		if res.Fatal {
			log.Warn("Closing connection after vehicle link loss", "remote", remote)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Warn("Request line too long", "remote", remote, "limit", s.options.MaxLineBytes)
			_, _ = w.WriteString(model.Failure("request line too long").Line() + "\n")
			_ = w.Flush()
			discard(conn)
			return
		}
		if !errors.Is(err, net.ErrClosed) {
			log.Warn("Read failed", "remote", remote, "error", err)
		}
	}
}

// discard drops unread input so closing the socket sends FIN, not RST, and
// the client still sees the last response.
func discard(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _ = io.Copy(io.Discard, io.LimitReader(conn, 1<<20))
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
	metrics.ConnectionsActive.Inc()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		metrics.ConnectionsActive.Dec()
	}
	_ = conn.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
