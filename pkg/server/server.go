package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/niels/nweb/pkg/access"
	"github.com/niels/nweb/pkg/config"
	"github.com/niels/nweb/pkg/queue"
	"github.com/niels/nweb/pkg/retry"
	"github.com/rs/zerolog"
)

// Server owns the listening socket, the connection queue and the worker pool.
// All shared state lives here; nothing is kept in package variables.
type Server struct {
	cfg      *config.Config
	listener net.Listener
	queue    *queue.Queue[net.Conn]
	handler  *Handler
	tracker  access.Tracker
	retry    retry.Options
	log      zerolog.Logger

	nextID    atomic.Uint64
	workers   sync.WaitGroup
	closeOnce sync.Once

	activeMu sync.Mutex
	active   map[net.Conn]struct{}
	draining bool // set once the grace period is over; later connections are closed on arrival
}

// Listen binds the TCP address from cfg
func Listen(cfg *config.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Address(), err)
	}
	return ln, nil
}

// New creates a Server that accepts from ln. cfg must have passed Validate.
func New(cfg *config.Config, ln net.Listener, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		listener: ln,
		queue:    queue.New[net.Conn](cfg.QueueCapacity()),
		handler:  NewHandler(cfg, log.With().Str("component", "worker").Logger()),
		tracker:  access.NopTracker{},
		retry:    retry.FromConfig(cfg),
		log:      log,
		active:   make(map[net.Conn]struct{}),
	}
}

// WithTracker sets the tracker receiving connection events
func (s *Server) WithTracker(tracker access.Tracker) *Server {
	s.tracker = tracker
	return s
}

// Addr returns the listener address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve starts the worker pool and runs the acceptor until ctx is done or the
// listener is closed. It then stops accepting, lets the workers finish what
// is queued for up to the configured grace period and closes whatever is left.
func (s *Server) Serve(ctx context.Context) error {
	workers := s.cfg.Server.Workers
	s.tracker.Start(workers, s.queue.Cap())

	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.worker(ctx, i)
	}

	s.log.Info().
		Str("address", s.Addr().String()).
		Str("docroot", s.cfg.Server.DocRoot).
		Int("workers", workers).
		Int("queue_capacity", s.queue.Cap()).
		Msg("Server listening")

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	err := s.accept(ctx)
	close(stop)
	s.Close()
	s.drain()
	s.tracker.Finish()

	s.log.Info().Msg("Server stopped")
	return err
}

// Close stops the acceptor by closing the listening socket. Safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error().Err(err).Msg("Failed to close listener")
		}
	})
}

// accept is the only producer: it accepts connections and hands them to the
// queue, blocking while the queue is full.
func (s *Server) accept(ctx context.Context) error {
	for {
		var conn net.Conn
		err := retry.Do(ctx, func() error {
			c, err := s.listener.Accept()
			conn = c
			return err
		}, s.retry)

		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.log.Error().Err(err).Msg("Accept failed")
			// Keep accepting, but do not spin on a listener that keeps failing
			if !sleepCtx(ctx, s.retry.MaxDelay) {
				return nil
			}
			continue
		}

		s.log.Debug().Str("peer", peerAddr(conn)).Msg("Connection accepted")

		if err := s.queue.Put(conn); err != nil {
			s.log.Warn().Err(err).Str("peer", peerAddr(conn)).Msg("Dropping connection that could not be queued")
			conn.Close()
		}
	}
}

// worker consumes connections until the queue is closed and empty
func (s *Server) worker(ctx context.Context, id int) {
	defer s.workers.Done()

	log := s.log.With().Int("worker", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		conn, err := s.queue.Get()
		if err != nil {
			log.Debug().Msg("Worker stopped")
			return
		}
		s.serveConn(ctx, conn, log)
	}
}

// serveConn handles one connection and always closes it, even if the handler panics
func (s *Server) serveConn(ctx context.Context, conn net.Conn, log zerolog.Logger) {
	id := s.nextID.Add(1)
	peer := peerAddr(conn)

	s.track(conn)
	defer func() {
		s.untrack(conn)
		conn.Close()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("peer", peer).Msg("Recovered from panic while handling connection")
			s.tracker.ErrorConn(id, fmt.Sprintf("panic: %v", r))
		}
	}()

	s.tracker.StartConn(id, peer)

	rec, err := s.handler.Handle(ctx, conn)
	if err != nil {
		log.Debug().Err(err).Str("peer", peer).Msg("Connection closed without full response")
		s.tracker.ErrorConn(id, err.Error())
		return
	}
	s.tracker.CompleteConn(id, rec)
}

// drain closes the queue and waits for the workers. After the grace period the
// connections still in flight are closed so blocked reads and writes return.
func (s *Server) drain() {
	s.queue.Close()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	grace := s.cfg.ShutdownGraceDuration()
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
	}

	s.log.Warn().Dur("grace", grace).Msg("Shutdown grace period expired, closing remaining connections")
	for _, conn := range s.queue.Drain() {
		conn.Close()
	}
	s.closeActive()
	<-done
}

// closeActive closes every connection a worker holds and makes track close
// any connection that is dequeued afterwards.
func (s *Server) closeActive() {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	s.draining = true
	for conn := range s.active {
		conn.Close()
	}
}

func (s *Server) track(conn net.Conn) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	// Dequeued between Get and track while the grace period ran out
	if s.draining {
		conn.Close()
	}
	s.active[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.activeMu.Lock()
	delete(s.active, conn)
	s.activeMu.Unlock()
}

func peerAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// sleepCtx waits for d or until ctx is done; it reports whether the full wait elapsed
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
