// Package fallback maintains the websocket message-retrieval loop used when
// the distributor-push path is unavailable.
package fallback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Usable reports whether the distributor-push path currently delivers, in
// which case the retrieval loop stays parked.
type Usable func() bool

// Service owns the fallback websocket session against the account server.
// Reactivate is idempotent: it tears down any live session and establishes
// a fresh one when the push path is unusable.
type Service struct {
	url    string
	usable Usable
	logger *slog.Logger
	redial time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	session *websocket.Conn
}

func NewService(url string, usable Usable, logger *slog.Logger) *Service {
	return &Service{
		url:    url,
		usable: usable,
		logger: logger,
		redial: 30 * time.Second,
	}
}

// Reactivate tears down the current session and, unless the push path is
// usable, starts a new retrieval loop. Safe to call redundantly.
func (s *Service) Reactivate(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.session != nil {
		_ = s.session.Close()
		s.session = nil
	}

	if s.usable != nil && s.usable() {
		s.mu.Unlock()
		s.logger.Debug("push path usable, fallback retrieval stays parked")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.retrieveLoop(loopCtx)
	return nil
}

// Close shuts the fallback down for good.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.session != nil {
		_ = s.session.Close()
		s.session = nil
	}
}

func (s *Service) retrieveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.runSession(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug("fallback session ended", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.redial):
		}
	}
}

func (s *Service) runSession(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.session = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.session == conn {
			s.session = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.logger.Info("fallback websocket connected")
	for {
		// Message payloads are consumed by the messaging client proper;
		// the agent only keeps the retrieval channel alive.
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}
