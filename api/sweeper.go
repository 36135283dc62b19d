/*
sweeper.go - Abandoned wizard session cleanup

PURPOSE:
  Close and receiving wizards live in memory between requests. A clerk who
  walks away leaves a session holding staged counts forever. The sweeper
  periodically discards sessions idle past a TTL, rolling back their staged
  edits. Nothing is ever persisted by the sweeper.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips sessions with a submission in flight; they are retried next tick
  - Drops the notification history of every expired session

USAGE:
  sweeper := NewSessionSweeper(handler, ttl, interval)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - sessions.go: Registry.Expire
*/
package api

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionSweeper expires idle wizard sessions.
type SessionSweeper struct {
	Handler       *Handler
	TTL           time.Duration
	CheckInterval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSessionSweeper(h *Handler, ttl, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweeper{
		Handler:       h,
		TTL:           ttl,
		CheckInterval: interval,
	}
}

// Start begins sweeping. Calling Start twice is a no-op.
func (s *SessionSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Handler.log.Info("session sweeper started",
		zap.Duration("ttl", s.TTL), zap.Duration("interval", s.CheckInterval))
}

// Stop halts the sweeper and waits for an in-progress sweep.
func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Handler.log.Info("session sweeper stopped")
}

func (s *SessionSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-stop:
			return
		}
	}
}

// Sweep runs one pass and returns how many sessions were discarded.
func (s *SessionSweeper) Sweep() int {
	h := s.Handler
	n := 0
	for _, id := range h.closes.Expire(s.TTL) {
		h.hub.Forget(id)
		h.metrics.sessionExpired("close")
		n++
	}
	for _, id := range h.receipts.Expire(s.TTL) {
		h.hub.Forget(id)
		h.metrics.sessionExpired("receiving")
		n++
	}
	h.refreshSessionGauges()
	if n > 0 {
		h.log.Info("expired idle sessions", zap.Int("count", n))
	}
	return n
}
