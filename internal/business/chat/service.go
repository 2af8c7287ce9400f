package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/metrics"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound is returned for unknown or evicted chat sessions.
var ErrSessionNotFound = errors.New("chat session not found")

const defaultSessionTTL = 2 * time.Hour

// Options tune a Service.
type Options struct {
	TTL     time.Duration
	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

// Service holds the in-memory chat sessions.
type Service struct {
	analyzer Analyzer
	stats    StatRecorder
	metrics  *metrics.Metrics
	log      zerolog.Logger
	ttl      time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(analyzer Analyzer, stats StatRecorder, opts Options) *Service {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	logger := log.With().Str("component", "chat").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		analyzer: analyzer,
		stats:    stats,
		metrics:  opts.Metrics,
		log:      logger,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session holding only the welcome message. userID may be empty for
// anonymous use, in which case no stats are recorded.
func (s *Service) Create(userID string) *Session {
	id := uuid.NewString()
	sess := &Session{
		id:         id,
		userID:     userID,
		analyzer:   s.analyzer,
		stats:      s.stats,
		metrics:    s.metrics,
		log:        s.log.With().Str("chat_id", id).Logger(),
		now:        s.now,
		messages:   []model.ChatMessage{welcomeMessage()},
		lastActive: s.now(),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.setGauge(n)
	return sess
}

func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many were removed.
func (s *Service) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastUsed().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.setGauge(n)
	if removed > 0 {
		s.log.Info().Int("removed", removed).Int("remaining", n).Msg("evicted idle chat sessions")
	}
	return removed
}

// Run sweeps periodically until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Service) setGauge(n int) {
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(n))
	}
}
