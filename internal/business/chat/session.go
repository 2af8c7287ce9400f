package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/backend"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/metrics"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/rs/zerolog"
)

// State is the request dimension of a session.
type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting-backend"
)

// Analyzer is the subset of the backend client a session needs.
type Analyzer interface {
	CheckParkingImage(ctx context.Context, filename, contentType string, image []byte, at time.Time) (model.ImageCheck, error)
	CheckParkingLocation(ctx context.Context, lat, lng float64, at time.Time) (model.LocationCheck, error)
	FollowUpQuestion(ctx context.Context, sessionID, question string) (model.FollowUpAnswer, error)
}

// StatRecorder bumps usage counters on the user's profile.
type StatRecorder interface {
	IncrementUserStat(ctx context.Context, userID string, stat model.StatName) error
}

// LocationFix is the client's geolocation outcome.
type LocationFix struct {
	Supported bool    `json:"supported"`
	Denied    bool    `json:"denied"`
	TimedOut  bool    `json:"timedOut"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID         string              `json:"id"`
	State      State               `json:"state"`
	SessionID  string              `json:"sessionId,omitempty"`
	HasSession bool                `json:"hasSession"`
	Pending    string              `json:"pending,omitempty"`
	Messages   []model.ChatMessage `json:"messages"`
}

// Session is one chat view. The message log is append-only; every backend request
// gets a sequence number and only the response to the latest one is applied.
type Session struct {
	id     string
	userID string

	analyzer Analyzer
	stats    StatRecorder
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	mu         sync.Mutex
	messages   []model.ChatMessage
	sessionID  string
	seq        uint64
	awaiting   bool
	pending    string
	mounted    bool
	lastActive time.Time
}

func (s *Session) ID() string { return s.id }

// Mount backfills createdAt on messages created before the client rendered. It runs
// once per session.
func (s *Session) Mount() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		now := s.now()
		for i := range s.messages {
			if s.messages[i].CreatedAt == nil {
				t := now
				s.messages[i].CreatedAt = &t
			}
		}
		s.mounted = true
	}
	s.lastActive = s.now()
	return s.snapshotLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	msgs := make([]model.ChatMessage, len(s.messages))
	copy(msgs, s.messages)
	state := StateIdle
	if s.awaiting {
		state = StateAwaiting
	}
	return Snapshot{
		ID:         s.id,
		State:      state,
		SessionID:  s.sessionID,
		HasSession: s.sessionID != "",
		Pending:    s.pending,
		Messages:   msgs,
	}
}

func (s *Session) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// begin appends the request messages and issues a new sequence number.
func (s *Session) begin(pending string, msgs ...model.ChatMessage) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(msgs...)
	s.seq++
	s.awaiting = true
	s.pending = pending
	s.lastActive = s.now()
	return s.seq
}

// settle applies fn under the lock if seq is still the latest request. It reports
// whether the response was applied.
func (s *Session) settle(seq uint64, op string, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		s.log.Debug().Str("op", op).Uint64("seq", seq).Uint64("latest", s.seq).Msg("discarding stale response")
		if s.metrics != nil {
			s.metrics.StaleResponses.WithLabelValues("chat").Inc()
		}
		return false
	}
	fn()
	s.awaiting = false
	s.pending = ""
	s.lastActive = s.now()
	return true
}

func (s *Session) appendLocked(msgs ...model.ChatMessage) {
	for _, m := range msgs {
		s.messages = append(s.messages, m)
		if s.metrics != nil {
			s.metrics.ChatMessages.WithLabelValues(string(m.Kind)).Inc()
		}
	}
}

// SubmitPhoto sends a sign photo for analysis. It returns false without touching
// the session when the upload is empty or not an image.
func (s *Session) SubmitPhoto(ctx context.Context, p Photo) bool {
	img, err := PrepareImage(p)
	if err != nil {
		return false
	}
	if img.Err != nil {
		s.log.Warn().Err(img.Err).Msg("image compression failed, sending original")
	}

	seq := s.begin(AnalyzingText, photoMessage(img, s.now()))
	res, err := s.analyzer.CheckParkingImage(ctx, img.Filename, img.ContentType, img.Data, s.now())

	applied := s.settle(seq, "photo", func() {
		if err != nil {
			s.appendLocked(imageErrorMessage(img.Preview, backend.FormatAPIError(err), s.now()))
			return
		}
		if res.SessionID != "" {
			s.sessionID = res.SessionID
		}
		s.appendLocked(imageResultMessage(res, s.now()))
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("image check failed")
	}
	if applied && err == nil {
		s.recordStat(ctx, model.StatSignsAnalyzed)
	}
	return true
}

// RequestLocation checks parking rules at the client's position. Denied or timed-out
// geolocation falls back to FallbackCoordinate; unsupported geolocation only appends
// a notice.
func (s *Session) RequestLocation(ctx context.Context, fix LocationFix) bool {
	if !fix.Supported {
		s.mu.Lock()
		s.appendLocked(newMessage(model.KindBot, NoGeolocationText, nil, s.now()))
		s.lastActive = s.now()
		s.mu.Unlock()
		return true
	}

	coord := model.Coordinate{Lat: fix.Lat, Lng: fix.Lng}
	fallback := fix.Denied || fix.TimedOut || coord.Validate() != nil
	if fallback {
		coord = FallbackCoordinate
	}

	seq := s.begin(CheckingText, coordinateMessage(coord, fallback, s.now()))
	res, err := s.analyzer.CheckParkingLocation(ctx, coord.Lat, coord.Lng, s.now())

	applied := s.settle(seq, "location", func() {
		if err != nil {
			s.appendLocked(errorMessage(backend.FormatAPIError(err), s.now()))
			return
		}
		s.appendLocked(locationResultMessage(res, s.now()))
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("location check failed")
	}
	if applied && err == nil {
		s.recordStat(ctx, model.StatLocationsSearched)
	}
	return true
}

// AskFollowUp asks a question scoped to the bound backend session. It is a no-op
// unless the trimmed question is non-empty and a session is bound.
func (s *Session) AskFollowUp(ctx context.Context, question string) bool {
	question = strings.TrimSpace(question)
	if question == "" {
		return false
	}

	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID == "" {
		return false
	}

	seq := s.begin(ThinkingText, newMessage(model.KindUser, "❓ "+question, nil, s.now()))
	res, err := s.analyzer.FollowUpQuestion(ctx, sessionID, question)

	s.settle(seq, "followup", func() {
		if err != nil {
			s.appendLocked(errorMessage(backend.FormatAPIError(err), s.now()))
			return
		}
		s.appendLocked(newMessage(model.KindFollowUp, res.Answer, &model.MessageData{Type: model.DataFollowUp, Answer: res.Answer}, s.now()))
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("follow-up failed")
	}
	return true
}

func (s *Session) recordStat(ctx context.Context, stat model.StatName) {
	if s.stats == nil || s.userID == "" {
		return
	}
	if err := s.stats.IncrementUserStat(ctx, s.userID, stat); err != nil {
		s.log.Warn().Err(err).Str("stat", string(stat)).Msg("stat increment failed")
		return
	}
	if s.metrics != nil {
		s.metrics.StatIncrements.WithLabelValues(string(stat)).Inc()
	}
}
