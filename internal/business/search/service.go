package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/metrics"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/preferences"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrViewNotFound is returned for unknown or evicted map views.
var ErrViewNotFound = errors.New("map view not found")

const defaultViewTTL = 2 * time.Hour

// Options tune a Service.
type Options struct {
	Presets map[string]ViewConfig
	TTL     time.Duration
	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

// Service holds the in-memory map views.
type Service struct {
	platform Platform
	searcher Searcher
	prefs    preferences.Store
	stats    StatRecorder
	presets  map[string]ViewConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
	ttl      time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	views map[string]*MapView
}

func NewService(platform Platform, searcher Searcher, prefs preferences.Store, stats StatRecorder, opts Options) *Service {
	presets := opts.Presets
	if presets == nil {
		presets = BuiltinPresets()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultViewTTL
	}
	logger := log.With().Str("component", "map").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		platform: platform,
		searcher: searcher,
		prefs:    prefs,
		stats:    stats,
		presets:  presets,
		metrics:  opts.Metrics,
		log:      logger,
		ttl:      ttl,
		now:      time.Now,
		views:    make(map[string]*MapView),
	}
}

func (s *Service) Presets() map[string]ViewConfig {
	return s.presets
}

// Create registers a view built from a preset and initializes it. The view is kept
// even when Init fails so the client can read the failure notification.
func (s *Service) Create(ctx context.Context, preset, clientID, userID string) (*MapView, error) {
	if preset == "" {
		preset = "default"
	}
	cfg, ok := s.presets[preset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}
	cfg = cfg.Normalize("")

	id := uuid.NewString()
	v := &MapView{
		id:         id,
		clientID:   clientID,
		userID:     userID,
		cfg:        cfg,
		platform:   s.platform,
		searcher:   s.searcher,
		prefs:      s.prefs,
		stats:      s.stats,
		metrics:    s.metrics,
		log:        s.log.With().Str("view_id", id).Str("preset", preset).Logger(),
		now:        s.now,
		limit:      cfg.DefaultSpotsLimit,
		hidden:     make(map[MarkerClass]bool),
		viewport:   Viewport{Center: cfg.DefaultCenter, Zoom: cfg.DefaultZoom},
		lastActive: s.now(),
	}

	s.mu.Lock()
	s.views[id] = v
	n := len(s.views)
	s.mu.Unlock()
	s.setGauge(n)

	if err := v.Init(ctx); err != nil {
		return v, err
	}
	return v, nil
}

func (s *Service) Get(id string) (*MapView, error) {
	s.mu.RLock()
	v, ok := s.views[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrViewNotFound
	}
	return v, nil
}

// Sweep evicts views idle for longer than the TTL and returns how many were removed.
func (s *Service) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	removed := 0
	for id, v := range s.views {
		if v.lastUsed().Before(cutoff) {
			delete(s.views, id)
			removed++
		}
	}
	n := len(s.views)
	s.mu.Unlock()

	s.setGauge(n)
	if removed > 0 {
		s.log.Info().Int("removed", removed).Int("remaining", n).Msg("evicted idle map views")
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
		s.metrics.ActiveMapViews.Set(float64(n))
	}
}
