package hoversync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vango-dev/chartsync/pkg/pref"
	"github.com/vango-dev/chartsync/pkg/pubsub"
)

// Persisted preference keys. Values are stored as JSON booleans.
const (
	SyncHoverKey   = "chart-sync-hover-enabled"
	SyncTooltipKey = "chart-sync-tooltip-enabled"
)

// GlobalView is the chart id that subscribes to the shared channel itself
// rather than to one chart's effective view.
const GlobalView = ""

// State is a snapshot of the hover channel as seen by one chart.
type State struct {
	HoveredIndex       *int    `json:"hoveredIndex"`
	HoveredChartID     *string `json:"hoveredChartId"`
	SyncHoverEnabled   bool    `json:"syncHoverEnabled"`
	SyncTooltipEnabled bool    `json:"syncTooltipEnabled"`
}

// Index returns the hovered index and whether one is set.
func (s State) Index() (int, bool) {
	if s.HoveredIndex == nil {
		return 0, false
	}
	return *s.HoveredIndex, true
}

// Owner returns the id of the chart that owns the hover, or "".
func (s State) Owner() string {
	if s.HoveredChartID == nil {
		return ""
	}
	return *s.HoveredChartID
}

// IsHovered reports whether chartID should render a hover highlight: an
// index is hovered and either chartID owns it, or sync is on and another
// chart owns it.
func (s State) IsHovered(chartID string) bool {
	if s.HoveredIndex == nil || s.HoveredChartID == nil {
		return false
	}
	if *s.HoveredChartID == chartID {
		return true
	}
	return s.SyncHoverEnabled
}

// ShowSyncedTooltip reports whether chartID should show a tooltip driven by
// another chart's hover.
func (s State) ShowSyncedTooltip(chartID string) bool {
	return s.SyncTooltipEnabled && s.SyncHoverEnabled &&
		s.HoveredIndex != nil && s.HoveredChartID != nil &&
		*s.HoveredChartID != chartID
}

// Option configures a Store.
type Option func(*config)

type config struct {
	storage        pref.Storage
	logger         *slog.Logger
	observer       pubsub.Observer
	onPersistError func(key string, err error)
}

// WithStorage sets the backend for the two sync preferences.
func WithStorage(s pref.Storage) Option {
	return func(c *config) {
		c.storage = s
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver receives broadcast statistics.
func WithObserver(o pubsub.Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// OnPersistError registers a handler for failed preference writes.
func OnPersistError(handler func(key string, err error)) Option {
	return func(c *config) {
		c.onPersistError = handler
	}
}

// Store is the shared hover channel.
type Store struct {
	config config

	syncHover   *pref.Pref[bool]
	syncTooltip *pref.Pref[bool]

	mu           sync.Mutex
	hoveredIndex *int
	hoveredChart *string
	local        map[string]int
	topics       map[string]*pubsub.Publisher[State]
}

// New creates a store with defaults {null, null, true, true} and hydrates
// both preferences from storage. Read failures are logged and leave the
// defaults in place.
func New(opts ...Option) *Store {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	prefOpts := []pref.PrefOption{
		pref.WithStorage(cfg.storage),
		pref.WithLogger(cfg.logger),
		pref.OnError(cfg.onPersistError),
	}
	s := &Store{
		config:      cfg,
		syncHover:   pref.New(SyncHoverKey, true, prefOpts...),
		syncTooltip: pref.New(SyncTooltipKey, true, prefOpts...),
		local:       make(map[string]int),
		topics:      make(map[string]*pubsub.Publisher[State]),
	}
	s.hydrate(context.Background())
	return s
}

func (s *Store) hydrate(ctx context.Context) {
	for _, p := range []*pref.Pref[bool]{s.syncHover, s.syncTooltip} {
		if err := p.Load(ctx); err != nil {
			s.config.logger.Warn("hover sync preference not loaded", "key", p.Key(), "error", err)
		}
	}
	// Stored values may predate the coupling rule; hover wins.
	if !s.syncHover.Get() && s.syncTooltip.Get() {
		s.syncTooltip.SetLocal(false)
	}
}

// State returns the shared channel snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(GlobalView)
}

// View returns chartID's effective snapshot: the shared channel when hover
// sync is on, the chart's local hover otherwise.
func (s *Store) View(chartID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(chartID)
}

// IsHovered is shorthand for View(chartID).IsHovered(chartID).
func (s *Store) IsHovered(chartID string) bool {
	return s.View(chartID).IsHovered(chartID)
}

// Subscribe registers fn for chartID's view. fn is called on every change to
// that view. Use GlobalView to follow the shared channel.
func (s *Store) Subscribe(chartID string, fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	topic, ok := s.topics[chartID]
	if !ok {
		topic = pubsub.New[State](topicName(chartID), pubsub.Distinct(), pubsub.WithObserver(s.config.observer))
		s.topics[chartID] = topic
	}
	sub := topic.Subscribe(fn)
	s.mu.Unlock()

	return func() {
		sub.Unsubscribe()

		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := s.topics[chartID]; ok && current == topic && topic.Len() == 0 {
			delete(s.topics, chartID)
		}
	}
}

// SetHover records that chartID hovers index. With hover sync on it takes
// ownership of the shared channel and every chart is notified; otherwise only
// chartID's local view changes. An empty chartID is ignored and a negative
// index clears.
func (s *Store) SetHover(chartID string, index int) {
	if chartID == "" {
		return
	}
	if index < 0 {
		s.ClearHover(chartID)
		return
	}

	s.mu.Lock()
	var topics []*pubsub.Publisher[State]
	if s.syncHover.Get() {
		s.hoveredIndex = &index
		s.hoveredChart = &chartID
		topics = s.enqueueLocked(nil)
	} else {
		s.local[chartID] = index
		topics = s.enqueueLocked([]string{chartID})
	}
	s.mu.Unlock()

	drain(topics)
}

// ClearHover clears chartID's hover. The shared channel is only cleared when
// chartID owns it.
func (s *Store) ClearHover(chartID string) {
	if chartID == "" {
		return
	}

	s.mu.Lock()
	var views []string
	if _, ok := s.local[chartID]; ok {
		delete(s.local, chartID)
		views = []string{chartID}
	}
	if s.hoveredChart != nil && *s.hoveredChart == chartID {
		s.hoveredIndex = nil
		s.hoveredChart = nil
		views = nil
	} else if views == nil {
		s.mu.Unlock()
		return
	}
	topics := s.enqueueLocked(views)
	s.mu.Unlock()

	drain(topics)
}

// SetSyncHoverEnabled sets the hover sync preference. Disabling it also
// disables tooltip sync. Both changes are persisted best-effort.
//
// Switching modes starts from a clean slate: disabling drops the shared
// hover and enabling drops every local one.
func (s *Store) SetSyncHoverEnabled(enabled bool) {
	s.mu.Lock()
	s.setSyncHoverLocked(enabled)
	tooltipChanged := false
	if !enabled && s.syncTooltip.Get() {
		s.syncTooltip.SetLocal(false)
		tooltipChanged = true
	}
	topics := s.enqueueLocked(nil)
	s.mu.Unlock()

	s.config.logger.Debug("hover sync preference changed", "enabled", enabled)
	drain(topics)

	s.syncHover.Persist()
	if tooltipChanged {
		s.syncTooltip.Persist()
	}
}

// SetSyncTooltipEnabled sets the tooltip sync preference. Enabling it also
// enables hover sync. Both changes are persisted best-effort.
func (s *Store) SetSyncTooltipEnabled(enabled bool) {
	s.mu.Lock()
	s.syncTooltip.SetLocal(enabled)
	hoverChanged := false
	if enabled && !s.syncHover.Get() {
		s.setSyncHoverLocked(true)
		hoverChanged = true
	}
	topics := s.enqueueLocked(nil)
	s.mu.Unlock()

	s.config.logger.Debug("tooltip sync preference changed", "enabled", enabled)
	drain(topics)

	s.syncTooltip.Persist()
	if hoverChanged {
		s.syncHover.Persist()
	}
}

// ResetForTesting restores the initial state without touching storage.
// Subscribers stay registered and receive the reset view.
func (s *Store) ResetForTesting() {
	s.mu.Lock()
	s.hoveredIndex = nil
	s.hoveredChart = nil
	clear(s.local)
	s.syncHover.SetLocal(s.syncHover.Default())
	s.syncTooltip.SetLocal(s.syncTooltip.Default())
	for _, topic := range s.topics {
		topic.Forget()
	}
	topics := s.enqueueLocked(nil)
	s.mu.Unlock()

	drain(topics)
}

// setSyncHoverLocked must be called with s.mu held.
func (s *Store) setSyncHoverLocked(enabled bool) {
	s.syncHover.SetLocal(enabled)
	if enabled {
		clear(s.local)
		return
	}
	s.hoveredIndex = nil
	s.hoveredChart = nil
}

// viewLocked must be called with s.mu held.
func (s *Store) viewLocked(chartID string) State {
	st := State{
		SyncHoverEnabled:   s.syncHover.Get(),
		SyncTooltipEnabled: s.syncTooltip.Get(),
	}

	if chartID == GlobalView || st.SyncHoverEnabled {
		if s.hoveredIndex != nil {
			index, owner := *s.hoveredIndex, *s.hoveredChart
			st.HoveredIndex = &index
			st.HoveredChartID = &owner
		}
		return st
	}

	if index, ok := s.local[chartID]; ok {
		owner := chartID
		st.HoveredIndex = &index
		st.HoveredChartID = &owner
	}
	return st
}

// enqueueLocked queues the current view on each selected topic and returns
// the topics to drain. A nil chartIDs selects every subscribed view. Must be
// called with s.mu held.
func (s *Store) enqueueLocked(chartIDs []string) []*pubsub.Publisher[State] {
	if chartIDs == nil {
		out := make([]*pubsub.Publisher[State], 0, len(s.topics))
		for id, topic := range s.topics {
			topic.Enqueue(s.viewLocked(id))
			out = append(out, topic)
		}
		return out
	}

	out := make([]*pubsub.Publisher[State], 0, len(chartIDs))
	for _, id := range chartIDs {
		if topic, ok := s.topics[id]; ok {
			topic.Enqueue(s.viewLocked(id))
			out = append(out, topic)
		}
	}
	return out
}

func drain(topics []*pubsub.Publisher[State]) {
	for _, topic := range topics {
		topic.Drain()
	}
}

func topicName(chartID string) string {
	if chartID == GlobalView {
		return "hover"
	}
	return "hover/" + chartID
}
