// Package chartsync wires the chart synchronization stores into one
// container that an application builds once and hands to its charts.
//
//	svc := chartsync.New(chartsync.WithStorage(pref.NewFileStorage("prefs.json")))
//	ctx = chartsync.NewContext(ctx, svc)
//
//	// deep inside a chart
//	hover := chartsync.FromContext(ctx).Hover
package chartsync

import (
	"context"
	"log/slog"

	"github.com/vango-dev/chartsync/pkg/highlight"
	"github.com/vango-dev/chartsync/pkg/hoversync"
	"github.com/vango-dev/chartsync/pkg/pref"
	"github.com/vango-dev/chartsync/pkg/pubsub"
	"github.com/vango-dev/chartsync/pkg/seriessync"
)

// Option configures the container.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	storage        pref.Storage
	observer       pubsub.Observer
	onPersistError func(key string, err error)
}

// WithLogger sets the logger shared by every store.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStorage sets the backend for the persisted hover preferences.
// Without it preferences live in memory only.
func WithStorage(s pref.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithObserver receives broadcast statistics from every store.
func WithObserver(obs pubsub.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// OnPersistError registers a handler for failed preference writes.
func OnPersistError(handler func(key string, err error)) Option {
	return func(o *options) {
		o.onPersistError = handler
	}
}

// Services holds the process-wide stores.
type Services struct {
	Hover  *hoversync.Store
	Series *seriessync.Store

	logger *slog.Logger
}

// New builds the stores. Hover preferences are hydrated before New returns.
func New(opts ...Option) *Services {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	hover := hoversync.New(
		hoversync.WithStorage(o.storage),
		hoversync.WithLogger(o.logger),
		hoversync.WithObserver(o.observer),
		hoversync.OnPersistError(o.onPersistError),
	)
	series := seriessync.New(
		seriessync.WithLogger(o.logger),
		seriessync.WithObserver(o.observer),
	)
	return &Services{Hover: hover, Series: series, logger: o.logger}
}

// NewHighlight returns a selection controller for one chart.
func (s *Services) NewHighlight() *highlight.Controller {
	return highlight.New(highlight.WithLogger(s.logger))
}

// ResetForTesting restores both stores to their initial state. Persisted
// preferences are left untouched.
func (s *Services) ResetForTesting() {
	s.Hover.ResetForTesting()
	s.Series.ResetForTesting()
}

type servicesKey struct{}

// NewContext returns a copy of ctx carrying svc.
func NewContext(ctx context.Context, svc *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, svc)
}

// Lookup returns the container stored by NewContext, if any.
func Lookup(ctx context.Context) (*Services, bool) {
	if ctx == nil {
		return nil, false
	}
	svc, ok := ctx.Value(servicesKey{}).(*Services)
	return svc, ok && svc != nil
}

// FromContext returns the container stored by NewContext. It panics when
// none is present: a chart rendered outside the application wiring is a
// programming error.
func FromContext(ctx context.Context) *Services {
	svc, ok := Lookup(ctx)
	if !ok {
		panic("chartsync: no Services in context; wrap the context with chartsync.NewContext")
	}
	return svc
}
