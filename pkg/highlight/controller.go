// Package highlight turns pointer events on a chart into a drag selection.
//
// A Controller belongs to exactly one chart. Pointer-down anchors the
// selection, pointer-move extends it in either direction and pointer-up
// freezes it and anchors the follow-up popover. The left bound is always the
// chronologically earlier label, whichever way the pointer moved.
//
//	hl := highlight.New()
//	hl.HandlePointerDown(highlight.Event{Label: highlight.MustParseLabel("2024-03-01T10:05:00Z"), X: ptr(220)})
//	hl.HandlePointerMove(highlight.Event{Label: highlight.MustParseLabel("2024-03-01T10:00:00Z"), X: ptr(140)})
//	hl.HandlePointerUp(highlight.Event{ChartX: 140, ChartY: 80})
//
//	r := hl.Range() // Left 10:00, Right 10:05
package highlight

import (
	"log/slog"
	"sync"

	"github.com/vango-dev/chartsync/pkg/pubsub"
)

// Event is a pointer event on the chart surface.
type Event struct {
	// Label is the axis label under the pointer. Zero when the pointer is
	// not over a data point.
	Label Label

	// X is the screen-x of the active data point, if known.
	X *float64

	// ChartX and ChartY are the pointer position in chart coordinates.
	ChartX float64
	ChartY float64
}

// Coordinates is the screen-space mirror of the selection bounds.
type Coordinates struct {
	Left  *float64 `json:"left"`
	Right *float64 `json:"right"`
}

// Point is a position on the chart surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Range is a snapshot of the selection.
type Range struct {
	Left            Label       `json:"left"`
	Right           Label       `json:"right"`
	Coordinates     Coordinates `json:"coordinates"`
	IsSelecting     bool        `json:"isSelecting"`
	PopoverPosition *Point      `json:"popoverPosition"`
}

// Actionable reports whether the selection spans two distinct screen
// positions, which is when follow-up actions are offered.
func (r Range) Actionable() bool {
	return r.Coordinates.Left != nil && r.Coordinates.Right != nil &&
		*r.Coordinates.Left != *r.Coordinates.Right
}

func (r Range) clone() Range {
	out := r
	out.Coordinates = Coordinates{Left: copyFloat(r.Coordinates.Left), Right: copyFloat(r.Coordinates.Right)}
	if r.PopoverPosition != nil {
		p := *r.PopoverPosition
		out.PopoverPosition = &p
	}
	return out
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller is the selection state machine of one chart: idle, selecting
// between pointer-down and pointer-up, then idle with a frozen selection
// until the next pointer-down or ClearHighlight.
type Controller struct {
	logger *slog.Logger
	pub    *pubsub.Publisher[Range]

	mu       sync.Mutex
	rng      Range
	initial  Label
	initialX *float64
}

// New creates an idle controller with no selection.
func New(opts ...Option) *Controller {
	c := &Controller{
		logger: slog.Default(),
		pub:    pubsub.New[Range]("highlight"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Range returns the current selection.
func (c *Controller) Range() Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.clone()
}

// IsSelecting reports whether a drag is in progress.
func (c *Controller) IsSelecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.IsSelecting
}

// Subscribe registers fn to receive the selection after every change.
func (c *Controller) Subscribe(fn func(Range)) (unsubscribe func()) {
	return c.pub.Subscribe(fn).Unsubscribe
}

// HandlePointerDown starts a new selection at the event's label, discarding
// any previous one. Events without a label are ignored.
func (c *Controller) HandlePointerDown(ev Event) {
	if ev.Label.IsZero() {
		return
	}

	c.mu.Lock()
	c.rng = Range{
		Left:        ev.Label,
		Right:       ev.Label,
		Coordinates: Coordinates{Left: copyFloat(ev.X), Right: copyFloat(ev.X)},
		IsSelecting: true,
	}
	c.initial = ev.Label
	c.initialX = copyFloat(ev.X)
	c.pub.Enqueue(c.rng.clone())
	c.mu.Unlock()

	c.logger.Debug("highlight selection started", "label", ev.Label.String())
	c.pub.Drain()
}

// HandlePointerMove extends the selection to the event's label. A label
// earlier than the anchor becomes the left bound with the anchor on the
// right; otherwise the anchor is the left bound. Ignored unless selecting
// from an anchor and the event carries a label.
func (c *Controller) HandlePointerMove(ev Event) {
	if ev.Label.IsZero() {
		return
	}

	c.mu.Lock()
	if !c.rng.IsSelecting || c.initial.IsZero() {
		c.mu.Unlock()
		return
	}
	if ev.Label.Before(c.initial) {
		c.rng.Left, c.rng.Right = ev.Label, c.initial
		c.rng.Coordinates = Coordinates{Left: copyFloat(ev.X), Right: copyFloat(c.initialX)}
	} else {
		c.rng.Left, c.rng.Right = c.initial, ev.Label
		c.rng.Coordinates = Coordinates{Left: copyFloat(c.initialX), Right: copyFloat(ev.X)}
	}
	c.pub.Enqueue(c.rng.clone())
	c.mu.Unlock()

	c.pub.Drain()
}

// HandlePointerUp finishes the selection and anchors the popover at the
// event's chart position. The bounds stay in place. Ignored unless selecting.
func (c *Controller) HandlePointerUp(ev Event) {
	c.mu.Lock()
	if !c.rng.IsSelecting {
		c.mu.Unlock()
		return
	}
	c.rng.IsSelecting = false
	c.rng.PopoverPosition = &Point{X: ev.ChartX, Y: ev.ChartY}
	c.initial = Label{}
	c.initialX = nil
	snapshot := c.rng.clone()
	c.pub.Enqueue(snapshot)
	c.mu.Unlock()

	c.logger.Debug("highlight selection finished",
		"left", snapshot.Left.String(),
		"right", snapshot.Right.String(),
	)
	c.pub.Drain()
}

// ClearHighlight removes the selection bounds, coordinates, popover and
// anchor. It does not change IsSelecting.
func (c *Controller) ClearHighlight() {
	c.mu.Lock()
	c.rng.Left = Label{}
	c.rng.Right = Label{}
	c.rng.Coordinates = Coordinates{}
	c.rng.PopoverPosition = nil
	c.initial = Label{}
	c.initialX = nil
	c.pub.Enqueue(c.rng.clone())
	c.mu.Unlock()

	c.pub.Drain()
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
