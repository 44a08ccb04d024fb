// Package hoversync coordinates hover state across independently rendered charts.
//
// A Store holds the single shared hover channel: which chart owns the hover
// and which data index it points at. Two persisted preferences gate sharing:
//
//   - sync hover: when off, each chart's hover is local to that chart
//   - sync tooltip: synced tooltips need synced hover, so the two are coupled
//
// Charts subscribe by chart id and re-render from the view they receive:
//
//	hover := hoversync.New(hoversync.WithStorage(storage))
//
//	unsubscribe := hover.Subscribe("cpu-chart", func(s hoversync.State) {
//	    if s.IsHovered("cpu-chart") {
//	        drawCrosshair(*s.HoveredIndex)
//	    }
//	})
//	defer unsubscribe()
//
//	hover.SetHover("memory-chart", 12)
//
// All operations are synchronous and safe for concurrent use. Persistence
// failures are logged and never change in-memory behaviour.
package hoversync
