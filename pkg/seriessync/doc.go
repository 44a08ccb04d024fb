// Package seriessync shares the active data point between charts that use
// the same synchronization key.
//
// Each key names an independent channel holding the active index, payload,
// label and hovering flag. Channels are created on first use and live until
// Cleanup removes them.
//
//	series := seriessync.New()
//
//	unsubscribe := series.Subscribe("db-load", func(s seriessync.State) {
//	    moveCrosshair(s.ActiveIndex)
//	})
//	defer unsubscribe()
//
//	series.UpdateState("db-load",
//	    seriessync.ActiveIndex(5),
//	    seriessync.ActiveLabel("2024-03-01T10:00:00Z"),
//	    seriessync.Hovering(true),
//	)
//
// An empty key means the caller does not sync: updates are dropped and reads
// return the empty state.
package seriessync
