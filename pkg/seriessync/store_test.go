package seriessync

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func full(index int) State {
	return State{
		ActiveIndex:   intPtr(index),
		ActivePayload: map[string]any{"timestamp": "2024-03-01T10:00:00Z", "value": 42.0},
		ActiveLabel:   strPtr("10:00"),
		IsHovering:    true,
	}
}

func TestInitialState(t *testing.T) {
	s := New()
	assert.Equal(t, Initial(), s.State("test-sync-1"))
	assert.Empty(t, s.Keys(), "reading does not create a channel")
}

func TestGetOrCreateChannel(t *testing.T) {
	s := New()

	assert.Nil(t, s.GetOrCreateChannel(""))

	ch := s.GetOrCreateChannel("cpu")
	require.NotNil(t, ch)
	assert.Equal(t, "cpu", ch.Key())
	assert.Same(t, ch, s.GetOrCreateChannel("cpu"))
	assert.Equal(t, []string{"cpu"}, s.Keys())
}

func TestBroadcastConsistency(t *testing.T) {
	s := New()

	const subscribers = 5
	received := make([]State, subscribers)
	for i := 0; i < subscribers; i++ {
		i := i
		defer s.Subscribe("test-sync-1", func(st State) { received[i] = st })()
	}

	updates := [][]Patch{
		{Full(full(1))},
		{ActiveIndex(7)},
		{Hovering(false), NoActiveLabel()},
		{ActivePayload([]any{1.0, 2.0})},
	}
	for _, patches := range updates {
		s.UpdateState("test-sync-1", patches...)
		want := s.State("test-sync-1")
		for i := 0; i < subscribers; i++ {
			assert.Equal(t, want, received[i], "subscriber %d", i)
		}
	}
}

func TestKeyIsolation(t *testing.T) {
	s := New()

	var other []State
	defer s.Subscribe("test-sync-2", func(st State) { other = append(other, st) })()

	s.UpdateState("test-sync-1", ActiveIndex(10))

	got := s.State("test-sync-2")
	assert.Nil(t, got.ActiveIndex)
	assert.Equal(t, Initial(), got)
	assert.Empty(t, other)
	assert.Equal(t, 10, *s.State("test-sync-1").ActiveIndex)
}

func TestUndefinedKeyIsNoop(t *testing.T) {
	s := New()

	before := s.State("")
	s.UpdateState("", Full(full(3)))
	after := s.State("")

	assert.Equal(t, before, after)
	assert.Equal(t, Initial(), after)
	assert.Empty(t, s.Keys())

	called := false
	unsubscribe := s.Subscribe("", func(State) { called = true })
	s.UpdateState("", ActiveIndex(1))
	unsubscribe()
	assert.False(t, called)
}

func TestPartialMerge(t *testing.T) {
	s := New()

	first := full(5)
	s.UpdateState("cpu", Full(first))
	s.UpdateState("cpu", ActiveIndex(10), Hovering(false))

	got := s.State("cpu")
	assert.Equal(t, 10, *got.ActiveIndex)
	assert.False(t, got.IsHovering)
	assert.Equal(t, first.ActivePayload, got.ActivePayload)
	assert.Equal(t, "10:00", *got.ActiveLabel)
}

func TestClearStateIdempotent(t *testing.T) {
	s := New()
	s.UpdateState("cpu", Full(full(5)))

	var deliveries []State
	defer s.Subscribe("cpu", func(st State) { deliveries = append(deliveries, st) })()

	s.ClearState("cpu")
	first := s.State("cpu")
	s.ClearState("cpu")
	second := s.State("cpu")

	want := State{ActiveIndex: nil, ActivePayload: nil, ActiveLabel: nil, IsHovering: false}
	assert.Equal(t, want, first)
	assert.Equal(t, first, second)
	require.Len(t, deliveries, 2)
	assert.Equal(t, want, deliveries[1])
}

func TestReturnedStateIsACopy(t *testing.T) {
	s := New()
	s.UpdateState("cpu", ActiveIndex(1), ActiveLabel("a"))

	got := s.State("cpu")
	*got.ActiveIndex = 99
	*got.ActiveLabel = "mutated"

	again := s.State("cpu")
	assert.Equal(t, 1, *again.ActiveIndex)
	assert.Equal(t, "a", *again.ActiveLabel)
}

func TestSubscribeOrder(t *testing.T) {
	s := New()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		defer s.Subscribe("cpu", func(State) { order = append(order, i) })()
	}

	s.UpdateState("cpu", ActiveIndex(1))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestUnsubscribe(t *testing.T) {
	s := New()

	calls := 0
	unsubscribe := s.Subscribe("cpu", func(State) { calls++ })
	s.UpdateState("cpu", ActiveIndex(1))
	unsubscribe()
	s.UpdateState("cpu", ActiveIndex(2))

	assert.Equal(t, 1, calls)
	assert.Zero(t, s.GetOrCreateChannel("cpu").Subscribers())
}

func TestCleanup(t *testing.T) {
	s := New()

	calls := 0
	s.Subscribe("cpu", func(State) { calls++ })
	s.UpdateState("cpu", ActiveIndex(4))
	require.Equal(t, 1, calls)

	s.Cleanup("cpu")
	assert.Empty(t, s.Keys())
	assert.Equal(t, Initial(), s.State("cpu"))

	s.UpdateState("cpu", ActiveIndex(5))
	assert.Equal(t, 1, calls, "subscribers are removed with the channel")

	s.Cleanup("never-created")
}

func TestResetForTesting(t *testing.T) {
	s := New()
	s.UpdateState("a", ActiveIndex(1))
	s.UpdateState("b", ActiveIndex(2))

	s.ResetForTesting()
	assert.Empty(t, s.Keys())
	assert.Equal(t, Initial(), s.State("a"))
}

func TestSubscriberMayUpdateOtherKey(t *testing.T) {
	s := New()

	defer s.Subscribe("source", func(st State) {
		if st.ActiveIndex != nil {
			s.UpdateState("mirror", ActiveIndex(*st.ActiveIndex))
		}
	})()

	s.UpdateState("source", ActiveIndex(3))
	assert.Equal(t, 3, *s.State("mirror").ActiveIndex)
}

func TestParsePatch(t *testing.T) {
	s := New()
	s.UpdateState("cpu", Full(full(5)))

	patches, err := ParsePatch([]byte(`{"activeIndex": 8, "activeLabel": null}`))
	require.NoError(t, err)
	s.UpdateState("cpu", patches...)

	got := s.State("cpu")
	assert.Equal(t, 8, *got.ActiveIndex)
	assert.Nil(t, got.ActiveLabel)
	assert.True(t, got.IsHovering, "absent keys are untouched")
	assert.NotNil(t, got.ActivePayload)

	patches, err = ParsePatch([]byte(`{"activePayload": null, "isHovering": false, "activeIndex": null}`))
	require.NoError(t, err)
	s.UpdateState("cpu", patches...)
	assert.Equal(t, Initial(), s.State("cpu"))
}

func TestParsePatchErrors(t *testing.T) {
	tests := []string{
		`not json`,
		`null`,
		`[1, 2]`,
		`{"activeIndex": "five"}`,
		`{"activeLabel": 3}`,
		`{"isHovering": "yes"}`,
		`{"colour": "red"}`,
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePatch([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(Initial())
	require.NoError(t, err)
	assert.JSONEq(t, `{"activeIndex":null,"activePayload":null,"activeLabel":null,"isHovering":false}`, string(data))
}

func TestConcurrentUpdates(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%3)
			unsubscribe := s.Subscribe(key, func(State) {})
			for j := 0; j < 100; j++ {
				s.UpdateState(key, ActiveIndex(j), Hovering(j%2 == 0))
				_ = s.State(key)
			}
			unsubscribe()
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Keys(), 3)
}

func TestSubscribeRacingCleanup(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Subscribe("cpu", func(State) {})()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Cleanup("cpu")
			}
		}()
	}
	wg.Wait()

	var got []State
	defer s.Subscribe("cpu", func(st State) { got = append(got, st) })()
	assert.Equal(t, 1, s.GetOrCreateChannel("cpu").Subscribers())

	s.UpdateState("cpu", ActiveIndex(2))
	require.Len(t, got, 1)
	assert.Equal(t, 2, *got[0].ActiveIndex)
}

func TestSubscribersEndOnLatestState(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := New()

		var mu sync.Mutex
		var last State
		unsubscribe := s.Subscribe("cpu", func(st State) {
			runtime.Gosched()
			mu.Lock()
			last = st
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					s.UpdateState("cpu", ActiveIndex(n*100+j))
				}
			}(i)
		}
		wg.Wait()

		mu.Lock()
		assert.Equal(t, s.State("cpu"), last, "round %d", round)
		mu.Unlock()
		unsubscribe()
	}
}
