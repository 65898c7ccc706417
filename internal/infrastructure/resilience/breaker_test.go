package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFailed = errors.New("failed")

func run(b *Breaker, ok bool) error {
	return b.Do(func() error {
		if ok {
			return nil
		}
		return errFailed
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		requests []bool
		expected State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{Interval: time.Minute, Timeout: time.Minute},
			requests: []bool{true, true, true},
			expected: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				Interval:    time.Minute,
				Timeout:     time.Minute,
				ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
			},
			requests: []bool{false, false, false},
			expected: StateOpen,
		},
		{
			name: "success resets the failure streak",
			settings: Settings{
				Interval:    time.Minute,
				Timeout:     time.Minute,
				ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
			},
			requests: []bool{false, true, false},
			expected: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", tt.settings)
			for _, ok := range tt.requests {
				_ = run(b, ok)
			}
			assert.Equal(t, tt.expected, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b := New("test", Settings{Interval: time.Minute, Timeout: time.Minute})

	require.NoError(t, run(b, true))
	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)

	assert.ErrorIs(t, run(b, false), errFailed)
	counts = b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenFailsFast(t *testing.T) {
	b := New("test", Settings{
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
	_ = run(b, false)
	_ = run(b, false)

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	b := New("test", Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
		OnStateChange: func(_ string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})
	_ = run(b, false)
	_ = run(b, false)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, run(b, true))
	require.NoError(t, run(b, true))
	assert.Equal(t, StateClosed, b.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerIgnoresClassifiedErrors(t *testing.T) {
	errIgnored := errors.New("404")
	b := New("test", Settings{
		Interval:    time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		IsFailure:   func(err error) bool { return err != nil && !errors.Is(err, errIgnored) },
	})

	assert.ErrorIs(t, b.Do(func() error { return errIgnored }), errIgnored)
	assert.Equal(t, StateClosed, b.State())
}

func TestExecuteReturnsValue(t *testing.T) {
	b := New("test", Settings{})
	v, err := Execute(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGroupIsolatesKeys(t *testing.T) {
	g := NewGroup("hosts", Settings{
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_ = run(g.Get("a.example"), false)

	assert.Same(t, g.Get("a.example"), g.Get("a.example"))
	assert.Equal(t, "hosts:a.example", g.Get("a.example").Name())
	assert.Equal(t, StateOpen, g.Get("a.example").State())
	assert.Equal(t, StateClosed, g.Get("b.example").State())
}
