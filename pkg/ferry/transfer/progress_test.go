package transfer_test

import (
	"testing"
	"time"

	"github.com/jamesainslie/ferry/pkg/ferry/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestProgressTracker(t *testing.T) {
	t.Run("accumulates totals per file", func(t *testing.T) {
		clock := newFakeClock()
		p := transfer.NewProgressTracker(clock.Now)
		p.Begin()

		a := &transfer.File{DisplayName: "a"}
		b := &transfer.File{DisplayName: "b"}

		clock.Advance(time.Second)
		p.RecordChunk(a, 100, false)
		clock.Advance(time.Second)
		p.RecordChunk(a, 50, true)
		clock.Advance(time.Second)
		p.RecordChunk(b, 25, false)

		assert.Equal(t, int64(175), p.Transferred)
		assert.Equal(t, int64(150), a.Transmitted)
		assert.Equal(t, int64(25), b.Transmitted)
		assert.Same(t, b, p.Active)
		assert.False(t, a.DoneAt.IsZero())
		assert.True(t, b.DoneAt.IsZero())
		assert.Equal(t, clock.Now(), b.StartedAt)
		assert.Equal(t, clock.Now().Add(-2*time.Second), a.StartedAt)
	})

	t.Run("stale samples are evicted once more than two remain", func(t *testing.T) {
		clock := newFakeClock()
		p := transfer.NewProgressTracker(clock.Now)
		p.Begin()
		f := &transfer.File{}

		clock.Advance(time.Second)
		p.RecordChunk(f, 10, false) // t=1s
		clock.Advance(time.Second)
		p.RecordChunk(f, 10, false) // t=2s
		assert.Equal(t, 3, p.WindowLen())

		clock.Advance(38 * time.Second)
		p.RecordChunk(f, 40, false) // t=40s: samples at 0s and 1s are stale
		assert.Equal(t, 2, p.WindowLen())
		assert.Equal(t, 38*time.Second, p.WindowSpan)
		assert.Equal(t, int64(50), p.WindowBytes)

		clock.Advance(time.Second)
		p.RecordChunk(f, 5, false) // t=41s: the 2s sample is stale
		assert.Equal(t, 2, p.WindowLen())

		clock.Advance(time.Second)
		p.RecordChunk(f, 5, false) // t=42s: everything is recent
		assert.Equal(t, 3, p.WindowLen())
		assert.Equal(t, 2*time.Second, p.WindowSpan)
		assert.Equal(t, int64(50), p.WindowBytes)
	})

	t.Run("two stale samples are kept", func(t *testing.T) {
		clock := newFakeClock()
		p := transfer.NewProgressTracker(clock.Now)
		p.Begin()

		clock.Advance(time.Hour)
		p.RecordChunk(&transfer.File{}, 1, false)
		assert.Equal(t, 2, p.WindowLen())
		assert.Equal(t, time.Hour, p.WindowSpan)
	})

	t.Run("snapshot estimates rate and remaining time", func(t *testing.T) {
		clock := newFakeClock()
		p := transfer.NewProgressTracker(clock.Now)
		p.TotalSize = 1000
		p.Begin()

		f := &transfer.File{DisplayName: "big.iso"}
		clock.Advance(2 * time.Second)
		p.RecordChunk(f, 200, false)

		snap := p.Snapshot()
		assert.Equal(t, int64(1000), snap.Total)
		assert.Equal(t, int64(200), snap.Transferred)
		assert.Equal(t, 2*time.Second, snap.Elapsed)
		assert.InDelta(t, 100.0, snap.Rate, 0.001)
		assert.Equal(t, 8*time.Second, snap.ETA)
		assert.Equal(t, "big.iso", snap.Active)
	})

	t.Run("snapshot before any data", func(t *testing.T) {
		p := transfer.NewProgressTracker(nil)
		snap := p.Snapshot()
		require.Zero(t, snap.Rate)
		assert.Negative(t, int64(snap.ETA))
	})
}
