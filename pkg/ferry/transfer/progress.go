package transfer

import (
	"time"
)

// WindowStaleness is how far behind the newest sample a sample may fall
// before it is dropped from the rate window.
const WindowStaleness = 30 * time.Second

type sample struct {
	amount int64
	at     time.Time
}

// ProgressTracker accumulates byte counts and keeps a rolling window of
// recent writes for throughput estimates. It is not safe for concurrent use.
type ProgressTracker struct {
	TotalSize   int64
	Transferred int64
	Active      *File
	StartedAt   time.Time

	// WindowBytes and WindowSpan summarize the rolling window and are
	// recomputed on every sample.
	WindowBytes int64
	WindowSpan  time.Duration

	window []sample
	now    func() time.Time
}

// Progress is a point-in-time view of a transfer for display.
type Progress struct {
	Total       int64
	Transferred int64
	Elapsed     time.Duration

	// Rate is in bytes per second; zero when unknown.
	Rate float64

	// ETA is negative when it cannot be estimated.
	ETA time.Duration

	Active string
}

// NewProgressTracker returns a tracker reading time from now, or the wall
// clock when now is nil.
func NewProgressTracker(now func() time.Time) *ProgressTracker {
	if now == nil {
		now = time.Now
	}
	return &ProgressTracker{now: now}
}

// Begin records the session start and opens the window with an empty sample.
func (p *ProgressTracker) Begin() {
	p.StartedAt = p.now()
	p.window = append(p.window[:0], sample{at: p.StartedAt})
	p.WindowBytes = 0
	p.WindowSpan = 0
}

// RecordChunk accounts amount bytes written to f.
func (p *ProgressTracker) RecordChunk(f *File, amount int64, final bool) {
	now := p.now()
	if p.Active != f {
		p.Active = f
		if f.StartedAt.IsZero() {
			f.StartedAt = now
		}
	}
	f.Transmitted += amount
	p.Transferred += amount

	p.window = append(p.window, sample{amount: amount, at: now})
	for len(p.window) > 2 && now.Sub(p.window[0].at) > WindowStaleness {
		p.window = p.window[1:]
	}

	p.WindowSpan = now.Sub(p.window[0].at)
	p.WindowBytes = 0
	for _, s := range p.window {
		p.WindowBytes += s.amount
	}

	if final {
		f.DoneAt = now
	}
}

// WindowLen reports how many samples the window currently holds.
func (p *ProgressTracker) WindowLen() int {
	return len(p.window)
}

// Snapshot summarizes current progress.
func (p *ProgressTracker) Snapshot() Progress {
	snap := Progress{
		Total:       p.TotalSize,
		Transferred: p.Transferred,
		ETA:         -1,
	}
	if !p.StartedAt.IsZero() {
		snap.Elapsed = p.now().Sub(p.StartedAt)
	}
	if p.Active != nil {
		snap.Active = p.Active.DisplayName
	}
	if p.WindowSpan > 0 {
		snap.Rate = float64(p.WindowBytes) / p.WindowSpan.Seconds()
	}
	if snap.Rate > 0 && p.TotalSize >= p.Transferred {
		remaining := float64(p.TotalSize - p.Transferred)
		snap.ETA = time.Duration(remaining / snap.Rate * float64(time.Second))
	}
	return snap
}
