package ui

import (
	"sync"
	"time"
)

// ProgressTracker tracks build progress and throughput for the TUI.
type ProgressTracker struct {
	mu         sync.Mutex
	stage      Stage
	current    int
	total      int
	stageStart time.Time
	start      time.Time
	errorCount int
	warnCount  int
	now        func() time.Time
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64
	Rate       float64
	ETA        time.Duration
	Elapsed    time.Duration
	ErrorCount int
	WarnCount  int
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{start: now, stageStart: now, now: time.Now}
}

// SetStage moves to a new stage and resets the counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.stageStart = p.now()
}

// Update records the number of items done in the current stage.
func (p *ProgressTracker) Update(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnCount++
	} else {
		p.errorCount++
	}
}

// Stats returns the current progress.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	stats := ProgressStats{
		Stage:      p.stage,
		Current:    p.current,
		Total:      p.total,
		Elapsed:    now.Sub(p.start),
		ErrorCount: p.errorCount,
		WarnCount:  p.warnCount,
	}
	if p.total > 0 {
		stats.Progress = min(float64(p.current)/float64(p.total), 1)
	}
	if secs := now.Sub(p.stageStart).Seconds(); secs > 0 && p.current > 0 {
		stats.Rate = float64(p.current) / secs
		if p.total > p.current {
			stats.ETA = time.Duration(float64(p.total-p.current) / stats.Rate * float64(time.Second))
		}
	}
	return stats
}
