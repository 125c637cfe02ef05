// Package metrics observes frame rate and render time. It never changes
// what the stage does; it only reports.
package metrics

import (
	"fmt"
	"time"
)

type WarningKind int

const (
	WarnLowFPS WarningKind = iota
	WarnSlowRender
)

func (k WarningKind) String() string {
	switch k {
	case WarnLowFPS:
		return "low-fps"
	case WarnSlowRender:
		return "slow-render"
	}
	return fmt.Sprintf("warning(%d)", int(k))
}

// Warning is one performance degradation episode.
type Warning struct {
	Kind      WarningKind
	At        time.Duration
	FPS       float64
	Render    time.Duration
	Threshold float64
}

func (w Warning) String() string {
	if w.Kind == WarnLowFPS {
		return fmt.Sprintf("%s: %.1f fps < %.1f", w.Kind, w.FPS, w.Threshold)
	}
	return fmt.Sprintf("%s: %s > %s", w.Kind, w.Render, time.Duration(w.Threshold))
}

type Config struct {
	MinFPS        float64
	MaxRenderTime time.Duration
	// Sustain is how long a condition must hold before it is reported.
	Sustain time.Duration
}

func DefaultConfig() Config {
	return Config{MinFPS: 30, MaxRenderTime: 12 * time.Millisecond, Sustain: 2 * time.Second}
}

type Snapshot struct {
	FPS           float64
	AvgRenderTime time.Duration
	MaxRenderTime time.Duration
	Frames        int
	Warnings      int
}

type episode struct {
	since    time.Duration
	active   bool
	reported bool
}

// update tracks one condition and reports true once per episode, after it
// has held for sustain.
func (e *episode) update(bad bool, now, sustain time.Duration) bool {
	if !bad {
		*e = episode{}
		return false
	}
	if !e.active {
		e.active, e.since = true, now
	}
	if e.reported || now-e.since < sustain {
		return false
	}
	e.reported = true
	return true
}

// Monitor counts frames per wall-clock second and averages render time over
// the same window.
type Monitor struct {
	cfg Config

	windowStart  time.Duration
	windowFrames int
	windowRender time.Duration
	started      bool

	snap Snapshot
	low  episode
	slow episode
}

func NewMonitor(cfg Config) *Monitor {
	d := DefaultConfig()
	if cfg.MinFPS <= 0 {
		cfg.MinFPS = d.MinFPS
	}
	if cfg.MaxRenderTime <= 0 {
		cfg.MaxRenderTime = d.MaxRenderTime
	}
	if cfg.Sustain < 0 {
		cfg.Sustain = 0
	}
	return &Monitor{cfg: cfg}
}

// Frame records one drawn frame that finished at wall time now and took
// render to draw. Warnings are returned at most once per degradation
// episode.
func (m *Monitor) Frame(now, render time.Duration) []Warning {
	if !m.started {
		m.started, m.windowStart = true, now
	}
	m.snap.Frames++
	m.windowFrames++
	m.windowRender += render
	if render > m.snap.MaxRenderTime {
		m.snap.MaxRenderTime = render
	}

	elapsed := now - m.windowStart
	if elapsed < time.Second {
		return nil
	}
	m.snap.FPS = float64(m.windowFrames) / elapsed.Seconds()
	m.snap.AvgRenderTime = m.windowRender / time.Duration(m.windowFrames)
	m.windowStart, m.windowFrames, m.windowRender = now, 0, 0

	var out []Warning
	if m.low.update(m.snap.FPS < m.cfg.MinFPS, now, m.cfg.Sustain) {
		out = append(out, Warning{Kind: WarnLowFPS, At: now, FPS: m.snap.FPS, Threshold: m.cfg.MinFPS})
	}
	if m.slow.update(m.snap.AvgRenderTime > m.cfg.MaxRenderTime, now, m.cfg.Sustain) {
		out = append(out, Warning{Kind: WarnSlowRender, At: now, Render: m.snap.AvgRenderTime, Threshold: float64(m.cfg.MaxRenderTime)})
	}
	m.snap.Warnings += len(out)
	return out
}

func (m *Monitor) Snapshot() Snapshot { return m.snap }

func (m *Monitor) Reset() {
	*m = Monitor{cfg: m.cfg}
}
