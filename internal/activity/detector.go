package activity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Source supplies raw audio levels to a Detector. Sample reports the
// current normalized level in [0, 1]; ok turns false the moment the
// underlying stream is stopped, after which the detector releases its
// resources and stops sampling.
type Source interface {
	Sample() (raw float64, ok bool)
}

const (
	// DefaultAlpha is the exponential smoothing factor:
	// level = prev*alpha + raw*(1-alpha).
	DefaultAlpha = 0.8

	// DefaultThreshold is the speaking threshold applied to the smoothed level.
	DefaultThreshold = 0.01

	// DefaultInterval is the sampling tick period.
	DefaultInterval = 100 * time.Millisecond
)

// Options configure a Detector. Zero values fall back to the defaults.
type Options struct {
	Alpha     float64
	Threshold float64
	Interval  time.Duration
}

// Detector keeps a smoothed audio level and a speaking flag for one stream.
type Detector struct {
	src      Source
	alpha    float64
	interval time.Duration

	mu        sync.RWMutex
	threshold float64
	level     float64
	speaking  bool
	stopped   bool

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a detector over src. The threshold must be in (0, 1).
func New(src Source, opts Options) (*Detector, error) {
	if opts.Alpha == 0 {
		opts.Alpha = DefaultAlpha
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}

	if opts.Threshold <= 0 || opts.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1), got %f", opts.Threshold)
	}

	if opts.Alpha < 0 || opts.Alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in [0, 1), got %f", opts.Alpha)
	}

	return &Detector{
		src:       src,
		alpha:     opts.Alpha,
		interval:  opts.Interval,
		threshold: opts.Threshold,
		done:      make(chan struct{}),
	}, nil
}

// Run samples the source once per tick until the context is cancelled,
// Close is called or the source stops.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Close()
			return
		case <-d.done:
			return
		case <-ticker.C:
			if _, _, ok := d.Process(); !ok {
				d.Close()
				return
			}
		}
	}
}

// Process performs a single sampling tick. Repeated ticks under a constant
// raw input converge the smoothed level to that input. ok is false once the
// source has stopped.
func (d *Detector) Process() (level float64, speaking bool, ok bool) {
	raw, ok := d.src.Sample()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return 0, false, false
	}

	if !ok {
		d.stopped = true
		d.level = 0
		d.speaking = false
		return 0, false, false
	}

	d.level = d.level*d.alpha + raw*(1-d.alpha)
	d.speaking = d.level > d.threshold

	return d.level, d.speaking, true
}

// Level returns the current smoothed level in [0, 1].
func (d *Detector) Level() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.level
}

// Speaking reports whether the smoothed level exceeds the threshold.
func (d *Detector) Speaking() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.speaking
}

// Threshold returns the current speaking threshold.
func (d *Detector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// SetThreshold replaces the speaking threshold at runtime. The new value
// takes effect on the next tick; no smoothing is applied to the threshold
// itself.
func (d *Detector) SetThreshold(threshold float64) error {
	if threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got %f", threshold)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.threshold = threshold
	return nil
}

// Close stops sampling and zeroes the detector state.
func (d *Detector) Close() {
	d.closeOnce.Do(func() {
		close(d.done)

		d.mu.Lock()
		d.stopped = true
		d.level = 0
		d.speaking = false
		d.mu.Unlock()
	})
}
