package media

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Capture is a local audio capture, exclusively owned by the orchestrator
// that acquired it. The track is attached to every peer connection;
// SetEnabled(false) mutes the capture without touching negotiation.
type Capture interface {
	Track() webrtc.TrackLocal

	SetEnabled(enabled bool)
	Enabled() bool

	// Frame returns the most recent PCM frame for level metering.
	// ok is false once the capture is closed.
	Frame() (frame []int16, ok bool)

	Close() error
}

// CaptureFactory acquires the local capture during connect. A factory
// error is fatal to connect and is never retried.
type CaptureFactory func(ctx context.Context) (Capture, error)
