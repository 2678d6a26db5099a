package media

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

const (
	toneSampleRate    = 8000
	toneFrameDuration = 20 * time.Millisecond
	toneFrameSamples  = toneSampleRate / 50 // 160 samples per 20ms
)

// ToneCapture synthesizes a sine tone as G.711 mu-law 8 kHz mono frames.
// It stands in for a microphone in the diagnostic client and in tests.
type ToneCapture struct {
	track *webrtc.TrackLocalStaticSample
	freq  float64
	gain  float64

	mu      sync.Mutex
	enabled bool
	frame   []int16
	phase   float64
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewToneCapture creates a capture producing a tone at freq Hz with the
// given gain in [0, 1] and starts its frame loop.
func NewToneCapture(freq, gain float64) (*ToneCapture, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypePCMU,
			ClockRate: toneSampleRate,
			Channels:  1,
		},
		"audio", "voicechat",
	)
	if err != nil {
		return nil, fmt.Errorf("create local track: %w", err)
	}

	c := &ToneCapture{
		track:   track,
		freq:    freq,
		gain:    gain,
		enabled: true,
		done:    make(chan struct{}),
	}

	go c.run()

	return c, nil
}

func (c *ToneCapture) Track() webrtc.TrackLocal {
	return c.track
}

func (c *ToneCapture) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *ToneCapture) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *ToneCapture) Frame() ([]int16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}

	frame := make([]int16, len(c.frame))
	copy(frame, c.frame)

	return frame, true
}

func (c *ToneCapture) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.done)
	})

	return nil
}

func (c *ToneCapture) run() {
	ticker := time.NewTicker(toneFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeFrame()
		}
	}
}

func (c *ToneCapture) writeFrame() {
	frame := make([]int16, toneFrameSamples)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	// A muted capture keeps the cadence and sends silence, the same way a
	// disabled media track does.
	if c.enabled {
		step := 2 * math.Pi * c.freq / toneSampleRate
		for i := range frame {
			frame[i] = int16(c.gain * math.MaxInt16 * math.Sin(c.phase))
			c.phase += step
		}

		if c.phase > 2*math.Pi {
			c.phase -= 2 * math.Pi * math.Floor(c.phase/(2*math.Pi))
		}
	}

	c.frame = frame
	c.mu.Unlock()

	_ = c.track.WriteSample(pionmedia.Sample{
		Data:     ULawEncode(frame),
		Duration: toneFrameDuration,
	})
}
