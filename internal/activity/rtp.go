package activity

import (
	"sync"

	"github.com/pion/rtp"
)

// PayloadLevelFunc derives a normalized level from a codec payload. Used as
// a fallback when packets carry no audio-level header extension.
type PayloadLevelFunc func(payload []byte) float64

// RTPSource derives raw levels from inbound RTP packets. When the RFC 6464
// audio-level extension is negotiated its attenuation value is used
// directly; otherwise the payload fallback applies.
type RTPSource struct {
	extID        uint8
	payloadLevel PayloadLevelFunc

	mu      sync.Mutex
	raw     float64
	stopped bool
}

// NewRTPSource creates a source. extID is the negotiated id of the
// audio-level header extension, 0 if not negotiated.
func NewRTPSource(extID uint8, payloadLevel PayloadLevelFunc) *RTPSource {
	return &RTPSource{extID: extID, payloadLevel: payloadLevel}
}

// Observe updates the raw level from one packet. Called by the stream's
// read loop for every received packet.
func (s *RTPSource) Observe(pkt *rtp.Packet) {
	if pkt == nil {
		return
	}

	if s.extID != 0 {
		if buf := pkt.GetExtension(s.extID); buf != nil {
			var ext rtp.AudioLevelExtension
			if err := ext.Unmarshal(buf); err == nil {
				// Level is attenuation in dBov: 0 is loudest, 127 silence.
				s.set(1 - float64(ext.Level)/127)
				return
			}
		}
	}

	if s.payloadLevel != nil {
		s.set(s.payloadLevel(pkt.Payload))
	}
}

// Stop marks the stream as gone; subsequent samples report not-ok.
func (s *RTPSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *RTPSource) Sample() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, false
	}

	return s.raw, true
}

func (s *RTPSource) set(raw float64) {
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}

	s.mu.Lock()
	s.raw = raw
	s.mu.Unlock()
}
