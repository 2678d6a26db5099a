package mesh

import (
	"context"
	"sync"

	"github.com/MiiZZo/voicechat/internal/activity"
	"github.com/MiiZZo/voicechat/internal/media"
)

// LinkState of a peer link.
type LinkState int

const (
	LinkNegotiating LinkState = iota
	LinkLinked
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNegotiating:
		return "negotiating"
	case LinkLinked:
		return "linked"
	default:
		return "closed"
	}
}

// PeerLink is one negotiated point-to-point audio connection to a single
// remote participant. Links are created, owned and destroyed exclusively
// by the orchestrator; identity (the remote connection id) is stable for
// the link's lifetime.
type PeerLink struct {
	remoteID string
	username string

	mu       sync.Mutex
	role     Role
	state    LinkState
	engine   Engine
	sink     media.Sink
	source   *activity.RTPSource
	detector *activity.Detector
	cancel   context.CancelFunc

	// volume is the per-participant playback gain, kept independently of
	// the mute flag so unmuting restores it.
	volume float64
	muted  bool
}

func newPeerLink(remoteID, username string, role Role, engine Engine) *PeerLink {
	return &PeerLink{
		remoteID: remoteID,
		username: username,
		role:     role,
		state:    LinkNegotiating,
		engine:   engine,
		volume:   1,
	}
}

func (l *PeerLink) RemoteID() string { return l.remoteID }

func (l *PeerLink) Username() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.username
}

func (l *PeerLink) Role() Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.role
}

func (l *PeerLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *PeerLink) Volume() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.volume
}

func (l *PeerLink) Muted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.muted
}

// Level returns the last known audio level of the remote stream.
func (l *PeerLink) Level() float64 {
	l.mu.Lock()
	d := l.detector
	l.mu.Unlock()

	if d == nil {
		return 0
	}

	return d.Level()
}

// Speaking reports whether the remote stream is classified as speaking.
func (l *PeerLink) Speaking() bool {
	l.mu.Lock()
	d := l.detector
	l.mu.Unlock()

	if d == nil {
		return false
	}

	return d.Speaking()
}

func (l *PeerLink) setUsername(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.username == "" {
		l.username = username
	}
}

func (l *PeerLink) setThreshold(threshold float64) {
	l.mu.Lock()
	d := l.detector
	l.mu.Unlock()

	if d != nil {
		_ = d.SetThreshold(threshold)
	}
}

// restartAsResponder swaps the engine after losing an offer glare. The old
// engine is closed and the link negotiates from scratch as responder.
func (l *PeerLink) restartAsResponder(engine Engine) Engine {
	l.mu.Lock()
	old := l.engine
	l.engine = engine
	l.role = RoleResponder
	l.state = LinkNegotiating
	l.mu.Unlock()

	return old
}

func (l *PeerLink) currentEngine() Engine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine
}

// attach transitions the link to Linked: the inbound stream gets an RTP
// read loop feeding the activity detector, and playback goes to the sink.
func (l *PeerLink) attach(
	ctx context.Context,
	stream RemoteStream,
	sink media.Sink,
	detector *activity.Detector,
	source *activity.RTPSource,
	deafened bool,
) {
	linkCtx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	if l.state == LinkClosed {
		l.mu.Unlock()
		cancel()
		sink.Close()
		detector.Close()
		return
	}

	l.state = LinkLinked
	l.sink = sink
	l.source = source
	l.detector = detector
	l.cancel = cancel

	gain := l.gainLocked(deafened)
	l.mu.Unlock()

	sink.SetGain(gain)

	go detector.Run(linkCtx)

	go func() {
		defer source.Stop()

		for {
			pkt, err := stream.ReadRTP()
			if err != nil {
				return
			}

			select {
			case <-linkCtx.Done():
				return
			default:
			}

			source.Observe(pkt)
		}
	}()
}

// setVolume stores the per-participant volume and applies the effective
// gain. Volume is remembered even while muted or deafened.
func (l *PeerLink) setVolume(volume float64, deafened bool) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	l.mu.Lock()
	l.volume = volume
	sink := l.sink
	gain := l.gainLocked(deafened)
	l.mu.Unlock()

	if sink != nil {
		sink.SetGain(gain)
	}
}

func (l *PeerLink) toggleMute(deafened bool) bool {
	l.mu.Lock()
	l.muted = !l.muted
	muted := l.muted
	sink := l.sink
	gain := l.gainLocked(deafened)
	l.mu.Unlock()

	if sink != nil {
		sink.SetGain(gain)
	}

	return muted
}

func (l *PeerLink) applyGain(deafened bool) {
	l.mu.Lock()
	sink := l.sink
	gain := l.gainLocked(deafened)
	l.mu.Unlock()

	if sink != nil {
		sink.SetGain(gain)
	}
}

func (l *PeerLink) gainLocked(deafened bool) float64 {
	if deafened || l.muted {
		return 0
	}

	return l.volume
}

// close releases every resource the link owns. Idempotent.
func (l *PeerLink) close() {
	l.mu.Lock()

	if l.state == LinkClosed {
		l.mu.Unlock()
		return
	}

	l.state = LinkClosed

	engine := l.engine
	sink := l.sink
	source := l.source
	detector := l.detector
	cancel := l.cancel

	l.engine = nil
	l.sink = nil
	l.source = nil
	l.detector = nil
	l.cancel = nil

	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if source != nil {
		source.Stop()
	}
	if detector != nil {
		detector.Close()
	}
	if sink != nil {
		sink.Close()
	}
	if engine != nil {
		engine.Close()
	}
}
