package mesh

import (
	"fmt"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Role of a peer link in negotiation.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}

	return "responder"
}

// Signal payload kinds exchanged between engines. The relay never
// inspects these; only the two engines agree on the format.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalData is the negotiation blob carried inside a relayed signal event.
type SignalData struct {
	Kind      string                   `json:"kind"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// RemoteStream is an established inbound audio stream.
type RemoteStream interface {
	ReadRTP() (*rtp.Packet, error)
}

// EngineCallbacks are invoked by an engine as negotiation progresses. They
// may fire from engine-owned goroutines.
type EngineCallbacks struct {
	// OnSignal carries an outbound payload for the remote side.
	OnSignal func(data SignalData)

	// OnStream fires once an inbound media stream is established.
	OnStream func(stream RemoteStream)

	// OnFailure fires on an unrecoverable negotiation failure.
	OnFailure func(err error)
}

// Engine drives one point-to-point negotiation.
type Engine interface {
	// Start begins negotiation. An initiator produces the first offer;
	// a responder waits for one.
	Start(role Role) error

	// HandleRemote feeds a relayed payload from the remote side.
	HandleRemote(data SignalData) error

	Close() error
}

// EngineFactory builds an engine per peer link.
type EngineFactory func(cb EngineCallbacks) (Engine, error)

// WebRTCEngineConfig configures the production engine.
type WebRTCEngineConfig struct {
	ICEServers []webrtc.ICEServer

	// LocalTrack is attached to every peer connection so the remote side
	// receives the local capture.
	LocalTrack webrtc.TrackLocal
}

// NewWebRTCEngineFactory returns a factory producing pion-backed engines.
func NewWebRTCEngineFactory(cfg WebRTCEngineConfig) EngineFactory {
	return func(cb EngineCallbacks) (Engine, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}

		if cfg.LocalTrack != nil {
			if _, err = pc.AddTrack(cfg.LocalTrack); err != nil {
				pc.Close()
				return nil, fmt.Errorf("add local track: %w", err)
			}
		}

		e := &webrtcEngine{pc: pc, cb: cb}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil || e.closed.Load() {
				return
			}

			init := c.ToJSON()
			cb.OnSignal(SignalData{Kind: SignalCandidate, Candidate: &init})
		})

		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			if track.Kind() != webrtc.RTPCodecTypeAudio || e.closed.Load() {
				return
			}

			cb.OnStream(remoteTrackStream{track: track})
		})

		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			if e.closed.Load() {
				return
			}

			if state == webrtc.PeerConnectionStateFailed {
				cb.OnFailure(fmt.Errorf("peer connection failed"))
			}
		})

		return e, nil
	}
}

type webrtcEngine struct {
	pc     *webrtc.PeerConnection
	cb     EngineCallbacks
	closed atomic.Bool
}

func (e *webrtcEngine) Start(role Role) error {
	if role != RoleInitiator {
		return nil
	}

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	if err = e.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	e.cb.OnSignal(SignalData{Kind: SignalOffer, SDP: offer.SDP})

	return nil
}

func (e *webrtcEngine) HandleRemote(data SignalData) error {
	switch data.Kind {
	case SignalOffer:
		err := e.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  data.SDP,
		})
		if err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}

		answer, err := e.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}

		if err = e.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}

		e.cb.OnSignal(SignalData{Kind: SignalAnswer, SDP: answer.SDP})

		return nil

	case SignalAnswer:
		err := e.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  data.SDP,
		})
		if err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}

		return nil

	case SignalCandidate:
		if data.Candidate == nil {
			return fmt.Errorf("candidate payload is empty")
		}

		if err := e.pc.AddICECandidate(*data.Candidate); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}

		return nil

	default:
		return fmt.Errorf("unknown signal kind %q", data.Kind)
	}
}

func (e *webrtcEngine) Close() error {
	e.closed.Store(true)
	return e.pc.Close()
}

type remoteTrackStream struct {
	track *webrtc.TrackRemote
}

func (s remoteTrackStream) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.track.ReadRTP()
	return pkt, err
}
