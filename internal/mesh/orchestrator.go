package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/MiiZZo/voicechat/internal/activity"
	"github.com/MiiZZo/voicechat/internal/application/constant"
	"github.com/MiiZZo/voicechat/internal/domain/events"
	"github.com/MiiZZo/voicechat/internal/domain/models"
	"github.com/MiiZZo/voicechat/internal/media"

	"github.com/pion/webrtc/v4"
)

// State of the orchestrator's connection to the relay.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	default:
		return "disconnected"
	}
}

// Participant is a snapshot of one peer link for the UI.
type Participant struct {
	ID       string
	Username string
	Linked   bool
	Speaking bool
	Level    float64
	Muted    bool
	Volume   float64
}

// Config for an Orchestrator.
type Config struct {
	RelayURL string
	RoomID   string
	Username string

	ICEServers []webrtc.ICEServer

	// Capture acquires the local audio capture; required.
	Capture media.CaptureFactory

	// Sink builds playback sinks for remote streams. Defaults to NopSink.
	Sink media.SinkFactory

	// Engine overrides the negotiation engine factory. Defaults to the
	// pion-backed engine with the local capture track attached.
	Engine EngineFactory

	// Dial overrides the relay transport dialer.
	Dial DialFunc

	// Threshold is the initial speaking threshold, in (0, 1).
	Threshold float64

	// ReconnectAttempts bounds the automatic retry after an unexpected
	// transport loss. Caller-initiated disconnects are never retried.
	ReconnectAttempts uint64

	OnParticipants func([]Participant)
	OnError        func(message string)
}

// Orchestrator owns a client's peer links, keyed by remote connection id,
// and drives their connect/disconnect lifecycle. At most one link per
// remote exists at any time; links are never shared outside the
// orchestrator that created them.
type Orchestrator struct {
	cfg Config

	mu            sync.Mutex
	state         State
	localID       string
	roster        []string
	transport     Transport
	capture       media.Capture
	localDetector *activity.Detector
	engineFactory EngineFactory
	links         map[string]*PeerLink
	threshold     float64
	muted         bool
	deafened      bool
	userClosed    bool
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	// gen identifies the current connect attempt. An attempt whose gen is
	// stale (a Disconnect or a newer Connect happened meanwhile) must tear
	// down whatever it acquired instead of storing it.
	gen uint64
}

// NewOrchestrator validates the config and prepares an orchestrator in the
// Disconnected state.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.RelayURL == "" {
		return nil, fmt.Errorf("relay url is required")
	}

	if cfg.Capture == nil {
		return nil, fmt.Errorf("capture factory is required")
	}

	roomID, err := models.NormalizeRoomID(cfg.RoomID)
	if err != nil {
		return nil, fmt.Errorf("room id: %w", err)
	}
	cfg.RoomID = roomID

	if err := models.ValidateUsername(cfg.Username); err != nil {
		return nil, fmt.Errorf("username: %w", err)
	}

	if cfg.Threshold == 0 {
		cfg.Threshold = activity.DefaultThreshold
	}
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1)")
	}

	if cfg.Sink == nil {
		cfg.Sink = func(string, string) media.Sink { return media.NopSink() }
	}

	if cfg.Dial == nil {
		cfg.Dial = Dial
	}

	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = 3
	}

	return &Orchestrator{
		cfg:       cfg,
		links:     make(map[string]*PeerLink),
		threshold: cfg.Threshold,
	}, nil
}

// Connect acquires the local capture, opens the relay transport and joins
// the room. A no-op unless the orchestrator is Disconnected, so a second
// call never opens a duplicate transport. A capture failure is fatal and
// not retried.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateDisconnected {
		o.mu.Unlock()
		return nil
	}
	o.state = StateConnecting
	o.userClosed = false
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	capture, err := o.cfg.Capture(ctx)
	if err != nil {
		o.abortConnect(gen)
		return fmt.Errorf("acquire local capture: %w", err)
	}

	// Disconnect may have landed while the capture was being acquired.
	if !o.stillConnecting(gen) {
		capture.Close()
		return nil
	}

	transport, err := o.cfg.Dial(ctx, o.cfg.RelayURL)
	if err != nil {
		capture.Close()
		o.abortConnect(gen)
		return err
	}

	detector, err := activity.New(
		activity.NewPCMSource(capture.Frame),
		activity.Options{Threshold: o.Threshold()},
	)
	if err != nil {
		capture.Close()
		transport.Close()
		o.abortConnect(gen)
		return err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	engineFactory := o.cfg.Engine
	if engineFactory == nil {
		engineFactory = NewWebRTCEngineFactory(WebRTCEngineConfig{
			ICEServers: o.cfg.ICEServers,
			LocalTrack: capture.Track(),
		})
	}

	o.mu.Lock()
	if o.gen != gen || o.userClosed || o.state != StateConnecting {
		o.mu.Unlock()

		cancel()
		detector.Close()
		capture.Close()
		transport.Close()

		return nil
	}
	o.capture = capture
	o.transport = transport
	o.localDetector = detector
	o.engineFactory = engineFactory
	o.sessionCtx = sessionCtx
	o.sessionCancel = cancel
	o.mu.Unlock()

	go detector.Run(sessionCtx)

	if err := o.sendJoin(transport); err != nil {
		o.Disconnect()
		return err
	}

	go o.eventLoop(sessionCtx, transport)

	return nil
}

// Disconnect closes every peer link, stops the local capture and closes
// the transport. Safe to call multiple times and from teardown paths.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()

	o.userClosed = true
	o.state = StateDisconnected

	links := o.links
	o.links = make(map[string]*PeerLink)

	transport := o.transport
	o.transport = nil

	capture := o.capture
	o.capture = nil

	detector := o.localDetector
	o.localDetector = nil

	cancel := o.sessionCancel
	o.sessionCancel = nil
	o.sessionCtx = nil

	o.engineFactory = nil
	o.localID = ""
	o.roster = nil

	o.mu.Unlock()

	for _, link := range links {
		link.close()
	}

	if cancel != nil {
		cancel()
	}
	if detector != nil {
		detector.Close()
	}
	if capture != nil {
		capture.Close()
	}
	if transport != nil {
		transport.Close()
	}
}

// ToggleMute flips the local capture's enabled flag only; no link is
// closed or renegotiated. Returns the new muted state.
func (o *Orchestrator) ToggleMute() bool {
	o.mu.Lock()
	o.muted = !o.muted
	muted := o.muted
	capture := o.capture
	o.mu.Unlock()

	if capture != nil {
		capture.SetEnabled(!muted)
	}

	return muted
}

// ToggleDeafen zeroes playback gain on every attached remote stream, or
// restores each link's own volume. Playback-side only.
func (o *Orchestrator) ToggleDeafen() bool {
	o.mu.Lock()
	o.deafened = !o.deafened
	deafened := o.deafened
	links := o.linksSnapshotLocked()
	o.mu.Unlock()

	for _, link := range links {
		link.applyGain(deafened)
	}

	return deafened
}

// SetVolume adjusts one participant's playback gain, clamped to [0, 1].
func (o *Orchestrator) SetVolume(remoteID string, volume float64) {
	link, deafened := o.linkAndDeafened(remoteID)
	if link == nil {
		return
	}

	link.setVolume(volume, deafened)
}

// ToggleMuteParticipant mutes or unmutes one participant's playback.
func (o *Orchestrator) ToggleMuteParticipant(remoteID string) bool {
	link, deafened := o.linkAndDeafened(remoteID)
	if link == nil {
		return false
	}

	return link.toggleMute(deafened)
}

// SetThreshold replaces the speaking threshold on the local detector and
// on every link's detector.
func (o *Orchestrator) SetThreshold(threshold float64) error {
	if threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1)")
	}

	o.mu.Lock()
	o.threshold = threshold
	detector := o.localDetector
	links := o.linksSnapshotLocked()
	o.mu.Unlock()

	if detector != nil {
		if err := detector.SetThreshold(threshold); err != nil {
			return err
		}
	}

	for _, link := range links {
		link.setThreshold(threshold)
	}

	return nil
}

func (o *Orchestrator) Threshold() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.threshold
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LocalID returns the relay-assigned connection id, empty until the
// connected event arrives.
func (o *Orchestrator) LocalID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.localID
}

// Roster returns the last membership snapshot pushed by the relay,
// excluding the local user. The relay is authoritative for membership.
func (o *Orchestrator) Roster() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	roster := make([]string, len(o.roster))
	copy(roster, o.roster)

	return roster
}

// LocalLevel returns the smoothed level of the local capture.
func (o *Orchestrator) LocalLevel() float64 {
	o.mu.Lock()
	detector := o.localDetector
	o.mu.Unlock()

	if detector == nil {
		return 0
	}

	return detector.Level()
}

// LocalSpeaking reports whether the local capture is classified as speaking.
func (o *Orchestrator) LocalSpeaking() bool {
	o.mu.Lock()
	detector := o.localDetector
	o.mu.Unlock()

	if detector == nil {
		return false
	}

	return detector.Speaking()
}

// Participants snapshots every peer link, sorted by remote id.
func (o *Orchestrator) Participants() []Participant {
	o.mu.Lock()
	links := o.linksSnapshotLocked()
	o.mu.Unlock()

	participants := make([]Participant, 0, len(links))
	for _, link := range links {
		participants = append(participants, Participant{
			ID:       link.RemoteID(),
			Username: link.Username(),
			Linked:   link.State() == LinkLinked,
			Speaking: link.Speaking(),
			Level:    link.Level(),
			Muted:    link.Muted(),
			Volume:   link.Volume(),
		})
	}

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ID < participants[j].ID
	})

	return participants
}

func (o *Orchestrator) eventLoop(ctx context.Context, t Transport) {
	for msg := range t.Events() {
		o.handleEvent(msg)
	}

	o.mu.Lock()
	if o.userClosed || o.transport != t {
		o.mu.Unlock()
		return
	}
	o.transport = nil
	o.mu.Unlock()

	if t.Err() == nil {
		return
	}

	o.reportError("relay connection lost, reconnecting")

	// Re-mesh from scratch: the relay assigns a fresh connection id on
	// reconnect, so existing links are tied to an id the room no longer
	// knows about.
	o.closeAllLinks()

	o.reconnect(ctx)
}

func (o *Orchestrator) reconnect(ctx context.Context) {
	backoff := retry.WithMaxRetries(o.cfg.ReconnectAttempts, retry.NewExponential(time.Second))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := o.cfg.Dial(ctx, o.cfg.RelayURL)
		if err != nil {
			return retry.RetryableError(err)
		}

		if err := o.sendJoin(t); err != nil {
			t.Close()
			return retry.RetryableError(err)
		}

		o.mu.Lock()
		if o.userClosed {
			o.mu.Unlock()
			t.Close()
			return nil
		}
		o.state = StateConnecting
		o.transport = t
		o.mu.Unlock()

		go o.eventLoop(ctx, t)

		return nil
	})
	if err != nil {
		o.mu.Lock()
		closed := o.userClosed
		o.mu.Unlock()

		// The caller disconnected while the retry was in flight; the
		// abandoned attempt is not an error worth surfacing.
		if closed {
			return
		}

		o.reportError("could not reconnect to relay")
		o.Disconnect()
	}
}

func (o *Orchestrator) handleEvent(msg events.Message) {
	switch msg.Type {
	case events.TypeConnected:
		var ev events.ConnectedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}

		o.mu.Lock()
		o.localID = ev.UserID
		o.mu.Unlock()

	case events.TypeParticipants:
		var names []string
		if err := json.Unmarshal(msg.Data, &names); err != nil {
			return
		}

		o.mu.Lock()
		if o.state == StateConnecting {
			o.state = StateJoined
		}
		o.roster = names
		o.mu.Unlock()

		o.notifyParticipants()

	case events.TypeUserJoined:
		var ev events.UserJoinedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}

		o.ensureLink(ev.UserID, ev.Username, RoleInitiator, nil)

	case events.TypeUserLeft:
		var ev events.UserLeftEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}

		o.removeLink(ev.UserID)

	case events.TypeSignal:
		var ev events.SignalForwardEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}

		o.handleSignal(ev)

	case events.TypeError:
		var message string
		if err := json.Unmarshal(msg.Data, &message); err != nil {
			return
		}

		o.reportError(message)
	}
}

// ensureLink creates a peer link for a remote unless one already exists.
// The duplicate-creation attempt for a known id is ignored, which keeps
// exactly one link per remote.
func (o *Orchestrator) ensureLink(remoteID, username string, role Role, pending *SignalData) {
	o.mu.Lock()
	if link, ok := o.links[remoteID]; ok {
		o.mu.Unlock()
		link.setUsername(username)
		return
	}

	factory := o.engineFactory
	if factory == nil || o.state == StateDisconnected {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	engine, err := factory(o.callbacksFor(remoteID))
	if err != nil {
		o.reportError(fmt.Sprintf("create peer link: %v", err))
		return
	}

	link := newPeerLink(remoteID, username, role, engine)

	o.mu.Lock()
	if _, ok := o.links[remoteID]; ok || o.state == StateDisconnected {
		o.mu.Unlock()
		engine.Close()
		return
	}
	o.links[remoteID] = link
	o.mu.Unlock()

	slog.Info("peer link created",
		slog.String(constant.UserID, remoteID),
		slog.String("role", role.String()),
	)

	switch {
	case role == RoleInitiator:
		if err := engine.Start(RoleInitiator); err != nil {
			o.failLink(remoteID, err)
			return
		}
	case pending != nil:
		if err := engine.HandleRemote(*pending); err != nil {
			o.failLink(remoteID, err)
			return
		}
	}

	o.notifyParticipants()
}

func (o *Orchestrator) handleSignal(ev events.SignalForwardEvent) {
	var data SignalData
	if err := json.Unmarshal(ev.Signal, &data); err != nil {
		slog.Error("unmarshal signal payload", slog.Any(constant.Error, err))
		return
	}

	o.mu.Lock()
	link, ok := o.links[ev.FromUserID]
	localID := o.localID
	factory := o.engineFactory
	o.mu.Unlock()

	if !ok {
		// The remote initiated first; we answer. A responder never sends
		// the first payload.
		o.ensureLink(ev.FromUserID, "", RoleResponder, &data)
		return
	}

	// Offer glare: both sides initiated at once. The lexicographically
	// lower connection id keeps the initiator role; the other side
	// restarts its link as responder and consumes the offer.
	if data.Kind == SignalOffer && link.Role() == RoleInitiator && link.State() == LinkNegotiating {
		if localID < ev.FromUserID {
			return
		}

		if factory == nil {
			return
		}

		engine, err := factory(o.callbacksFor(ev.FromUserID))
		if err != nil {
			o.failLink(ev.FromUserID, err)
			return
		}

		if old := link.restartAsResponder(engine); old != nil {
			old.Close()
		}

		if err := engine.HandleRemote(data); err != nil {
			o.failLink(ev.FromUserID, err)
		}

		return
	}

	engine := link.currentEngine()
	if engine == nil {
		return
	}

	if err := engine.HandleRemote(data); err != nil {
		slog.Error("handle signal",
			slog.Any(constant.Error, err),
			slog.String(constant.UserID, ev.FromUserID),
		)
	}
}

func (o *Orchestrator) callbacksFor(remoteID string) EngineCallbacks {
	return EngineCallbacks{
		OnSignal: func(data SignalData) {
			o.sendSignal(remoteID, data)
		},
		OnStream: func(stream RemoteStream) {
			o.attachStream(remoteID, stream)
		},
		OnFailure: func(err error) {
			o.failLink(remoteID, err)
		},
	}
}

func (o *Orchestrator) sendSignal(remoteID string, data SignalData) {
	o.mu.Lock()
	t := o.transport
	o.mu.Unlock()

	if t == nil {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return
	}

	msg, err := events.NewMessage(events.TypeSignal, events.SignalEvent{
		TargetUserID: remoteID,
		Signal:       raw,
		RoomID:       o.cfg.RoomID,
	})
	if err != nil {
		return
	}

	if err := t.Send(msg); err != nil {
		slog.Error("send signal", slog.Any(constant.Error, err))
	}
}

func (o *Orchestrator) attachStream(remoteID string, stream RemoteStream) {
	o.mu.Lock()
	link, ok := o.links[remoteID]
	sessionCtx := o.sessionCtx
	deafened := o.deafened
	threshold := o.threshold
	o.mu.Unlock()

	if !ok || sessionCtx == nil {
		return
	}

	source := activity.NewRTPSource(0, media.ULawLevel)

	detector, err := activity.New(source, activity.Options{Threshold: threshold})
	if err != nil {
		return
	}

	sink := o.cfg.Sink(remoteID, link.Username())

	link.attach(sessionCtx, stream, sink, detector, source, deafened)

	slog.Info("peer link established", slog.String(constant.UserID, remoteID))

	o.notifyParticipants()
}

// failLink closes and removes one link; other links and the transport are
// unaffected.
func (o *Orchestrator) failLink(remoteID string, err error) {
	slog.Error("peer link failed",
		slog.Any(constant.Error, err),
		slog.String(constant.UserID, remoteID),
	)

	o.removeLink(remoteID)
}

func (o *Orchestrator) removeLink(remoteID string) {
	o.mu.Lock()
	link, ok := o.links[remoteID]
	if ok {
		delete(o.links, remoteID)
	}
	o.mu.Unlock()

	if !ok {
		return
	}

	link.close()

	o.notifyParticipants()
}

func (o *Orchestrator) closeAllLinks() {
	o.mu.Lock()
	links := o.links
	o.links = make(map[string]*PeerLink)
	o.mu.Unlock()

	for _, link := range links {
		link.close()
	}
}

func (o *Orchestrator) sendJoin(t Transport) error {
	msg, err := events.NewMessage(events.TypeJoinRoom, events.JoinRoomEvent{
		RoomID:   o.cfg.RoomID,
		Username: o.cfg.Username,
	})
	if err != nil {
		return err
	}

	return t.Send(msg)
}

func (o *Orchestrator) linkAndDeafened(remoteID string) (*PeerLink, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.links[remoteID], o.deafened
}

func (o *Orchestrator) linksSnapshotLocked() []*PeerLink {
	links := make([]*PeerLink, 0, len(o.links))
	for _, link := range o.links {
		links = append(links, link)
	}

	return links
}

// stillConnecting reports whether the given connect attempt is still the
// current one.
func (o *Orchestrator) stillConnecting(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.gen == gen && o.state == StateConnecting && !o.userClosed
}

// abortConnect rolls the state back to Disconnected after a failed connect
// attempt, unless a newer attempt took over.
func (o *Orchestrator) abortConnect(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.gen == gen && o.state == StateConnecting {
		o.state = StateDisconnected
	}
}

func (o *Orchestrator) notifyParticipants() {
	if o.cfg.OnParticipants == nil {
		return
	}

	o.cfg.OnParticipants(o.Participants())
}

func (o *Orchestrator) reportError(message string) {
	slog.Warn("orchestrator error", slog.String("message", message))

	if o.cfg.OnError != nil {
		o.cfg.OnError(message)
	}
}
