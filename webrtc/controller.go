package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enesunal-m/realtimechat"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v3"
)

// DataChannelLabel names the auxiliary data channel opened with every session.
// The channel is inert: nothing is sent on it and inbound messages are only logged.
const DataChannelLabel = "oai-events"

// subscriberBuffer is the per-subscriber state change backlog.
const subscriberBuffer = 16

// ErrControllerClosed is returned by Start after Close.
var ErrControllerClosed = errors.New("webrtc: controller closed")

var errPeerConnectionFailed = realtimechat.NewNegotiationError("ice", errors.New("peer connection failed"))

// State is the lifecycle state of the controller's chat session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateChatting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateChatting:
		return "chatting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateIdle, StateStarting, StateChatting, StateFailed} {
		if string(b) == st.String() {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("webrtc: unknown state %q", b)
}

// StateChange is published to subscribers on every transition.
type StateChange struct {
	SessionID string    `json:"session_id,omitempty"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Controller drives one audio chat at a time against the provider.
//
// Start runs the whole setup sequence: credential from the issuer, microphone,
// peer connection, offer/answer exchange. A failure at any step releases what was
// created so far and leaves the controller in StateFailed. Start refuses to run
// while another session is starting or chatting.
type Controller struct {
	cfg   realtimechat.Config
	media Media
	hc    *http.Client
	api   *pion.API
	log   *realtimechat.Logger

	mu      sync.Mutex
	state   State
	current StateChange
	sess    *session
	subs    map[int]chan StateChange
	nextSub int
	closed  bool
}

// NewController validates cfg and prepares the pion API used for every session.
func NewController(cfg realtimechat.Config, m Media) (*Controller, error) {
	if err := realtimechat.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if m.NewSource == nil || m.NewSink == nil {
		return nil, realtimechat.NewConfigError("Media", "", "source and sink constructors are required")
	}
	api, err := newAPI(cfg.StructuredLogger)
	if err != nil {
		return nil, err
	}
	return &Controller{
		cfg:     cfg,
		media:   m,
		hc:      cfg.HTTPClient(),
		api:     api,
		log:     cfg.StructuredLogger,
		current: StateChange{State: StateIdle, At: time.Now()},
		subs:    make(map[int]chan StateChange),
	}, nil
}

func newAPI(l *realtimechat.Logger, opts ...func(*pion.SettingEngine)) (*pion.API, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	se := pion.SettingEngine{LoggerFactory: NewLoggerFactory(l)}
	for _, opt := range opts {
		opt(&se)
	}
	return pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(ir), pion.WithSettingEngine(se)), nil
}

// State returns the latest state change.
func (c *Controller) State() StateChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribe returns a channel of state changes and a func that ends the
// subscription. A subscriber that falls behind loses changes.
func (c *Controller) Subscribe() (<-chan StateChange, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan StateChange, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Start opens a chat session and returns once the provider's answer is applied.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state == StateStarting || c.state == StateChatting {
		c.mu.Unlock()
		return realtimechat.ErrSessionActive
	}
	s := c.newSession()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelStart = cancel
	c.sess = s
	c.setStateLocked(StateStarting, s.id, nil)
	c.mu.Unlock()

	s.log.Info("chat_starting", nil)
	return c.finishStart(s, c.connect(ctx, s))
}

// finishStart settles a Start attempt. A peer connection that already failed
// while the session was starting fails the start as well.
func (c *Controller) finishStart(s *session, err error) error {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		s.release()
		if err != nil {
			return fmt.Errorf("%w: %w", realtimechat.ErrSessionStopped, err)
		}
		return realtimechat.ErrSessionStopped
	}
	if err == nil && s.connFailed.Load() {
		err = errPeerConnectionFailed
	}
	if err != nil {
		c.sess = nil
		c.setStateLocked(StateFailed, s.id, err)
		c.mu.Unlock()
		s.release()
		s.log.Error("chat_start_failed", map[string]any{"error": err})
		return err
	}
	c.setStateLocked(StateChatting, s.id, nil)
	c.mu.Unlock()

	s.log.Info("chat_started", nil)
	return nil
}

// Stop ends the current session, cancelling it if it is still starting.
// Stop while idle does nothing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	if s == nil && c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	id := ""
	if s != nil {
		id = s.id
	}
	c.setStateLocked(StateIdle, id, nil)
	c.mu.Unlock()

	if s != nil {
		s.cancelStart()
		s.release()
		s.log.Info("chat_stopped", nil)
	}
	return nil
}

// Close stops any session and ends all subscriptions.
func (c *Controller) Close() error {
	err := c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	return err
}

func (c *Controller) newSession() *session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:     id,
		log:    c.log.WithContext(map[string]any{"session_id": id}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Controller) setStateLocked(st State, sessionID string, err error) {
	c.state = st
	change := StateChange{SessionID: sessionID, State: st, At: time.Now()}
	if err != nil {
		change.Error = err.Error()
	}
	c.current = change
	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
			c.log.Warn("state_change_dropped", map[string]any{"state": st.String()})
		}
	}
}

// connect runs the setup sequence for s. Everything it creates is registered on s
// so that release can undo it from any point.
func (c *Controller) connect(ctx context.Context, s *session) error {
	ephemeral, err := FetchEphemeralKey(ctx, c.hc, c.cfg.IssuerURL)
	if err != nil {
		return err
	}
	s.log.Debug("credential_received", nil)

	src := c.media.NewSource()
	if err := src.Open(); err != nil {
		return fmt.Errorf("%w: %w", realtimechat.ErrMicrophoneUnavailable, err)
	}
	s.setSource(src)

	pc, err := c.api.NewPeerConnection(pion.Configuration{ICEServers: iceServers(c.cfg.ICEServers)})
	if err != nil {
		return realtimechat.NewNegotiationError("create peer connection", err)
	}
	s.setPeerConnection(pc)

	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", "realtimechat")
	if err != nil {
		return realtimechat.NewNegotiationError("create audio track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return realtimechat.NewNegotiationError("add audio track", err)
	}

	sink := c.media.NewSink()
	if err := sink.Open(); err != nil {
		return realtimechat.NewNegotiationError("open audio sink", err)
	}
	s.setSink(sink)
	pc.OnTrack(func(remote *pion.TrackRemote, _ *pion.RTPReceiver) {
		if remote.Kind() != pion.RTPCodecTypeAudio || !s.playing.CompareAndSwap(false, true) {
			return
		}
		go s.playback(remote, sink)
	})
	pc.OnConnectionStateChange(func(st pion.PeerConnectionState) {
		c.connectionStateChanged(s, st)
	})

	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return realtimechat.NewNegotiationError("create data channel", err)
	}
	s.setDataChannel(dc)
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		s.log.Debug("data_channel_message", map[string]any{"bytes": len(msg.Data)})
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return realtimechat.NewNegotiationError("create offer", err)
	}
	gathered := pion.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return realtimechat.NewNegotiationError("set local description", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return realtimechat.NewNegotiationError("gather candidates", ctx.Err())
	}

	answer, err := ExchangeSDP(ctx, c.hc, NegotiationURL(c.cfg.BaseURL, c.cfg.Model), ephemeral, pc.LocalDescription().SDP)
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer}); err != nil {
		return realtimechat.NewNegotiationError("set remote description", err)
	}

	go s.capture(track, src)
	return nil
}

func (c *Controller) connectionStateChanged(s *session, st pion.PeerConnectionState) {
	s.log.Debug("peer_connection_state", map[string]any{"state": st.String()})
	if st != pion.PeerConnectionStateFailed {
		return
	}
	// Set before fail takes the lock so a Start still in progress sees it.
	s.connFailed.Store(true)
	c.fail(s, errPeerConnectionFailed)
}

// fail moves a chatting session to StateFailed. Sessions that are no longer
// current are ignored.
func (c *Controller) fail(s *session, err error) {
	c.mu.Lock()
	if c.sess != s || c.state != StateChatting {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.setStateLocked(StateFailed, s.id, err)
	c.mu.Unlock()

	s.log.Error("chat_failed", map[string]any{"error": err})
	// pion invokes this from its own goroutine; do not close the connection inline.
	go s.release()
}

func iceServers(urls []string) []pion.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []pion.ICEServer{{URLs: urls}}
}

// session holds everything owned by one Start call.
type session struct {
	id          string
	log         *realtimechat.ContextLogger
	ctx         context.Context
	cancel      context.CancelFunc
	cancelStart context.CancelFunc
	playing     atomic.Bool
	connFailed  atomic.Bool

	mu     sync.Mutex
	pc     *pion.PeerConnection
	dc     *pion.DataChannel
	source AudioSource
	sink   AudioSink
}

func (s *session) setSource(src AudioSource) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

func (s *session) setSink(sink AudioSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *session) setPeerConnection(pc *pion.PeerConnection) {
	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()
}

func (s *session) setDataChannel(dc *pion.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()
}

// release closes whatever the session holds. It is idempotent and may run
// concurrently with connect; anything registered after a release is closed by
// the next one.
func (s *session) release() {
	s.cancel()

	s.mu.Lock()
	dc, pc, src, sink := s.dc, s.pc, s.source, s.sink
	s.dc, s.pc, s.source, s.sink = nil, nil, nil, nil
	s.mu.Unlock()

	if dc != nil {
		if err := dc.Close(); err != nil {
			s.log.Debug("data_channel_close_error", map[string]any{"error": err})
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			s.log.Warn("peer_connection_close_error", map[string]any{"error": err})
		}
	}
	if src != nil {
		if err := src.Close(); err != nil {
			s.log.Warn("audio_source_close_error", map[string]any{"error": err})
		}
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			s.log.Warn("audio_sink_close_error", map[string]any{"error": err})
		}
	}
}

// capture feeds the outbound track from the source, paced by sample duration.
func (s *session) capture(track *pion.TrackLocalStaticSample, src AudioSource) {
	for {
		sample, err := src.ReadSample()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("audio_source_drained", nil)
			} else if s.ctx.Err() == nil {
				s.log.Warn("audio_source_error", map[string]any{"error": err})
			}
			return
		}
		if err := track.WriteSample(sample); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				s.log.Warn("audio_track_write_error", map[string]any{"error": err})
			}
			return
		}

		t := time.NewTimer(sample.Duration)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// playback copies the first inbound audio track into the sink.
func (s *session) playback(track *pion.TrackRemote, sink AudioSink) {
	s.log.Info("remote_audio_track", map[string]any{"codec": track.Codec().MimeType})
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if err := sink.WriteRTP(pkt); err != nil {
			if s.ctx.Err() == nil {
				s.log.Warn("audio_sink_write_error", map[string]any{"error": err})
			}
			return
		}
	}
}
