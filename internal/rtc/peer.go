package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/saeid-a/TeleClinicBack/internal/telehealth"
)

var errNotSampleTrack = errors.New("track is not a sample track")

// PeerConn adapts *webrtc.PeerConnection to the engine's PeerConnection.
type PeerConn struct {
	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	senders map[telehealth.TrackKind]*webrtc.RTPSender
}

func mapState(state webrtc.PeerConnectionState) telehealth.ConnectionState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return telehealth.StateNew
	case webrtc.PeerConnectionStateConnecting:
		return telehealth.StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return telehealth.StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return telehealth.StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return telehealth.StateFailed
	default:
		return telehealth.StateClosed
	}
}

func (p *PeerConn) AddTrack(track telehealth.LocalTrack) error {
	t, ok := track.(*Track)
	if !ok {
		return errNotSampleTrack
	}
	sender, err := p.pc.AddTrack(t.sample)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.senders[track.Kind()] = sender
	p.mu.Unlock()
	return nil
}

// ReplaceVideoTrack swaps the video sender's track without renegotiation.
func (p *PeerConn) ReplaceVideoTrack(track telehealth.LocalTrack) error {
	t, ok := track.(*Track)
	if !ok {
		return errNotSampleTrack
	}

	p.mu.Lock()
	sender, ok := p.senders[telehealth.TrackVideo]
	p.mu.Unlock()
	if !ok {
		return telehealth.ErrConnectionNotFound
	}
	return sender.ReplaceTrack(t.sample)
}

func (p *PeerConn) OnCandidate(fn func(candidate string)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON().Candidate)
	})
}

type remoteTrack struct {
	tr *webrtc.TrackRemote
}

func (r remoteTrack) ID() string { return r.tr.ID() }

func (r remoteTrack) Kind() telehealth.TrackKind {
	if r.tr.Kind() == webrtc.RTPCodecTypeAudio {
		return telehealth.TrackAudio
	}
	return telehealth.TrackVideo
}

func (p *PeerConn) OnRemoteTrack(fn func(track telehealth.RemoteTrack)) {
	p.pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(remoteTrack{tr: tr})
	})
}

func (p *PeerConn) OnStateChange(fn func(state telehealth.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		fn(mapState(state))
	})
}

func (p *PeerConn) AddRemoteCandidate(candidate string) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

// Stats maps pion's report to the engine's cumulative snapshot: received
// bytes and losses from the inbound RTP streams, latency from the succeeded
// candidate pair.
func (p *PeerConn) Stats(_ context.Context) (telehealth.TransportStats, error) {
	report := p.pc.GetStats()

	var stats telehealth.TransportStats
	for _, entry := range report {
		switch s := entry.(type) {
		case webrtc.InboundRTPStreamStats:
			stats.BytesReceived += s.BytesReceived
			stats.PacketsLost += int(s.PacketsLost)
		case webrtc.ICECandidatePairStats:
			if s.State == webrtc.StatsICECandidatePairStateSucceeded {
				stats.RoundTripTime = time.Duration(s.CurrentRoundTripTime * float64(time.Second))
			}
		}
	}
	return stats, nil
}

func (p *PeerConn) Close() error {
	return p.pc.Close()
}

// HandleOffer applies a remote offer and returns the local answer SDP. Used
// by the signaling layer for connections terminated at this process.
func (p *PeerConn) HandleOffer(offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// Dialer builds pion peer connections with the configured NAT-traversal
// helper servers.
type Dialer struct {
	api *webrtc.API
}

func NewDialer() *Dialer {
	return &Dialer{api: webrtc.NewAPI()}
}

func (d *Dialer) Dial(_ context.Context, cfg telehealth.PeerConfig) (telehealth.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	pc, err := d.api.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}
	return &PeerConn{
		pc:      pc,
		senders: make(map[telehealth.TrackKind]*webrtc.RTPSender),
	}, nil
}
