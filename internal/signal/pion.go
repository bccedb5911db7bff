package signal

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// SessionDescription converts an offer or answer envelope to pion's type.
func (e Envelope) SessionDescription() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch e.Kind {
	case KindOffer:
		t = webrtc.SDPTypeOffer
	case KindAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("envelope kind %q carries no session description", e.Kind)
	}
	if e.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%s envelope missing sdp", e.Kind)
	}
	return webrtc.SessionDescription{Type: t, SDP: e.SDP}, nil
}

func FromSessionDescription(desc webrtc.SessionDescription) (Envelope, error) {
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		return Offer(desc.SDP), nil
	case webrtc.SDPTypeAnswer:
		return Answer(desc.SDP), nil
	default:
		return Envelope{}, fmt.Errorf("unsupported sdp type %q", desc.Type.String())
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}
