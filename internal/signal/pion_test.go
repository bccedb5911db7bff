package signal

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestSessionDescription(t *testing.T) {
	desc, err := Answer("v=0").SessionDescription()
	if err != nil {
		t.Fatalf("SessionDescription: %v", err)
	}
	if desc.Type != webrtc.SDPTypeAnswer || desc.SDP != "v=0" {
		t.Fatalf("desc = %+v", desc)
	}

	if _, err := Offer("").SessionDescription(); err == nil {
		t.Fatalf("expected error for offer without sdp")
	}
	if _, err := CandidateEnvelope(Candidate{Candidate: "x"}).SessionDescription(); err == nil {
		t.Fatalf("expected error for candidate envelope")
	}
}

func TestFromSessionDescription(t *testing.T) {
	env, err := FromSessionDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	if err != nil {
		t.Fatalf("FromSessionDescription: %v", err)
	}
	if env.Kind != KindOffer || env.Type != "offer" || env.SDP != "v=0" {
		t.Fatalf("env = %+v", env)
	}

	if _, err := FromSessionDescription(webrtc.SessionDescription{Type: webrtc.SDPTypePranswer, SDP: "v=0"}); err == nil {
		t.Fatalf("expected error for pranswer")
	}
}

func TestCandidatePionConversion(t *testing.T) {
	mid := "0"
	idx := uint16(1)
	ufrag := "abcd"
	c := Candidate{
		Candidate:        "candidate:1 1 udp 2130706431 192.0.2.1 5000 typ host",
		SDPMid:           &mid,
		SDPMLineIndex:    &idx,
		UsernameFragment: &ufrag,
	}

	init := c.ToPion()
	if init.Candidate != c.Candidate || *init.SDPMid != "0" || *init.SDPMLineIndex != 1 || *init.UsernameFragment != "abcd" {
		t.Fatalf("ToPion = %+v", init)
	}

	back := CandidateFromPion(init)
	if back.Candidate != c.Candidate || back.SDPMid != c.SDPMid || back.SDPMLineIndex != c.SDPMLineIndex {
		t.Fatalf("CandidateFromPion = %+v", back)
	}
}
