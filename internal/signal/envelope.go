package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMalformed is returned by Decode when the input is not a single JSON object.
	ErrMalformed = errors.New("signal: malformed message")
	// ErrInvalidField is returned by Decode for a well-formed object whose
	// "sdp" or "candidate" does not fit its kind. The envelope is still
	// returned so the caller can log it.
	ErrInvalidField = errors.New("signal: invalid field")
)

// MalformedMessageError is the fixed error text replied to clients that send
// non-JSON data.
const MalformedMessageError = "Non-JSON message received"

type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
	KindUnknown   Kind = "unknown"
)

func kindFromType(t string) Kind {
	switch Kind(t) {
	case KindOffer, KindAnswer, KindCandidate:
		return Kind(t)
	default:
		return KindUnknown
	}
}

// Candidate mirrors the browser RTCIceCandidateInit dictionary.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Envelope is one decoded signaling message.
type Envelope struct {
	Kind Kind
	// Type is the raw "type" field, kept so unknown kinds can be logged.
	Type      string
	SDP       string
	Candidate *Candidate
}

func Offer(sdp string) Envelope {
	return Envelope{Kind: KindOffer, Type: string(KindOffer), SDP: sdp}
}

func Answer(sdp string) Envelope {
	return Envelope{Kind: KindAnswer, Type: string(KindAnswer), SDP: sdp}
}

func CandidateEnvelope(c Candidate) Envelope {
	return Envelope{Kind: KindCandidate, Type: string(KindCandidate), Candidate: &c}
}

type wireMessage struct {
	Type      string     `json:"type,omitempty"`
	SDP       wireSDP    `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

// wireSDP accepts both the bare SDP string sent by simple-peer style clients
// and the {"type","sdp"} RTCSessionDescriptionInit object.
type wireSDP string

func (s *wireSDP) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = wireSDP(str)
		return nil
	}
	var desc struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(b, &desc); err != nil {
		return fmt.Errorf("sdp must be a string or session description object: %w", err)
	}
	*s = wireSDP(desc.SDP)
	return nil
}

// Decode parses raw as a single JSON object. A missing or unrecognized "type"
// yields KindUnknown without error. Only the field the kind carries is
// checked: "sdp" for offers and answers, "candidate" for candidates.
func Decode(raw []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("%w: unexpected trailing data", ErrMalformed)
	}

	var env Envelope
	if rawType, ok := fields["type"]; ok {
		if err := json.Unmarshal(rawType, &env.Type); err != nil {
			// Keep the literal for logging; it can never name a known kind.
			env.Type = string(rawType)
			env.Kind = KindUnknown
			return env, nil
		}
	}
	env.Kind = kindFromType(env.Type)

	switch env.Kind {
	case KindOffer, KindAnswer:
		if rawSDP, ok := fields["sdp"]; ok && !isNull(rawSDP) {
			var sdp wireSDP
			if err := json.Unmarshal(rawSDP, &sdp); err != nil {
				return env, fmt.Errorf("%w: %v", ErrInvalidField, err)
			}
			env.SDP = string(sdp)
		}
	case KindCandidate:
		if rawCand, ok := fields["candidate"]; ok && !isNull(rawCand) {
			var c Candidate
			if err := json.Unmarshal(rawCand, &c); err != nil {
				return env, fmt.Errorf("%w: candidate: %v", ErrInvalidField, err)
			}
			env.Candidate = &c
		}
	}
	return env, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// Encode renders env in wire form.
func Encode(env Envelope) []byte {
	msg := wireMessage{
		Type:      env.Type,
		SDP:       wireSDP(env.SDP),
		Candidate: env.Candidate,
	}
	if msg.Type == "" && env.Kind != KindUnknown {
		msg.Type = string(env.Kind)
	}
	// A struct of strings and a candidate pointer cannot fail to marshal.
	b, _ := json.Marshal(msg)
	return b
}

type malformedReply struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MalformedReply builds the error envelope sent back for an undecodable message.
func MalformedReply(raw []byte) []byte {
	b, _ := json.Marshal(malformedReply{Error: MalformedMessageError, Message: string(raw)})
	return b
}
