package signal

import (
	"errors"
	"reflect"
	"testing"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"type":"offer","sdp":"v=0"}`))
	f.Add([]byte(`{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`))
	f.Add([]byte(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}}`))
	f.Add([]byte(`{"type":"bogus"}`))
	f.Add([]byte(`{"type":"offer"}{"type":"offer"}`))
	f.Add([]byte(`{"type":7}`))
	f.Add([]byte(`{"type":"candidate","candidate":"candidate:1"}`))
	f.Add([]byte(`[]`))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		env1, err1 := Decode(data)
		env2, err2 := Decode(data)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("non-deterministic decode: err1=%v err2=%v", err1, err2)
		}
		if err1 != nil {
			if !errors.Is(err1, ErrMalformed) && !errors.Is(err1, ErrInvalidField) {
				t.Fatalf("decode error wraps neither ErrMalformed nor ErrInvalidField: %v", err1)
			}
			return
		}
		if !reflect.DeepEqual(env1, env2) {
			t.Fatalf("non-deterministic decode result")
		}
		switch env1.Kind {
		case KindOffer, KindAnswer, KindCandidate, KindUnknown:
		default:
			t.Fatalf("unexpected kind %q", env1.Kind)
		}
		if env1.Kind != KindUnknown {
			if _, err := Decode(Encode(env1)); err != nil {
				t.Fatalf("re-decode of encoded envelope failed: %v", err)
			}
		}
	})
}
