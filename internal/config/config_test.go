package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(func(string) (string, bool) { return "", false }, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want debug", cfg.LogLevel)
	}
	if !cfg.TrickleICE {
		t.Fatalf("TrickleICE=false, want true")
	}
	if cfg.ICEGatheringTimeout != DefaultICEGatheringTimeout {
		t.Fatalf("ICEGatheringTimeout=%v, want %v", cfg.ICEGatheringTimeout, DefaultICEGatheringTimeout)
	}
	if cfg.MaxSessions != 0 {
		t.Fatalf("MaxSessions=%d, want 0", cfg.MaxSessions)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.MaxSignalingMessagesPerSecond != DefaultMaxSignalingMessagesPerSecond {
		t.Fatalf("MaxSignalingMessagesPerSecond=%d, want %d", cfg.MaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	}
	if cfg.WebRTCUDPPortRange != nil {
		t.Fatalf("expected WebRTCUDPPortRange unset, got %+v", *cfg.WebRTCUDPPortRange)
	}
	if !cfg.WebRTCUDPListenIP.Equal(net.IPv4zero) {
		t.Fatalf("WebRTCUDPListenIP=%v, want 0.0.0.0", cfg.WebRTCUDPListenIP)
	}
	if cfg.WebRTCNAT1To1IPCandidateType != NAT1To1CandidateTypeHost {
		t.Fatalf("WebRTCNAT1To1IPCandidateType=%q, want %q", cfg.WebRTCNAT1To1IPCandidateType, NAT1To1CandidateTypeHost)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != DefaultSTUNURL {
		t.Fatalf("ICEServers=%+v, want default STUN", cfg.ICEServers)
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(lookupMap(nil), []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want info", cfg.LogLevel)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{EnvMode: "prod"}), []string{"--log-format", "text"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		EnvListenAddr:  "0.0.0.0:9000",
		EnvTrickleICE:  "true",
		EnvMaxSessions: "10",
	}), []string{"--listen-addr", "127.0.0.1:9001", "--trickle-ice=false", "--max-sessions", "3"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9001" {
		t.Fatalf("ListenAddr=%q", cfg.ListenAddr)
	}
	if cfg.TrickleICE {
		t.Fatalf("TrickleICE=true, want false")
	}
	if cfg.MaxSessions != 3 {
		t.Fatalf("MaxSessions=%d, want 3", cfg.MaxSessions)
	}
}

func TestTrickleICE_Env(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		EnvTrickleICE:          "false",
		EnvICEGatheringTimeout: "500ms",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TrickleICE {
		t.Fatalf("TrickleICE=true, want false")
	}
	if cfg.ICEGatheringTimeout != 500*time.Millisecond {
		t.Fatalf("ICEGatheringTimeout=%v, want 500ms", cfg.ICEGatheringTimeout)
	}

	if _, err := load(lookupMap(map[string]string{EnvTrickleICE: "maybe"}), nil); err == nil {
		t.Fatalf("expected error for invalid bool")
	}
}

func TestInvalidLimitsRejected(t *testing.T) {
	cases := []map[string]string{
		{EnvMaxSessions: "-1"},
		{EnvMaxSignalingMessageBytes: "0"},
		{EnvMaxSignalingMessagesPerSecond: "0"},
		{EnvICEGatheringTimeout: "0s"},
		{EnvSignalingWSIdleTimeout: "10s", EnvSignalingWSPingInterval: "10s"},
		{EnvShutdownTimeout: "nope"},
	}
	for _, env := range cases {
		if _, err := load(lookupMap(env), nil); err == nil {
			t.Fatalf("expected error for %v", env)
		}
	}
}

func TestICEServers_JSONEmptyDisablesDefault(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envICEServersJSON: "[]"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ICEServers) != 0 {
		t.Fatalf("ICEServers=%+v, want none", cfg.ICEServers)
	}
}

func TestICEServers_ConvenienceEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envStunURLs:       "stun:a.example.com:3478",
		envTurnURLs:       "turn:b.example.com:3478",
		envTurnUsername:   "u",
		envTurnCredential: "p",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ICEServers=%+v, want 2", cfg.ICEServers)
	}
}

func TestWebRTCUDPPortRange_RequiresBoth(t *testing.T) {
	_, err := load(lookupMap(map[string]string{EnvWebRTCUDPPortMin: "50000"}), nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), EnvWebRTCUDPPortMax) {
		t.Fatalf("error %q does not mention %s", err, EnvWebRTCUDPPortMax)
	}
}

func TestWebRTCUDPPortRange_TooSmall(t *testing.T) {
	_, err := load(lookupMap(map[string]string{
		EnvWebRTCUDPPortMin: "50000",
		EnvWebRTCUDPPortMax: "50010",
	}), nil)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestWebRTCUDPPortRange_OK(t *testing.T) {
	cfg, err := load(lookupMap(nil), []string{"--webrtc-udp-port-min", "50000", "--webrtc-udp-port-max", "50199"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WebRTCUDPPortRange == nil {
		t.Fatalf("expected WebRTCUDPPortRange set")
	}
	if cfg.WebRTCUDPPortRange.Min != 50000 || cfg.WebRTCUDPPortRange.Max != 50199 {
		t.Fatalf("range=%+v", *cfg.WebRTCUDPPortRange)
	}
}

func TestWebRTCNAT1To1IPsAndCandidateType(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		EnvWebRTCNAT1To1IPs:             "203.0.113.10, 2001:db8::1",
		EnvWebRTCNAT1To1IPCandidateType: "SRFLX",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.WebRTCNAT1To1IPs) != 2 || cfg.WebRTCNAT1To1IPs[0] != "203.0.113.10" || cfg.WebRTCNAT1To1IPs[1] != "2001:db8::1" {
		t.Fatalf("WebRTCNAT1To1IPs=%v", cfg.WebRTCNAT1To1IPs)
	}
	if cfg.WebRTCNAT1To1IPCandidateType != NAT1To1CandidateTypeSrflx {
		t.Fatalf("candidate type=%q, want srflx", cfg.WebRTCNAT1To1IPCandidateType)
	}
}

func TestWebRTCNAT1To1IPs_Invalid(t *testing.T) {
	if _, err := load(lookupMap(map[string]string{EnvWebRTCNAT1To1IPs: "not-an-ip"}), nil); err == nil {
		t.Fatalf("expected error for invalid ip")
	}
	if _, err := load(lookupMap(map[string]string{EnvWebRTCNAT1To1IPCandidateType: "relay"}), nil); err == nil {
		t.Fatalf("expected error for invalid candidate type")
	}
}

func TestWebRTCUDPListenIP(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{EnvWebRTCUDPListenIP: "127.0.0.1"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.WebRTCUDPListenIP.Equal(net.ParseIP("127.0.0.1")) {
		t.Fatalf("WebRTCUDPListenIP=%v", cfg.WebRTCUDPListenIP)
	}
	if IsUnspecifiedIP(cfg.WebRTCUDPListenIP) {
		t.Fatalf("127.0.0.1 reported as unspecified")
	}

	if _, err := load(lookupMap(map[string]string{EnvWebRTCUDPListenIP: "nope"}), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseAllowedOrigins_NormalizesAndValidates(t *testing.T) {
	got, err := parseAllowedOrigins("HTTPS://Example.COM:443, http://localhost:5173/")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2 (%v)", len(got), got)
	}
	if got[0] != "https://example.com" {
		t.Fatalf("got[0]=%q, want %q", got[0], "https://example.com")
	}
	if got[1] != "http://localhost:5173" {
		t.Fatalf("got[1]=%q, want %q", got[1], "http://localhost:5173")
	}
}

func TestParseAllowedOrigins_AllowsStarAndNull(t *testing.T) {
	got, err := parseAllowedOrigins("*,null")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 || got[0] != "*" || got[1] != "null" {
		t.Fatalf("got=%v, want [* null]", got)
	}
}

func TestParseAllowedOrigins_RejectsPathQueryAndCredentials(t *testing.T) {
	cases := []string{
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com/?q=1",
		"https://user@example.com",
	}
	for _, raw := range cases {
		if _, err := parseAllowedOrigins(raw); err == nil {
			t.Fatalf("expected error for %q, got nil", raw)
		}
	}
}

func TestNewLoggerTo_JSONAtLevel(t *testing.T) {
	format, level, err := ParseLogOptions("JSON", "warn")
	if err != nil {
		t.Fatalf("ParseLogOptions: %v", err)
	}
	if format != LogFormatJSON || level != slog.LevelWarn {
		t.Fatalf("format=%q level=%v", format, level)
	}

	var buf bytes.Buffer
	logger, err := NewLoggerTo(&buf, format, level)
	if err != nil {
		t.Fatalf("NewLoggerTo: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "session_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", lines[0], err)
	}
	if rec["msg"] != "kept" || rec["session_id"] != "abc" {
		t.Fatalf("record=%v", rec)
	}
}

func TestParseLogOptions_Invalid(t *testing.T) {
	if _, _, err := ParseLogOptions("xml", "info"); err == nil {
		t.Fatalf("expected error for log format xml")
	}
	if _, _, err := ParseLogOptions("text", "loud"); err == nil {
		t.Fatalf("expected error for log level loud")
	}
}
